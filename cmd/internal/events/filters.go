package events

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// Columns the list endpoint may order by. Anything not in this set never
// reaches a query.
const (
	OrderByDateTime  = "date_time"
	OrderByCreatedAt = "created_at"
	OrderByTitle     = "title"
)

var orderableFields = map[string]bool{
	OrderByDateTime:  true,
	OrderByCreatedAt: true,
	OrderByTitle:     true,
}

const maxSearchLen = 200

// ListFilter narrows an owner-scoped listing. The zero value lists every
// event ordered by date_time ascending. From and To are inclusive bounds on
// date_time; the strict variants are reserved for the upcoming/past views.
type ListFilter struct {
	Search  string
	From    time.Time
	To      time.Time
	OrderBy string
	Desc    bool

	fromStrict bool // date_time strictly after From
	toStrict   bool // date_time strictly before To
}

// ParseListFilter maps query parameters onto a ListFilter against a fixed
// allow-list: search, from, to, ordering. Unknown keys are ignored; malformed
// values of known keys produce a ValidationError. Nothing from the request
// reaches a query unchecked.
func ParseListFilter(params url.Values) (ListFilter, error) {
	f := ListFilter{OrderBy: OrderByDateTime}
	fields := map[string]string{}

	if raw := strings.TrimSpace(params.Get("search")); raw != "" {
		if utf8.RuneCountInString(raw) > maxSearchLen {
			fields["search"] = "Search term is too long."
		} else {
			f.Search = raw
		}
	}

	if raw := strings.TrimSpace(params.Get("from")); raw != "" {
		t, err := parseTimeParam(raw)
		if err != nil {
			fields["from"] = "Enter a valid date or date/time."
		} else {
			f.From = t
		}
	}

	if raw := strings.TrimSpace(params.Get("to")); raw != "" {
		t, err := parseTimeParam(raw)
		if err != nil {
			fields["to"] = "Enter a valid date or date/time."
		} else {
			f.To = t
		}
	}

	if raw := strings.TrimSpace(params.Get("ordering")); raw != "" {
		key := strings.TrimPrefix(raw, "-")
		if !orderableFields[key] {
			fields["ordering"] = "Ordering must be one of: date_time, created_at, title."
		} else {
			f.OrderBy = key
			f.Desc = strings.HasPrefix(raw, "-")
		}
	}

	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		fields["to"] = `"to" must not be before "from".`
	}

	if len(fields) > 0 {
		return ListFilter{}, ValidationError{Fields: fields}
	}
	return f, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// orderKey returns the effective ordering column, defaulting to date_time.
func (f ListFilter) orderKey() string {
	if orderableFields[f.OrderBy] {
		return f.OrderBy
	}
	return OrderByDateTime
}

// matches applies the filter to a single event; used by the in-memory store.
func (f ListFilter) matches(ev Event) bool {
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(ev.Title), q) &&
			!strings.Contains(strings.ToLower(ev.Location), q) &&
			!strings.Contains(strings.ToLower(ev.Description), q) {
			return false
		}
	}
	if !f.From.IsZero() {
		if f.fromStrict {
			if !ev.DateTime.After(f.From) {
				return false
			}
		} else if ev.DateTime.Before(f.From) {
			return false
		}
	}
	if !f.To.IsZero() {
		if f.toStrict {
			if !ev.DateTime.Before(f.To) {
				return false
			}
		} else if ev.DateTime.After(f.To) {
			return false
		}
	}
	return true
}

// less orders two events per the filter. Ties break on id in the same
// direction so listings stay deterministic.
func (f ListFilter) less(a, b Event) bool {
	var c int
	switch f.orderKey() {
	case OrderByCreatedAt:
		c = compareTime(a.CreatedAt, b.CreatedAt)
	case OrderByTitle:
		c = strings.Compare(a.Title, b.Title)
	default:
		c = compareTime(a.DateTime, b.DateTime)
	}
	if c == 0 {
		c = strings.Compare(a.ID, b.ID)
	}
	if f.Desc {
		return c > 0
	}
	return c < 0
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}
