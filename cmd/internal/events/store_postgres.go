package events

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists events in PostgreSQL.
//
// Owner scoping lives in the WHERE clause of every query: a row with a
// different user_id scans as zero rows, which maps to ErrNotFound. Filter
// input only ever reaches SQL as bound parameters; column names come from
// the fixed allow-list in filters.go.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the DB schema used by the store (default: "evtrack"). The
// name must be a legal PostgreSQL identifier.
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !pgIdentRe.MatchString(schema) {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore. The pool is owned by the
// caller; the store never closes it.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "evtrack"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

// eventCols is the canonical column list: description and share_id are
// nullable in the schema but always strings in Go.
const eventCols = `id, user_id, title, date_time, location, COALESCE(description, ''), COALESCE(share_id, ''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var ev Event
	err := row.Scan(
		&ev.ID,
		&ev.UserID,
		&ev.Title,
		&ev.DateTime,
		&ev.Location,
		&ev.Description,
		&ev.ShareID,
		&ev.CreatedAt,
		&ev.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, ErrNotFound
		}
		return Event{}, err
	}
	return ev, nil
}

// Create inserts a new event row.
func (s *PostgresStore) Create(ctx context.Context, in CreateRecord) (Event, error) {
	if s == nil || s.pool == nil {
		return Event{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.UserID) == "" ||
		strings.TrimSpace(in.Title) == "" || in.DateTime.IsZero() {
		return Event{}, ErrInvalidInput
	}

	now := in.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	updated := in.UpdatedAt
	if updated.IsZero() {
		updated = now
	}

	table := pgIdent(s.schema, "events")
	row := s.pool.QueryRow(ctx,
		`INSERT INTO `+table+` (
		     id, user_id, title, date_time, location, description, share_id, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULL, $7, $8)
		 RETURNING `+eventCols,
		in.ID,
		in.UserID,
		in.Title,
		in.DateTime,
		in.Location,
		in.Description,
		now,
		updated,
	)
	return scanEvent(row)
}

// GetForOwner fetches one event scoped to its owner.
func (s *PostgresStore) GetForOwner(ctx context.Context, ownerID, eventID string) (Event, error) {
	if s == nil || s.pool == nil {
		return Event{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	ownerID = strings.TrimSpace(ownerID)
	eventID = strings.TrimSpace(eventID)
	if ownerID == "" || eventID == "" {
		return Event{}, ErrNotFound
	}

	table := pgIdent(s.schema, "events")
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventCols+` FROM `+table+` WHERE id = $1 AND user_id = $2`,
		eventID, ownerID,
	)
	return scanEvent(row)
}

// ListForOwner lists an owner's events narrowed by the filter. Search input
// is LIKE-escaped and bound as a parameter.
func (s *PostgresStore) ListForOwner(ctx context.Context, ownerID string, f ListFilter) ([]Event, error) {
	if s == nil || s.pool == nil {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrInvalidInput
	}

	where := []string{"user_id = $1"}
	args := []any{ownerID}

	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(title ILIKE $%d OR location ILIKE $%d OR COALESCE(description, '') ILIKE $%d)", n, n, n))
	}
	if !f.From.IsZero() {
		op := ">="
		if f.fromStrict {
			op = ">"
		}
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("date_time %s $%d", op, len(args)))
	}
	if !f.To.IsZero() {
		op := "<="
		if f.toStrict {
			op = "<"
		}
		args = append(args, f.To)
		where = append(where, fmt.Sprintf("date_time %s $%d", op, len(args)))
	}

	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}

	table := pgIdent(s.schema, "events")
	q := `SELECT ` + eventCols + ` FROM ` + table +
		` WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY ` + f.orderKey() + ` ` + dir + `, id ` + dir

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateForOwner applies a partial update and returns the updated row.
// Last-write-wins: no version check, only the owner can ever write the row.
func (s *PostgresStore) UpdateForOwner(ctx context.Context, ownerID, eventID string, in UpdateRecord) (Event, error) {
	if s == nil || s.pool == nil {
		return Event{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	ownerID = strings.TrimSpace(ownerID)
	eventID = strings.TrimSpace(eventID)
	if ownerID == "" || eventID == "" {
		return Event{}, ErrNotFound
	}

	updated := in.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	var set []string
	var args []any
	add := func(expr string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf(expr, len(args)))
	}

	if in.Title != nil {
		add("title = $%d", *in.Title)
	}
	if in.DateTime != nil {
		add("date_time = $%d", *in.DateTime)
	}
	if in.Location != nil {
		add("location = $%d", *in.Location)
	}
	if in.Description != nil {
		add("description = NULLIF($%d, '')", *in.Description)
	}
	add("updated_at = $%d", updated)

	args = append(args, eventID, ownerID)
	table := pgIdent(s.schema, "events")
	q := `UPDATE ` + table + ` SET ` + strings.Join(set, ", ") +
		fmt.Sprintf(` WHERE id = $%d AND user_id = $%d RETURNING `, len(args)-1, len(args)) + eventCols

	return scanEvent(s.pool.QueryRow(ctx, q, args...))
}

// DeleteForOwner removes an event and returns the deleted row.
func (s *PostgresStore) DeleteForOwner(ctx context.Context, ownerID, eventID string) (Event, error) {
	if s == nil || s.pool == nil {
		return Event{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	ownerID = strings.TrimSpace(ownerID)
	eventID = strings.TrimSpace(eventID)
	if ownerID == "" || eventID == "" {
		return Event{}, ErrNotFound
	}

	table := pgIdent(s.schema, "events")
	row := s.pool.QueryRow(ctx,
		`DELETE FROM `+table+` WHERE id = $1 AND user_id = $2 RETURNING `+eventCols,
		eventID, ownerID,
	)
	return scanEvent(row)
}

// SetShareID replaces the stored share id for an owner's event.
func (s *PostgresStore) SetShareID(ctx context.Context, ownerID, eventID, shareID string) (Event, error) {
	if s == nil || s.pool == nil {
		return Event{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	ownerID = strings.TrimSpace(ownerID)
	eventID = strings.TrimSpace(eventID)
	shareID = strings.TrimSpace(shareID)
	if ownerID == "" || eventID == "" {
		return Event{}, ErrNotFound
	}
	if shareID == "" {
		return Event{}, ErrInvalidInput
	}

	table := pgIdent(s.schema, "events")
	row := s.pool.QueryRow(ctx,
		`UPDATE `+table+` SET share_id = $1 WHERE id = $2 AND user_id = $3 RETURNING `+eventCols,
		shareID, eventID, ownerID,
	)
	ev, err := scanEvent(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Event{}, ErrShareIDTaken
		}
		return Event{}, err
	}
	return ev, nil
}

// GetByShareID fetches the event mapped to a share id, bypassing ownership.
// Callers validate the id format first; the store only requires non-empty.
func (s *PostgresStore) GetByShareID(ctx context.Context, shareID string) (Event, error) {
	if s == nil || s.pool == nil {
		return Event{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	shareID = strings.TrimSpace(shareID)
	if shareID == "" {
		return Event{}, ErrNotFound
	}

	table := pgIdent(s.schema, "events")
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventCols+` FROM `+table+` WHERE share_id = $1`,
		shareID,
	)
	return scanEvent(row)
}

// StatsForOwner returns total/upcoming/past counts in one aggregate query.
func (s *PostgresStore) StatsForOwner(ctx context.Context, ownerID string, now time.Time) (Stats, error) {
	if s == nil || s.pool == nil {
		return Stats{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return Stats{}, ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	table := pgIdent(s.schema, "events")
	var out Stats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE date_time > $2),
		        COUNT(*) FILTER (WHERE date_time < $2)
		   FROM `+table+`
		  WHERE user_id = $1`,
		ownerID, now,
	).Scan(&out.Total, &out.Upcoming, &out.Past)
	if err != nil {
		return Stats{}, err
	}
	return out, nil
}

// RecentForOwner returns the owner's most recently created events.
func (s *PostgresStore) RecentForOwner(ctx context.Context, ownerID string, limit int) ([]Event, error) {
	if s == nil || s.pool == nil {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = recentEventsLimit
	}
	if limit > 50 {
		limit = 50
	}

	table := pgIdent(s.schema, "events")
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventCols+` FROM `+table+`
		  WHERE user_id = $1
		  ORDER BY created_at DESC, id DESC
		  LIMIT $2`,
		ownerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ---- helpers ----

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// escapeLike neutralizes LIKE metacharacters in user-supplied search terms.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
