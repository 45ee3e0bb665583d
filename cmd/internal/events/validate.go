package events

import "unicode/utf8"

const (
	titleMinLen    = 3
	titleMaxLen    = 200
	locationMinLen = 5
)

// checkTitle records a field message for an already-trimmed title. Lengths
// count runes, not bytes.
func checkTitle(fields map[string]string, title string) {
	switch n := utf8.RuneCountInString(title); {
	case n == 0:
		fields["title"] = "Event title cannot be empty."
	case n < titleMinLen:
		fields["title"] = "Event title must be at least 3 characters long."
	case n > titleMaxLen:
		fields["title"] = "Event title must be at most 200 characters long."
	}
}

// checkLocation records a field message for an already-trimmed location.
func checkLocation(fields map[string]string, location string) {
	switch n := utf8.RuneCountInString(location); {
	case n == 0:
		fields["location"] = "Event location cannot be empty."
	case n < locationMinLen:
		fields["location"] = "Event location must be at least 5 characters long."
	}
}
