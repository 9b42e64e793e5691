package httpx

import (
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04"}

// ParseDate reads a request date in loc. Empty values yield the zero time.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, shared.Validation("invalid date %q", value)
}

// RequireDate is ParseDate for mandatory fields.
func RequireDate(field, value string, loc *time.Location) (time.Time, error) {
	t, err := ParseDate(value, loc)
	if err != nil {
		return time.Time{}, shared.ValidationFields(map[string]string{field: "must be a date"})
	}
	if t.IsZero() {
		return time.Time{}, shared.ValidationFields(map[string]string{field: "is required"})
	}
	return t, nil
}
