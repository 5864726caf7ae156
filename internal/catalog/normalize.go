package catalog

import (
	"regexp"
	"strings"
	"time"
)

var (
	dateOnly   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	httpScheme = regexp.MustCompile(`^https?://`)
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// NormalizeExpiryDate maps a course expiry to the end of its UTC day.
// Unparseable or empty input yields nil.
func NormalizeExpiryDate(raw *string) *time.Time {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	value := strings.TrimSpace(*raw)
	if dateOnly.MatchString(value) {
		t, err := time.Parse("2006-01-02T15:04:05Z07:00", value+"T23:59:59Z")
		if err != nil {
			return nil
		}
		return &t
	}
	t, ok := parseTimestamp(value)
	if !ok {
		return nil
	}
	end := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
	return &end
}

// NormalizeDate parses a coupon date and returns it in UTC, or nil.
func NormalizeDate(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	t, ok := parseTimestamp(*raw)
	if !ok {
		return nil
	}
	return &t
}

// RelativeFilePath strips the scheme and host from a CDN URL, leaving the
// object key.
func RelativeFilePath(raw *string) *string {
	if raw == nil || *raw == "" {
		return nil
	}
	clean := httpScheme.ReplaceAllString(*raw, "")
	if i := strings.Index(clean, "/"); i >= 0 {
		clean = clean[i+1:]
	}
	return &clean
}

// thumbnailForUpdate only rewrites absolute URLs; relative keys pass through.
func thumbnailForUpdate(raw *string) *string {
	if raw != nil && httpScheme.MatchString(*raw) {
		return RelativeFilePath(raw)
	}
	return raw
}
