package notification

import (
	"fmt"
	"strings"
	"time"
)

var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseScheduledAt accepts an ISO 8601 timestamp and renders it in
// TimeLayout. Timestamps with an offset are converted to loc; naive ones are
// taken as already being in loc. Sub-second precision is dropped.
func ParseScheduledAt(s string, loc *time.Location) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: scheduled_at is required", ErrInvalid)
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc).Format(TimeLayout), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.Format(TimeLayout), nil
		}
	}
	return "", fmt.Errorf("%w: scheduled_at %q is not an ISO 8601 timestamp", ErrInvalid, s)
}
