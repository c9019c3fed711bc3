package local

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"localnotify/internal/platform"
)

// ErrInvalidTrigger is returned by Add for requests the center cannot
// schedule.
var ErrInvalidTrigger = errors.New("invalid notification trigger")

// MinRepeatInterval is the shortest repeating interval the center accepts.
const MinRepeatInterval = time.Minute

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTrigger, fmt.Sprintf(format, args...))
}

// validate checks req and returns its first fire time (zero for regions).
func validate(req platform.Request, now time.Time) (time.Time, error) {
	if strings.TrimSpace(req.Identifier) == "" {
		return time.Time{}, invalid("empty identifier")
	}
	tr := req.Trigger
	switch tr.Kind {
	case platform.TriggerCalendar:
		if tr.Pattern == nil || tr.Pattern.Fields == 0 {
			return time.Time{}, invalid("calendar pattern is empty")
		}
		next, ok := tr.Pattern.Next(now)
		if !ok {
			return time.Time{}, invalid("calendar pattern %s never fires after %s", tr.Pattern, now.Format(time.RFC3339))
		}
		return next, nil

	case platform.TriggerInterval:
		if tr.Every <= 0 {
			return time.Time{}, invalid("interval must be positive, got %s", tr.Every)
		}
		if tr.Repeats && tr.Every < MinRepeatInterval {
			return time.Time{}, invalid("repeating interval must be at least %s, got %s", MinRepeatInterval, tr.Every)
		}
		return now.Add(tr.Every), nil

	case platform.TriggerRegion:
		r := tr.Region
		if r == nil {
			return time.Time{}, invalid("region is missing")
		}
		if r.Radius <= 0 {
			return time.Time{}, invalid("region radius must be positive, got %g", r.Radius)
		}
		if r.Latitude < -90 || r.Latitude > 90 || r.Longitude < -180 || r.Longitude > 180 {
			return time.Time{}, invalid("region center %g,%g out of range", r.Latitude, r.Longitude)
		}
		return time.Time{}, nil
	}
	return time.Time{}, invalid("unknown trigger kind %q", tr.Kind)
}
