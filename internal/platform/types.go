package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"localnotify/internal/content"
	"localnotify/internal/recurrence"
)

// PermissionState is a snapshot of the notification permission as reported
// by the notification center.
type PermissionState int

const (
	PermissionUndetermined PermissionState = iota
	PermissionDenied
	PermissionAuthorized
	PermissionProvisional
)

func (s PermissionState) String() string {
	switch s {
	case PermissionUndetermined:
		return "undetermined"
	case PermissionDenied:
		return "denied"
	case PermissionAuthorized:
		return "authorized"
	case PermissionProvisional:
		return "provisional"
	default:
		return fmt.Sprintf("permission(%d)", int(s))
	}
}

// ParsePermissionState accepts the String() forms.
func ParsePermissionState(raw string) (PermissionState, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "undetermined", "not_determined":
		return PermissionUndetermined, nil
	case "denied":
		return PermissionDenied, nil
	case "authorized":
		return PermissionAuthorized, nil
	case "provisional":
		return PermissionProvisional, nil
	}
	return PermissionUndetermined, fmt.Errorf("unknown permission state %q", raw)
}

// LocationAuthorization mirrors the location subsystem's authorization status.
type LocationAuthorization int

const (
	LocationNotDetermined LocationAuthorization = iota
	LocationRestricted
	LocationDenied
	LocationAuthorizedAlways
	LocationAuthorizedWhenInUse
)

func (a LocationAuthorization) String() string {
	switch a {
	case LocationNotDetermined:
		return "not_determined"
	case LocationRestricted:
		return "restricted"
	case LocationDenied:
		return "denied"
	case LocationAuthorizedAlways:
		return "authorized_always"
	case LocationAuthorizedWhenInUse:
		return "authorized_when_in_use"
	default:
		return fmt.Sprintf("location(%d)", int(a))
	}
}

// Allowed reports whether region monitoring may be used.
func (a LocationAuthorization) Allowed() bool {
	return a == LocationAuthorizedAlways || a == LocationAuthorizedWhenInUse
}

func ParseLocationAuthorization(raw string) (LocationAuthorization, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "not_determined", "notdetermined":
		return LocationNotDetermined, nil
	case "restricted":
		return LocationRestricted, nil
	case "denied":
		return LocationDenied, nil
	case "authorized_always", "always":
		return LocationAuthorizedAlways, nil
	case "authorized_when_in_use", "when_in_use":
		return LocationAuthorizedWhenInUse, nil
	}
	return LocationNotDetermined, fmt.Errorf("unknown location authorization %q", raw)
}

// AuthorizationOptions is the set of capabilities requested from the user.
type AuthorizationOptions uint8

const (
	OptionAlert AuthorizationOptions = 1 << iota
	OptionSound
	OptionBadge
)

// DefaultAuthorizationOptions asks for alerts, sounds and badges.
const DefaultAuthorizationOptions = OptionAlert | OptionSound | OptionBadge

func (o AuthorizationOptions) Has(flag AuthorizationOptions) bool { return o&flag == flag }

// TriggerKind describes which firing condition a request carries.
type TriggerKind string

const (
	TriggerCalendar TriggerKind = "calendar"
	TriggerInterval TriggerKind = "interval"
	TriggerRegion   TriggerKind = "region"
)

// Region is a circular geofence.
type Region struct {
	Identifier    string  `json:"identifier"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Radius        float64 `json:"radius"` // metres
	NotifyOnEntry bool    `json:"notify_on_entry"`
	NotifyOnExit  bool    `json:"notify_on_exit"`
}

// Trigger is the condition that fires a request. Exactly one of the
// kind-specific fields is meaningful, selected by Kind.
type Trigger struct {
	Kind    TriggerKind         `json:"kind"`
	Repeats bool                `json:"repeats"`
	Pattern *recurrence.Pattern `json:"pattern,omitempty"`
	Every   time.Duration       `json:"every,omitempty"`
	Region  *Region             `json:"region,omitempty"`
}

func CalendarTrigger(p recurrence.Pattern, repeats bool) Trigger {
	return Trigger{Kind: TriggerCalendar, Repeats: repeats, Pattern: &p}
}

func IntervalTrigger(every time.Duration, repeats bool) Trigger {
	return Trigger{Kind: TriggerInterval, Repeats: repeats, Every: every}
}

func RegionTrigger(r Region, repeats bool) Trigger {
	return Trigger{Kind: TriggerRegion, Repeats: repeats, Region: &r}
}

func (t Trigger) String() string {
	switch t.Kind {
	case TriggerCalendar:
		if t.Pattern == nil {
			return "calendar(<nil>)"
		}
		return fmt.Sprintf("calendar(%s, repeats=%t)", t.Pattern, t.Repeats)
	case TriggerInterval:
		return fmt.Sprintf("interval(%s, repeats=%t)", t.Every, t.Repeats)
	case TriggerRegion:
		if t.Region == nil {
			return "region(<nil>)"
		}
		return fmt.Sprintf("region(%s, repeats=%t)", t.Region.Identifier, t.Repeats)
	default:
		return string(t.Kind)
	}
}

// Request is a notification handed to the center for scheduling.
type Request struct {
	Identifier string          `json:"identifier"`
	Content    content.Payload `json:"content"`
	Trigger    Trigger         `json:"trigger"`
}

// NotificationCenter is the platform notification subsystem.
//
// All calls may block until the platform answers.
type NotificationCenter interface {
	AuthorizationState(ctx context.Context) (PermissionState, error)
	RequestAuthorization(ctx context.Context, opts AuthorizationOptions) (granted bool, err error)

	PendingRequests(ctx context.Context) ([]Request, error)
	PendingCount(ctx context.Context) (int, error)

	Add(ctx context.Context, req Request) error
	Remove(ctx context.Context, identifiers []string) error
	RemoveAll(ctx context.Context) error
}

// LocationManager is the platform location subsystem.
type LocationManager interface {
	AuthorizationStatus(ctx context.Context) (LocationAuthorization, error)
}
