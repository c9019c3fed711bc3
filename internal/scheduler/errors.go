package scheduler

import "errors"

// Errors returned by the scheduling calls. A center's own enqueue error is
// returned unchanged and is none of these.
var (
	ErrPermissionDenied              = errors.New("notification permission has not been granted to this application")
	ErrCapacityExceeded              = errors.New("maximum allowed notification limit reached, cannot schedule more notifications")
	ErrLocationAuthorizationRequired = errors.New("location access is required to schedule region monitoring notifications")
)
