package local

import (
	"context"
	"sync"

	"localnotify/internal/platform"
)

// Location is a location manager whose authorization comes from config and
// can be changed while running.
type Location struct {
	mu     sync.RWMutex
	status platform.LocationAuthorization
}

var _ platform.LocationManager = (*Location)(nil)

func NewLocation(status platform.LocationAuthorization) *Location {
	return &Location{status: status}
}

func (l *Location) AuthorizationStatus(ctx context.Context) (platform.LocationAuthorization, error) {
	if err := ctx.Err(); err != nil {
		return platform.LocationNotDetermined, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status, nil
}

func (l *Location) Set(status platform.LocationAuthorization) {
	l.mu.Lock()
	l.status = status
	l.mu.Unlock()
}
