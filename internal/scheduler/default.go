package scheduler

import (
	"sync"

	"localnotify/internal/platform"
	"localnotify/internal/platform/local"
	"localnotify/internal/storage"
)

var (
	defaultMu sync.Mutex
	defaultS  *Scheduler
)

// Default returns the process-wide scheduler. Unless SetDefault was called
// first, it is built on an in-memory local center that grants permission
// when asked and reports when-in-use location authorization.
func Default() *Scheduler {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultS == nil {
		center := local.New(storage.NewMemory())
		defaultS = New(center, local.NewLocation(platform.LocationAuthorizedWhenInUse))
	}
	return defaultS
}

// SetDefault replaces the process-wide scheduler. Passing nil makes the next
// Default call build a fresh one.
func SetDefault(s *Scheduler) {
	defaultMu.Lock()
	defaultS = s
	defaultMu.Unlock()
}
