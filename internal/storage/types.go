// Package storage keeps the local center's pending requests and a little
// key/value state (the user's permission answer).
//
// Drivers:
//   - "memory": process-local, lost on exit
//   - "file":   JSON snapshot rewritten atomically on every change
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
package storage

import (
	"context"
	"errors"
	"time"

	"localnotify/internal/platform"
)

var (
	ErrClosed   = errors.New("storage closed")
	ErrNotFound = errors.New("record not found")
)

// Config selects and configures a driver.
//
// If Driver is empty it defaults to "memory".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is one pending request plus the center's bookkeeping for it.
type Record struct {
	Request   platform.Request `json:"request"`
	CreatedAt time.Time        `json:"created_at"`

	// NextFire is the next instant a calendar or interval request is due.
	// Zero for region requests and for requests that can no longer fire.
	NextFire time.Time `json:"next_fire,omitempty"`

	// Inside tracks the last known position relative to a region trigger.
	Inside bool `json:"inside,omitempty"`
	Fired  int  `json:"fired,omitempty"`
}

func (r Record) ID() string { return r.Request.Identifier }

// Store is the persistence API used by the local center.
type Store interface {
	// PutRequest inserts or replaces the record with the same identifier.
	PutRequest(ctx context.Context, rec Record) error
	GetRequest(ctx context.Context, id string) (Record, error)
	// DeleteRequests ignores unknown identifiers and reports how many went.
	DeleteRequests(ctx context.Context, ids []string) (int, error)
	DeleteAll(ctx context.Context) (int, error)
	// ListRequests returns records oldest first.
	ListRequests(ctx context.Context) ([]Record, error)
	CountRequests(ctx context.Context) (int, error)

	GetState(ctx context.Context, key string) (value string, ok bool, err error)
	PutState(ctx context.Context, key, value string) error

	Close() error
}
