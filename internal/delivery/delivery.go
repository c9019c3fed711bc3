// Package delivery hands fired notifications to somewhere a person can see
// them. The local center calls a Sink once per firing and never retries.
package delivery

import (
	"context"
	"errors"
	"time"

	"localnotify/internal/platform"
	logx "localnotify/pkg/logx"
)

// Reason says which trigger condition fired.
type Reason string

const (
	ReasonCalendar    Reason = "calendar"
	ReasonInterval    Reason = "interval"
	ReasonRegionEntry Reason = "region_entry"
	ReasonRegionExit  Reason = "region_exit"
)

type Delivery struct {
	Request platform.Request
	FiredAt time.Time
	Reason  Reason
}

type Sink interface {
	Deliver(ctx context.Context, d Delivery) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, d Delivery) error

func (f Func) Deliver(ctx context.Context, d Delivery) error { return f(ctx, d) }

// Multi delivers to every sink and joins their errors.
type Multi []Sink

func (m Multi) Deliver(ctx context.Context, d Delivery) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Deliver(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes each delivery to a logger.
type LogSink struct {
	log logx.Logger
}

func NewLogSink(log logx.Logger) *LogSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogSink{log: log.With(logx.String("comp", "delivery"))}
}

func (s *LogSink) Deliver(ctx context.Context, d Delivery) error {
	c := d.Request.Content
	s.log.Info("notification delivered",
		logx.String("id", d.Request.Identifier),
		logx.String("reason", string(d.Reason)),
		logx.String("title", c.Title),
		logx.String("subtitle", c.Subtitle),
		logx.String("body", c.Body),
		logx.Int("badge", c.Badge),
		logx.Time("fired_at", d.FiredAt),
	)
	return nil
}
