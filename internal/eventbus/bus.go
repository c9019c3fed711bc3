package eventbus

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one lifecycle signal. Data depends on Type, see events.go.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

const defaultBuffer = 16

func New() Bus { return &bus{} }

type bus struct {
	mu   sync.Mutex // serialises writers of subs
	subs atomic.Pointer[[]*subscriber]
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func (s *subscriber) offer(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (b *bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	subs := b.subs.Load()
	if subs == nil {
		return
	}
	for _, s := range *subs {
		s.offer(e)
	}
}

func (b *bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	sub := &subscriber{ch: make(chan Event, buffer)}
	b.update(func(subs []*subscriber) []*subscriber { return append(subs, sub) })

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.update(func(subs []*subscriber) []*subscriber {
				return slices.DeleteFunc(subs, func(s *subscriber) bool { return s == sub })
			})
			sub.close()
		})
	}
}

// update swaps in a modified copy of the subscriber list.
func (b *bus) update(fn func([]*subscriber) []*subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var cur []*subscriber
	if p := b.subs.Load(); p != nil {
		cur = slices.Clone(*p)
	}
	next := fn(cur)
	b.subs.Store(&next)
}
