package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// memStore keeps everything in maps. The file driver embeds it and persists
// a snapshot after every change.
type memStore struct {
	mu     sync.Mutex
	closed bool
	recs   map[string]Record
	state  map[string]string
}

func NewMemory() Store { return newMemStore() }

func newMemStore() *memStore {
	return &memStore{recs: map[string]Record{}, state: map[string]string{}}
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *memStore) PutRequest(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(rec)
}

func (s *memStore) putLocked(rec Record) error {
	if s.closed {
		return ErrClosed
	}
	cp, err := cloneRecord(rec)
	if err != nil {
		return err
	}
	s.recs[rec.ID()] = cp
	return nil
}

func (s *memStore) GetRequest(ctx context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Record{}, ErrClosed
	}
	rec, ok := s.recs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec)
}

func (s *memStore) DeleteRequests(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(ids)
}

func (s *memStore) deleteLocked(ids []string) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	n := 0
	for _, id := range ids {
		if _, ok := s.recs[id]; ok {
			delete(s.recs, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) DeleteAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteAllLocked()
}

func (s *memStore) deleteAllLocked() (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	n := len(s.recs)
	s.recs = map[string]Record{}
	return n, nil
}

func (s *memStore) ListRequests(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]Record, 0, len(s.recs))
	for _, r := range s.recs {
		cp, err := cloneRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	sortRecords(out)
	return out, nil
}

func (s *memStore) CountRequests(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.recs), nil
}

func (s *memStore) GetState(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}
	v, ok := s.state[strings.TrimSpace(key)]
	return v, ok, nil
}

func (s *memStore) PutState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putStateLocked(key, value)
}

func (s *memStore) putStateLocked(key, value string) error {
	if s.closed {
		return ErrClosed
	}
	s.state[strings.TrimSpace(key)] = value
	return nil
}

func sortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID() < recs[j].ID()
	})
}

// cloneRecord deep-copies through JSON so callers never share maps or
// slices with the store. Every driver then sees the same encoded shape.
func cloneRecord(r Record) (Record, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return Record{}, err
	}
	var out Record
	if err := json.Unmarshal(b, &out); err != nil {
		return Record{}, err
	}
	return out, nil
}
