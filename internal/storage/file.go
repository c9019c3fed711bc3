package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	logx "localnotify/pkg/logx"
)

// fileStore is a dependency-free persistence backend: the in-memory store
// plus a JSON snapshot rewritten (tmp file + rename) after every change.
type fileStore struct {
	*memStore
	log  logx.Logger
	path string
}

type fileSnapshot struct {
	Requests []Record          `json:"requests"`
	State    map[string]string `json:"state"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{memStore: newMemStore(), log: log, path: path}
	if err := s.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	var snap fileSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return err
	}
	for _, r := range snap.Requests {
		if r.ID() == "" {
			continue
		}
		s.recs[r.ID()] = r
	}
	for k, v := range snap.State {
		s.state[k] = v
	}
	s.log.Debug("snapshot loaded", logx.String("path", s.path), logx.Int("requests", len(s.recs)))
	return nil
}

func (s *fileStore) PutRequest(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putLocked(rec); err != nil {
		return err
	}
	return s.flushLocked()
}

func (s *fileStore) DeleteRequests(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.deleteLocked(ids)
	if err != nil || n == 0 {
		return n, err
	}
	return n, s.flushLocked()
}

func (s *fileStore) DeleteAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.deleteAllLocked()
	if err != nil {
		return n, err
	}
	return n, s.flushLocked()
}

func (s *fileStore) PutState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putStateLocked(key, value); err != nil {
		return err
	}
	return s.flushLocked()
}

func (s *fileStore) flushLocked() error {
	snap := fileSnapshot{Requests: make([]Record, 0, len(s.recs)), State: s.state}
	for _, r := range s.recs {
		snap.Requests = append(snap.Requests, r)
	}
	sortRecords(snap.Requests)

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.Warn("snapshot rename failed", logx.String("path", s.path), logx.Err(err))
		return err
	}
	return nil
}
