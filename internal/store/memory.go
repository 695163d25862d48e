package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryOpener is the in-memory reference backend. All mutations are
// serialised behind one mutex per opener so a store view and the opener can
// be used concurrently from multiple goroutines.
type MemoryOpener struct {
	runs map[string]map[string][]byte
	mu   sync.RWMutex
}

// NewMemoryOpener creates an empty in-memory backend.
func NewMemoryOpener() *MemoryOpener {
	return &MemoryOpener{
		runs: make(map[string]map[string][]byte),
	}
}

// Open returns a store view scoped to the given run.
func (m *MemoryOpener) Open(runID string) (Store, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}
	return &memoryStore{opener: m, runID: runID}, nil
}

// ListRuns returns all run IDs that currently hold any data.
func (m *MemoryOpener) ListRuns(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]string, 0, len(m.runs))
	for runID, keys := range m.runs {
		if len(keys) > 0 {
			runs = append(runs, runID)
		}
	}
	sort.Strings(runs)
	return runs, nil
}

// memoryStore is a run-scoped view over the opener's shared map.
type memoryStore struct {
	opener *MemoryOpener
	runID  string
}

func (s *memoryStore) Save(_ context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.opener.mu.Lock()
	defer s.opener.mu.Unlock()

	keys, ok := s.opener.runs[s.runID]
	if !ok {
		keys = make(map[string][]byte)
		s.opener.runs[s.runID] = keys
	}
	// Copy so callers cannot mutate stored data after Save returns.
	stored := make([]byte, len(value))
	copy(stored, value)
	keys[key] = stored
	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	s.opener.mu.RLock()
	defer s.opener.mu.RUnlock()

	value, ok := s.opener.runs[s.runID][key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *memoryStore) Exists(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	s.opener.mu.RLock()
	defer s.opener.mu.RUnlock()

	_, ok := s.opener.runs[s.runID][key]
	return ok, nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.opener.mu.Lock()
	defer s.opener.mu.Unlock()

	delete(s.opener.runs[s.runID], key)
	return nil
}

func (s *memoryStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	s.opener.mu.RLock()
	defer s.opener.mu.RUnlock()

	var keys []string
	for key := range s.opener.runs[s.runID] {
		if isReserved(key) {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *memoryStore) Clear(_ context.Context) error {
	s.opener.mu.Lock()
	defer s.opener.mu.Unlock()

	keys := s.opener.runs[s.runID]
	for key := range keys {
		if isReserved(key) {
			continue
		}
		delete(keys, key)
	}
	return nil
}
