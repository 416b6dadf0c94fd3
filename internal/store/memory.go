package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps the document in process. It tracks versions exactly
// like GCSStore, so conflicts behave the same.
type MemoryStore struct {
	mu              sync.Mutex
	text            string
	version         Version
	initialDocument string
	writes          int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(initialDocument string) *MemoryStore {
	return &MemoryStore{initialDocument: initialDocument}
}

func (m *MemoryStore) Read(_ context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.version == 0 {
		return Snapshot{Text: m.initialDocument}, nil
	}
	return Snapshot{Text: m.text, Version: m.version}, nil
}

func (m *MemoryStore) Write(_ context.Context, text string, base Version) (Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if base != m.version {
		return Location{}, fmt.Errorf("store: write memory document at version %d (current %d): %w", base, m.version, ErrConflict)
	}
	m.text = text
	m.version++
	m.writes++
	return m.location(), nil
}

func (m *MemoryStore) Locate(_ context.Context) (Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.version == 0 {
		return Location{}, ErrNotFound
	}
	return m.location(), nil
}

// Writes reports how many writes succeeded.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *MemoryStore) location() Location {
	return Location{URL: fmt.Sprintf("memory://%s?v=%d", DefaultObjectName, m.version)}
}
