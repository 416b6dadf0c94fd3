package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore("initial")

	snap, err := m.Read(ctx)
	if err != nil || snap.Text != "initial" || snap.Version != 0 {
		t.Fatalf("Read() = %+v, %v", snap, err)
	}
	if _, err := m.Locate(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Locate() error = %v, want ErrNotFound", err)
	}

	if _, err := m.Write(ctx, "one", snap.Version); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := m.Write(ctx, "stale", snap.Version); !errors.Is(err, ErrConflict) {
		t.Errorf("stale Write() error = %v, want ErrConflict", err)
	}

	snap, _ = m.Read(ctx)
	if snap.Text != "one" || snap.Version != 1 {
		t.Errorf("Read() = %+v", snap)
	}
	if m.Writes() != 1 {
		t.Errorf("Writes() = %d, want 1", m.Writes())
	}
	loc, err := m.Locate(ctx)
	if err != nil || loc.URL != "memory://expenses.csv?v=1" {
		t.Errorf("Locate() = %+v, %v", loc, err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Config{Backend: "ftp"}); err == nil {
		t.Fatal("Open() error = nil for unknown backend")
	}
	opened, err := Open(context.Background(), Config{Backend: BackendMemory, InitialDocument: "x"})
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	if snap, _ := opened.Store.Read(context.Background()); snap.Text != "x" {
		t.Errorf("memory store initial document = %q", snap.Text)
	}
	if err := opened.Cleanup(); err != nil {
		t.Errorf("Cleanup() error = %v", err)
	}
}
