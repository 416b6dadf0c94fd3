// Package store persists the expense document as one whole-text resource.
// Backends: Google Cloud Storage (optimistic generation checks), Google
// Sheets (one row per line) and an in-memory store for tests and local runs.
package store

import (
	"context"
	"errors"
)

var (
	// ErrConflict is returned by Write when the document changed since the
	// snapshot the caller based its write on.
	ErrConflict = errors.New("store: document changed concurrently")

	// ErrNotFound is returned by Locate when nothing has been written yet.
	ErrNotFound = errors.New("store: document not found")
)

// Version is an opaque optimistic concurrency token. Zero means the document
// does not exist yet.
type Version int64

// Snapshot is the document text together with the version it was read at.
type Snapshot struct {
	Text    string
	Version Version
}

// Location is where users can fetch the current document.
type Location struct {
	URL string
}

// DocumentStore reads and replaces the whole document.
type DocumentStore interface {
	// Read returns the freshest document. A missing document is not an
	// error: the canonical initial document is returned with version zero.
	Read(ctx context.Context) (Snapshot, error)

	// Write replaces the document. base is the version of the snapshot the
	// text was derived from; backends that track versions return
	// ErrConflict when it no longer matches.
	Write(ctx context.Context, text string, base Version) (Location, error)

	// Locate returns a download location for the current document.
	Locate(ctx context.Context) (Location, error)
}

// Backend names accepted by configuration.
const (
	BackendGCS    = "gcs"
	BackendSheets = "sheets"
	BackendMemory = "memory"
)

// DefaultObjectName is the stable name of the document.
const DefaultObjectName = "expenses.csv"

// NoCache is set on every written object so CDN and browser caches never
// serve a stale document.
const NoCache = "no-cache, no-store, max-age=0"
