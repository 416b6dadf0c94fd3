package store

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-bot/internal/logger"
)

// Config selects and configures one backend.
type Config struct {
	Backend string

	// gcs
	Bucket  string
	Prefix  string
	Backups bool

	// sheets
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON []byte

	InitialDocument string
}

// Opened is a ready store plus the cleanup that releases its clients.
type Opened struct {
	Store   DocumentStore
	Cleanup func() error
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg Config) (*Opened, error) {
	log := logger.FromContext(ctx)

	switch cfg.Backend {
	case BackendGCS:
		client, err := NewGCSObjectClient(ctx, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("store.Open: %w", err)
		}
		log.Info().Str("backend", cfg.Backend).Str("bucket", cfg.Bucket).Str("prefix", cfg.Prefix).Msg("Initialized document store")
		return &Opened{
			Store: NewGCSStore(client, GCSOptions{
				Prefix:          cfg.Prefix,
				Backups:         cfg.Backups,
				InitialDocument: cfg.InitialDocument,
			}),
			Cleanup: client.Close,
		}, nil

	case BackendSheets:
		values, err := NewGoogleSheetValues(ctx, cfg.SpreadsheetID, cfg.CredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("store.Open: %w", err)
		}
		log.Info().Str("backend", cfg.Backend).Str("sheet", cfg.SheetName).Msg("Initialized document store")
		return &Opened{
			Store:   NewSheetsStore(values, cfg.SpreadsheetID, cfg.SheetName, cfg.InitialDocument),
			Cleanup: func() error { return nil },
		}, nil

	case BackendMemory:
		log.Warn().Str("backend", cfg.Backend).Msg("Using in-memory document store, data is lost on restart")
		return &Opened{
			Store:   NewMemoryStore(cfg.InitialDocument),
			Cleanup: func() error { return nil },
		}, nil

	default:
		return nil, fmt.Errorf("store.Open: unsupported backend %q", cfg.Backend)
	}
}
