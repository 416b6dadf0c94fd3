// Package app wires the configured store, extractor and mirrors into a
// Recorder shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-bot/internal/config"
	"github.com/dvloznov/expense-bot/internal/extract"
	infraBQ "github.com/dvloznov/expense-bot/internal/infra/bigquery"
	"github.com/dvloznov/expense-bot/internal/logger"
	"github.com/dvloznov/expense-bot/internal/notionsync"
	"github.com/dvloznov/expense-bot/internal/pipeline"
	"github.com/dvloznov/expense-bot/internal/store"
)

// App holds the long-lived collaborators behind a Recorder.
type App struct {
	Recorder  *pipeline.Recorder
	Extractor *extract.Extractor
	Store     store.DocumentStore

	BigQuery *infraBQ.ExpenseMirror
	Notion   *notionsync.ExpenseMirror

	closers []func() error
}

// New builds everything from cfg. Call cfg.Validate first.
// A missing or broken Gemini setup is not fatal: extraction then runs on
// the heuristic parser only.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.FromContext(ctx)
	a := &App{}

	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	opened, err := store.Open(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.Store = opened.Store
	a.closers = append(a.closers, opened.Cleanup)

	var gen extract.Generator
	gemini, err := extract.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Warn().Err(err).Msg("Gemini unavailable, running in degraded mode")
	} else {
		gen = gemini
		log.Info().Str("model", cfg.GeminiModel).Msg("Initialized Gemini extractor")
	}
	a.Extractor = extract.NewExtractor(gen, extract.Options{
		Retry:         cfg.RetryPolicy(),
		MaxInputRunes: cfg.AIMaxInput,
		Currency:      cfg.Currency,
		Location:      cfg.Location(),
	})

	var mirrors []pipeline.Mirror
	if cfg.BigQueryProject != "" && cfg.BigQueryDataset != "" {
		bq, err := infraBQ.NewExpenseMirror(ctx, cfg.BigQueryProject, cfg.BigQueryDataset, cfg.Currency)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.BigQuery = bq
		a.closers = append(a.closers, bq.Close)
		mirrors = append(mirrors, bq)
		log.Info().Str("project", cfg.BigQueryProject).Str("dataset", cfg.BigQueryDataset).Msg("BigQuery mirror enabled")
	}
	if cfg.NotionToken != "" && cfg.NotionDatabaseID != "" {
		a.Notion = notionsync.NewExpenseMirror(notionsync.NewNotionClient(cfg.NotionToken), cfg.NotionDatabaseID, cfg.Currency)
		mirrors = append(mirrors, a.Notion)
		log.Info().Str("database_id", cfg.NotionDatabaseID).Msg("Notion mirror enabled")
	}

	a.Recorder = pipeline.NewRecorder(a.Extractor, a.Store, mirrors, pipeline.Options{
		Currency:       cfg.Currency,
		Location:       cfg.Location(),
		RequestTimeout: cfg.RequestTimeout,
	})
	return a, nil
}

// Close releases every client in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
