// Package pipeline records inbound expense messages: extract, read the
// document, merge, write it back, then mirror the new records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/expense-bot/internal/expense"
	"github.com/dvloznov/expense-bot/internal/extract"
	"github.com/dvloznov/expense-bot/internal/ledger"
	"github.com/dvloznov/expense-bot/internal/logger"
	"github.com/dvloznov/expense-bot/internal/store"
	"github.com/shopspring/decimal"
)

const (
	// DefaultMaxConflictRetries bounds re-runs of read-merge-write after a
	// concurrent writer won.
	DefaultMaxConflictRetries = 3

	// DefaultRequestTimeout bounds one Record call.
	DefaultRequestTimeout = 60 * time.Second

	// documentKey names the single shared document in the lock.
	documentKey = "document"
)

// Options configures a Recorder.
type Options struct {
	Currency           string
	Location           *time.Location
	MaxConflictRetries int
	RequestTimeout     time.Duration
	Now                func() time.Time
}

// Result is what the caller reports back to the user after a Record call.
type Result struct {
	Added      []expense.Record
	Subtotal   decimal.Decimal
	GrandTotal decimal.Decimal
	Count      int
	Location   store.Location
	Attempts   int
}

// SummaryResult is the report over the whole document.
type SummaryResult struct {
	Report   ledger.Report
	Location store.Location
}

// Recorder runs the merge algorithm for one shared document.
type Recorder struct {
	extractor Extractor
	store     store.DocumentStore
	mirrors   []Mirror
	locks     *KeyedMutex
	opts      Options
}

// NewRecorder wires a Recorder. Mirrors may be empty.
func NewRecorder(extractor Extractor, docs store.DocumentStore, mirrors []Mirror, opts Options) *Recorder {
	if opts.Currency == "" {
		opts.Currency = ledger.DefaultCurrency
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxConflictRetries < 0 {
		opts.MaxConflictRetries = 0
	} else if opts.MaxConflictRetries == 0 {
		opts.MaxConflictRetries = DefaultMaxConflictRetries
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Recorder{
		extractor: extractor,
		store:     docs,
		mirrors:   mirrors,
		locks:     NewKeyedMutex(),
		opts:      opts,
	}
}

func (r *Recorder) ledgerOptions() ledger.Options {
	return ledger.Options{Currency: r.opts.Currency, Location: r.opts.Location, Now: r.opts.Now}
}

// Record extracts the expenses in msg and appends them to the document.
// A message with nothing to record returns a Result with no records and
// does not touch the store.
func (r *Recorder) Record(ctx context.Context, msg Message) (*Result, error) {
	if strings.TrimSpace(msg.Text) == "" {
		return nil, extract.ErrEmptyInput
	}
	if r.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.RequestTimeout)
		defer cancel()
	}

	log := logger.FromContext(ctx).With().
		Int64("chat_id", msg.ChatID).
		Int("message_id", msg.MessageID).
		Logger()
	ctx = logger.WithContext(ctx, log)

	state := &PipelineState{Message: msg}

	extraction := NewPipeline(&ExtractStep{Extractor: r.extractor})
	if err := extraction.Execute(ctx, state); err != nil {
		return nil, fmt.Errorf("Record: extracting: %w", err)
	}
	if len(state.Added) == 0 {
		log.Info().Msg("No expenses found in message")
		return &Result{Subtotal: decimal.Zero, GrandTotal: decimal.Zero}, nil
	}

	attempts, err := r.persist(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("Record: saving: %w", err)
	}

	mirror := NewPipeline(&MirrorStep{Mirrors: r.mirrors})
	if err := mirror.Execute(ctx, state); err != nil {
		log.Warn().Err(err).Msg("Mirroring failed")
	}

	result := &Result{
		Added:      state.Added,
		Subtotal:   expense.Sum(state.Added),
		GrandTotal: expense.Sum(state.Merged),
		Count:      len(state.Merged),
		Location:   state.Location,
		Attempts:   attempts,
	}
	log.Info().
		Int("added", len(result.Added)).
		Str("subtotal", result.Subtotal.StringFixed(2)).
		Int("records", result.Count).
		Int("attempts", attempts).
		Msg("Recorded expenses")
	return result, nil
}

// persist holds the document lock across read-merge-write and re-runs those
// steps when another process wrote in between. Extraction is not repeated.
func (r *Recorder) persist(ctx context.Context, state *PipelineState) (int, error) {
	unlock, err := r.locks.Lock(ctx, documentKey)
	if err != nil {
		return 0, fmt.Errorf("waiting for document lock: %w", err)
	}
	defer unlock()

	steps := NewPipeline(
		&ReadDocumentStep{Store: r.store},
		&MergeStep{Options: r.ledgerOptions()},
		&WriteDocumentStep{Store: r.store},
	)

	maxAttempts := 1 + r.opts.MaxConflictRetries
	for attempt := 1; ; attempt++ {
		state.resetPersist()
		err := steps.Execute(ctx, state)
		if err == nil {
			return attempt, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt >= maxAttempts {
			return attempt, err
		}
		log := logger.FromContext(ctx)
		log.Warn().Int("attempt", attempt).Msg("Document changed concurrently, retrying")
	}
}

// Summary reports over every stored record.
func (r *Recorder) Summary(ctx context.Context) (*SummaryResult, error) {
	snap, err := r.store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("Summary: %w", err)
	}
	report := ledger.Summarize(ledger.Parse(snap.Text))
	if report.Empty {
		return &SummaryResult{Report: report}, nil
	}

	loc, err := r.store.Locate(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Locating document failed")
	}
	return &SummaryResult{Report: report, Location: loc}, nil
}

// Download returns a link to the current document. It returns
// store.ErrNotFound when nothing has been recorded yet.
func (r *Recorder) Download(ctx context.Context) (store.Location, error) {
	loc, err := r.store.Locate(ctx)
	if err != nil {
		return store.Location{}, fmt.Errorf("Download: %w", err)
	}
	return loc, nil
}

// Currency is the configured currency code.
func (r *Recorder) Currency() string {
	return r.opts.Currency
}
