package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-bot/internal/expense"
	"github.com/dvloznov/expense-bot/internal/ledger"
	"github.com/dvloznov/expense-bot/internal/logger"
	"github.com/dvloznov/expense-bot/internal/store"
	"golang.org/x/sync/errgroup"
)

// PipelineStep represents a single step in the recording pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Message  Message
	Added    []expense.Record
	Snapshot store.Snapshot
	Existing []expense.Record
	Merged   []expense.Record
	Document string
	Location store.Location
}

// resetPersist clears everything derived from the stored document so the
// read-merge-write steps can run again after a conflict.
func (s *PipelineState) resetPersist() {
	s.Snapshot = store.Snapshot{}
	s.Existing = nil
	s.Merged = nil
	s.Document = ""
	s.Location = store.Location{}
}

// ExtractStep turns the message text into new records.
type ExtractStep struct {
	Extractor Extractor
}

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	records, err := s.Extractor.Extract(ctx, state.Message.Text)
	if err != nil {
		return err
	}
	state.Added = records
	return nil
}

// ReadDocumentStep loads the current document and parses its records.
type ReadDocumentStep struct {
	Store store.DocumentStore
}

func (s *ReadDocumentStep) Execute(ctx context.Context, state *PipelineState) error {
	snap, err := s.Store.Read(ctx)
	if err != nil {
		return err
	}
	state.Snapshot = snap
	state.Existing = ledger.Parse(snap.Text)
	return nil
}

// MergeStep appends the new records and renders the full document.
type MergeStep struct {
	Options ledger.Options
}

func (s *MergeStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Merged = ledger.Merge(state.Existing, state.Added)
	state.Document = ledger.Render(state.Merged, s.Options)
	return nil
}

// WriteDocumentStep replaces the stored document, based on the version read.
type WriteDocumentStep struct {
	Store store.DocumentStore
}

func (s *WriteDocumentStep) Execute(ctx context.Context, state *PipelineState) error {
	loc, err := s.Store.Write(ctx, state.Document, state.Snapshot.Version)
	if err != nil {
		return err
	}
	state.Location = loc
	return nil
}

// MirrorStep copies the new records to every mirror concurrently. Mirror
// failures are logged and swallowed.
type MirrorStep struct {
	Mirrors []Mirror
}

func (s *MirrorStep) Execute(ctx context.Context, state *PipelineState) error {
	if len(s.Mirrors) == 0 || len(state.Added) == 0 {
		return nil
	}
	log := logger.FromContext(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range s.Mirrors {
		g.Go(func() error {
			if err := m.Mirror(gctx, state.Message, state.Added); err != nil {
				log.Warn().Err(err).Str("mirror", m.Name()).Msg("Mirror failed")
			}
			return nil
		})
	}
	return g.Wait()
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
