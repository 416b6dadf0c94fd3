// Package extract turns free-form expense text into expense records using a
// generative model, with bounded retries and a deterministic local fallback.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dvloznov/expense-bot/internal/expense"
	"github.com/dvloznov/expense-bot/internal/logger"
)

const (
	// DefaultMaxInputRunes bounds the text submitted to the model.
	DefaultMaxInputRunes = 1000

	// TruncationMarker is appended to input cut at the bound.
	TruncationMarker = "... [truncated]"
)

// Generator sends a prompt to a generative model and returns its raw text.
// Failures should be *TransportError so the retry loop can classify them.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RetryPolicy bounds retries of transient generator failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is three attempts with 1s, 2s waits in between.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    8 * time.Second,
	}
}

// Delay returns the wait before the attempt following attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * multiplier)
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Options configures an Extractor. Zero values fall back to defaults.
type Options struct {
	Retry         RetryPolicy
	MaxInputRunes int
	Currency      string
	Location      *time.Location

	// Now and Sleep are replaced in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Extractor implements the extraction contract over a Generator.
type Extractor struct {
	gen  Generator
	opts Options
}

// NewExtractor builds an Extractor. A nil generator is allowed: the
// extractor then reports Available() == false and every call goes straight
// to the heuristic parser.
func NewExtractor(gen Generator, opts Options) *Extractor {
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.MaxInputRunes <= 0 {
		opts.MaxInputRunes = DefaultMaxInputRunes
	}
	if opts.Currency == "" {
		opts.Currency = "PHP"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = waitWithContext
	}
	return &Extractor{gen: gen, opts: opts}
}

// Available reports whether a model transport is configured.
func (e *Extractor) Available() bool {
	return e != nil && e.gen != nil
}

// Extract returns the records found in text. An empty slice means nothing
// was extracted. Transient model failures never surface as errors: once the
// retry budget is spent the heuristic parser answers instead.
func (e *Extractor) Extract(ctx context.Context, text string) ([]expense.Record, error) {
	log := logger.FromContext(ctx)

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	date := expense.FormatDate(e.opts.Now().In(e.opts.Location))

	if !e.Available() {
		log.Warn().Msg("AI extraction unavailable, using heuristic parser")
		return []expense.Record{ParseHeuristic(text, date)}, nil
	}

	prompt := buildExtractionPrompt(truncate(text, e.opts.MaxInputRunes), e.opts.Currency)

	var lastErr error
	for attempt := 1; attempt <= e.opts.Retry.MaxAttempts; attempt++ {
		raw, err := e.gen.Generate(ctx, prompt)
		if err == nil {
			records, perr := parseModelResponse(raw, date)
			if perr != nil {
				return nil, fmt.Errorf("Extract: %w", perr)
			}
			log.Debug().Int("attempt", attempt).Int("records", len(records)).Msg("Extracted expenses")
			return records, nil
		}

		if !IsTransient(err) {
			return nil, fmt.Errorf("Extract: generate: %w", err)
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Msg("Transient model failure")

		if attempt == e.opts.Retry.MaxAttempts {
			break
		}
		if werr := e.opts.Sleep(ctx, e.opts.Retry.Delay(attempt)); werr != nil {
			return nil, fmt.Errorf("Extract: waiting to retry: %w", werr)
		}
	}

	log.Warn().Err(lastErr).Int("attempts", e.opts.Retry.MaxAttempts).Msg("Retries exhausted, using heuristic parser")
	return []expense.Record{ParseHeuristic(text, date)}, nil
}

// truncate cuts text to max runes and appends TruncationMarker when cut.
func truncate(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max]) + TruncationMarker
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsInputError reports whether err is a caller input problem rather than a
// system failure.
func IsInputError(err error) bool {
	return errors.Is(err, ErrEmptyInput)
}
