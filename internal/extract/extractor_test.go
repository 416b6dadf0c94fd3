package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/expense-bot/internal/expense"
	"github.com/shopspring/decimal"
)

// mockGenerator is a mock implementation of Generator for testing.
type mockGenerator struct {
	GenerateFunc func(ctx context.Context, prompt string) (string, error)
	calls        int
	prompts      []string
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt)
	}
	return "[]", nil
}

var testNow = func() time.Time {
	return time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)
}

// newTestExtractor records the waits instead of sleeping.
func newTestExtractor(gen Generator, waits *[]time.Duration) *Extractor {
	return NewExtractor(gen, Options{
		Now: testNow,
		Sleep: func(ctx context.Context, d time.Duration) error {
			if waits != nil {
				*waits = append(*waits, d)
			}
			return ctx.Err()
		},
	})
}

func TestExtract_EmptyInput(t *testing.T) {
	gen := &mockGenerator{}
	ex := newTestExtractor(gen, nil)

	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := ex.Extract(context.Background(), input)
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Extract(%q) error = %v, want ErrEmptyInput", input, err)
		}
		if !IsInputError(err) {
			t.Errorf("IsInputError(%v) = false", err)
		}
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times for empty input", gen.calls)
	}
}

func TestExtract_Success(t *testing.T) {
	gen := &mockGenerator{
		GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
			return "```json\n[{\"description\":\"lunch\",\"amount\":150,\"category\":\"Food\"}," +
				"{\"description\":\"jeep\",\"amount\":13.5,\"category\":\"transportation\"}," +
				"{\"description\":\"gadget\",\"amount\":999,\"category\":\"Electronics\"}]\n```", nil
		},
	}
	ex := newTestExtractor(gen, nil)

	records, err := ex.Extract(context.Background(), "lunch 150, jeep 13.50, gadget 999")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := []expense.Record{
		expense.NewRecord("10/19/2026", "lunch", decimal.NewFromInt(150), "Food"),
		expense.NewRecord("10/19/2026", "jeep", decimal.RequireFromString("13.5"), "Transportation"),
		expense.NewRecord("10/19/2026", "gadget", decimal.NewFromInt(999), "Other"),
	}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for i := range want {
		if !records[i].Equal(want[i]) {
			t.Errorf("record %d = %+v, want %+v", i, records[i], want[i])
		}
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}
	if !strings.Contains(gen.prompts[0], "lunch 150, jeep 13.50, gadget 999") {
		t.Error("prompt does not embed the message text")
	}
	if !strings.Contains(gen.prompts[0], "Philippine Peso") {
		t.Error("prompt does not state the default currency")
	}
}

func TestExtract_NothingExtracted(t *testing.T) {
	ex := newTestExtractor(&mockGenerator{}, nil)
	records, err := ex.Extract(context.Background(), "what a nice day")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("Extract() = %#v, want empty non-nil slice", records)
	}
}

func TestExtract_TransientExhaustsRetriesThenFallsBack(t *testing.T) {
	gen := &mockGenerator{
		GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", Transient(503, errors.New("model overloaded"))
		},
	}
	var waits []time.Duration
	ex := newTestExtractor(gen, &waits)

	records, err := ex.Extract(context.Background(), "taxi fare 80")
	if err != nil {
		t.Fatalf("Extract() error = %v, want nil on transient failure", err)
	}
	if gen.calls != 3 {
		t.Errorf("generator called %d times, want exactly 3", gen.calls)
	}
	wantWaits := []time.Duration{time.Second, 2 * time.Second}
	if len(waits) != len(wantWaits) {
		t.Fatalf("waited %v, want %v", waits, wantWaits)
	}
	for i := range wantWaits {
		if waits[i] != wantWaits[i] {
			t.Errorf("wait %d = %v, want %v", i, waits[i], wantWaits[i])
		}
	}

	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 fallback record", len(records))
	}
	r := records[0]
	if r.Category != expense.CategoryTransportation {
		t.Errorf("Category = %q, want Transportation", r.Category)
	}
	if !r.Amount.Equal(decimal.NewFromInt(80)) {
		t.Errorf("Amount = %s, want 80", r.Amount)
	}
	if r.Date != "10/19/2026" {
		t.Errorf("Date = %q, want capture date", r.Date)
	}
}

func TestExtract_TransientThenSuccess(t *testing.T) {
	gen := &mockGenerator{}
	gen.GenerateFunc = func(ctx context.Context, prompt string) (string, error) {
		if gen.calls == 1 {
			return "", Transient(429, errors.New("rate limited"))
		}
		return `[{"description":"coffee","amount":120,"category":"Food"}]`, nil
	}
	ex := newTestExtractor(gen, nil)

	records, err := ex.Extract(context.Background(), "coffee 120")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if gen.calls != 2 {
		t.Errorf("generator called %d times, want 2", gen.calls)
	}
	if len(records) != 1 || records[0].Description != "coffee" {
		t.Errorf("Extract() = %+v", records)
	}
}

func TestExtract_PermanentErrorNotRetried(t *testing.T) {
	gen := &mockGenerator{
		GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", Permanent(400, errors.New("bad request"))
		},
	}
	ex := newTestExtractor(gen, nil)

	_, err := ex.Extract(context.Background(), "lunch 150")
	if err == nil {
		t.Fatal("Extract() error = nil, want permanent error")
	}
	if IsTransient(err) {
		t.Error("permanent error reported as transient")
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}
}

func TestExtract_MalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "I could not find any expenses, sorry!"},
		{"object instead of array", `{"description":"lunch","amount":150}`},
		{"amount as string", `[{"description":"lunch","amount":"150","category":"Food"}]`},
		{"negative amount", `[{"description":"refund","amount":-20,"category":"Other"}]`},
		{"missing amount", `[{"description":"lunch","category":"Food"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{
				GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
					return tt.raw, nil
				},
			}
			ex := newTestExtractor(gen, nil)

			_, err := ex.Extract(context.Background(), "lunch 150")
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("Extract() error = %v, want ErrMalformedResponse", err)
			}
			if gen.calls != 1 {
				t.Errorf("generator called %d times, want 1", gen.calls)
			}
		})
	}
}

func TestExtract_Unavailable(t *testing.T) {
	ex := newTestExtractor(nil, nil)
	if ex.Available() {
		t.Fatal("extractor without generator should be unavailable")
	}

	records, err := ex.Extract(context.Background(), "haircut 250")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(records) != 1 || records[0].Category != expense.CategoryPersonal {
		t.Errorf("Extract() = %+v, want one Personal record", records)
	}
}

func TestExtract_TruncatesLongInput(t *testing.T) {
	gen := &mockGenerator{}
	ex := NewExtractor(gen, Options{MaxInputRunes: 10, Now: testNow})

	_, err := ex.Extract(context.Background(), "ñññññññññññññññ 150")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	prompt := gen.prompts[0]
	if !strings.Contains(prompt, "ññññññññññ"+TruncationMarker) {
		t.Errorf("prompt does not contain truncated text:\n%s", prompt)
	}
	if strings.Contains(prompt, "150") {
		t.Error("prompt contains text past the truncation point")
	}
}

func TestExtract_CancelledWhileWaiting(t *testing.T) {
	gen := &mockGenerator{
		GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", Transient(503, errors.New("unavailable"))
		},
	}
	ex := NewExtractor(gen, Options{Now: testNow})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ex.Extract(ctx, "lunch 150")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Extract() error = %v, want context.Canceled", err)
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := DefaultRetryPolicy()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{10, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("abcdef", 3); got != "abc"+TruncationMarker {
		t.Errorf("truncate() = %q", got)
	}
}
