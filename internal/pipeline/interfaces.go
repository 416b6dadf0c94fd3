package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/expense-bot/internal/expense"
)

// Message is one inbound expense message.
type Message struct {
	ChatID     int64
	MessageID  int
	SenderID   int64
	SenderName string
	Text       string
	ReceivedAt time.Time
}

// Extractor turns message text into records.
// This interface enables mocking of the AI extraction client.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]expense.Record, error)
}

// Mirror receives a copy of every newly recorded batch. Mirrors are
// best-effort: a failing mirror never fails the request.
type Mirror interface {
	Name() string
	Mirror(ctx context.Context, msg Message, records []expense.Record) error
}
