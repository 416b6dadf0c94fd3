package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/dvloznov/expense-bot/internal/dedup"
	"github.com/dvloznov/expense-bot/internal/expense"
	"github.com/dvloznov/expense-bot/internal/extract"
	"github.com/dvloznov/expense-bot/internal/ledger"
	"github.com/dvloznov/expense-bot/internal/pipeline"
	"github.com/dvloznov/expense-bot/internal/store"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

// MockRecorder is a mock implementation of Recorder for testing.
type MockRecorder struct {
	RecordFunc   func(ctx context.Context, msg pipeline.Message) (*pipeline.Result, error)
	SummaryFunc  func(ctx context.Context) (*pipeline.SummaryResult, error)
	DownloadFunc func(ctx context.Context) (store.Location, error)

	recorded []pipeline.Message
}

func (m *MockRecorder) Record(ctx context.Context, msg pipeline.Message) (*pipeline.Result, error) {
	m.recorded = append(m.recorded, msg)
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, msg)
	}
	return &pipeline.Result{}, nil
}

func (m *MockRecorder) Summary(ctx context.Context) (*pipeline.SummaryResult, error) {
	if m.SummaryFunc != nil {
		return m.SummaryFunc(ctx)
	}
	return &pipeline.SummaryResult{Report: ledger.Summarize(nil)}, nil
}

func (m *MockRecorder) Download(ctx context.Context) (store.Location, error) {
	if m.DownloadFunc != nil {
		return m.DownloadFunc(ctx)
	}
	return store.Location{}, store.ErrNotFound
}

func (m *MockRecorder) Currency() string { return "PHP" }

// MockSender records every reply.
type MockSender struct {
	SendFunc func(ctx context.Context, chatID int64, replyTo int, text string) error

	mu      sync.Mutex
	replies []string
}

func (m *MockSender) Send(ctx context.Context, chatID int64, replyTo int, text string) error {
	m.mu.Lock()
	m.replies = append(m.replies, text)
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, chatID, replyTo, text)
	}
	return nil
}

func textUpdate(messageID int, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: messageID,
		Message: &tgbotapi.Message{
			MessageID: messageID,
			Chat:      &tgbotapi.Chat{ID: 42},
			From:      &tgbotapi.User{ID: 7, UserName: "ana"},
			Date:      1792400000,
			Text:      text,
		},
	}
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func onlyReply(t *testing.T, s *MockSender) string {
	t.Helper()
	if len(s.replies) != 1 {
		t.Fatalf("sent %d replies, want exactly 1: %q", len(s.replies), s.replies)
	}
	return s.replies[0]
}

func TestHandleUpdate_RecordsExpense(t *testing.T) {
	rec := &MockRecorder{
		RecordFunc: func(ctx context.Context, msg pipeline.Message) (*pipeline.Result, error) {
			added := []expense.Record{
				expense.NewRecord("10/19/2026", "lunch", amount("150"), "Food"),
				expense.NewRecord("10/19/2026", "taxi", amount("80"), "Transportation"),
			}
			return &pipeline.Result{
				Added:      added,
				Subtotal:   amount("230"),
				GrandTotal: amount("1230.5"),
				Count:      12,
				Location:   store.Location{URL: "https://example.com/expenses.csv"},
			}, nil
		},
	}
	sender := &MockSender{}
	h := NewHandler(rec, sender, Options{})

	if err := h.HandleUpdate(context.Background(), textUpdate(1, "  lunch 150, taxi 80 ")); err != nil {
		t.Fatalf("HandleUpdate() error = %v", err)
	}

	reply := onlyReply(t, sender)
	for _, want := range []string{
		"✅ Added 2 item(s) totalling ₱230.00.",
		"• lunch: ₱150.00 (Food)",
		"• taxi: ₱80.00 (Transportation)",
		"Running total: ₱1,230.50 (12 records).",
		"Download: https://example.com/expenses.csv",
	} {
		if !strings.Contains(reply, want) {
			t.Errorf("reply missing %q:\n%s", want, reply)
		}
	}

	if len(rec.recorded) != 1 {
		t.Fatalf("Record called %d times", len(rec.recorded))
	}
	got := rec.recorded[0]
	if got.Text != "lunch 150, taxi 80" || got.ChatID != 42 || got.SenderID != 7 || got.SenderName != "ana" {
		t.Errorf("recorded message = %+v", got)
	}
}

func TestHandleUpdate_FlagsZeroAmounts(t *testing.T) {
	rec := &MockRecorder{
		RecordFunc: func(ctx context.Context, msg pipeline.Message) (*pipeline.Result, error) {
			return &pipeline.Result{
				Added:      []expense.Record{expense.NewRecord("10/19/2026", "new shoes", decimal.Zero, "Other")},
				Subtotal:   decimal.Zero,
				GrandTotal: decimal.Zero,
				Count:      1,
			}, nil
		},
	}
	sender := &MockSender{}

	_ = NewHandler(rec, sender, Options{}).HandleUpdate(context.Background(), textUpdate(1, "new shoes"))

	if reply := onlyReply(t, sender); !strings.Contains(reply, "no amount found") {
		t.Errorf("reply does not flag zero amount:\n%s", reply)
	}
}

func TestHandleUpdate_Filtered(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "non-text", text: "", want: guidanceText},
		{name: "too short", text: "ok", want: guidanceText},
		{name: "greeting", text: "Good morning!", want: guidanceText},
		{name: "report pasted back", text: "# Expense Report\n# Total Amount: 10.00", want: reportLikeText},
		{name: "header pasted back", text: "Date,Description,Amount (PHP),Category", want: reportLikeText},
		{name: "start", text: "/start", want: startText},
		{name: "help with bot suffix", text: "/help@expense_bot", want: guidanceText},
		{name: "unknown command", text: "/delete", want: unknownCommandText},
		{name: "download before any write", text: "/download", want: noDownloadText},
		{name: "empty summary", text: "/summary", want: ledger.NoRecordsMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &MockRecorder{}
			sender := &MockSender{}

			if err := NewHandler(rec, sender, Options{}).HandleUpdate(context.Background(), textUpdate(1, tt.text)); err != nil {
				t.Fatalf("HandleUpdate() error = %v", err)
			}
			if got := onlyReply(t, sender); got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
			if len(rec.recorded) != 0 {
				t.Error("filtered message reached the recorder")
			}
		})
	}
}

func TestHandleUpdate_Commands(t *testing.T) {
	rec := &MockRecorder{
		SummaryFunc: func(ctx context.Context) (*pipeline.SummaryResult, error) {
			records := []expense.Record{expense.NewRecord("10/19/2026", "lunch", amount("150"), "Food")}
			return &pipeline.SummaryResult{
				Report:   ledger.Summarize(records),
				Location: store.Location{URL: "https://example.com/s"},
			}, nil
		},
		DownloadFunc: func(ctx context.Context) (store.Location, error) {
			return store.Location{URL: "https://example.com/d"}, nil
		},
	}

	sender := &MockSender{}
	h := NewHandler(rec, sender, Options{})
	_ = h.HandleUpdate(context.Background(), textUpdate(1, "/summary"))
	_ = h.HandleUpdate(context.Background(), textUpdate(2, "/download"))

	if len(sender.replies) != 2 {
		t.Fatalf("replies = %q", sender.replies)
	}
	if !strings.Contains(sender.replies[0], "Total: ₱150.00") || !strings.Contains(sender.replies[0], "Download: https://example.com/s") {
		t.Errorf("summary reply = %q", sender.replies[0])
	}
	if sender.replies[1] != downloadText("https://example.com/d") {
		t.Errorf("download reply = %q", sender.replies[1])
	}
}

func TestHandleUpdate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		debug     bool
		want      string
		wantExtra string
	}{
		{name: "input error", err: extract.ErrEmptyInput, want: guidanceText},
		{name: "malformed model response", err: fmt.Errorf("Record: %w", extract.ErrMalformedResponse), want: unreadableText},
		{name: "conflict exhausted", err: fmt.Errorf("saving: %w", store.ErrConflict), want: busyText},
		{name: "store failure hides detail", err: errors.New("bucket exploded"), want: saveFailedText},
		{name: "store failure with debug", err: errors.New("bucket exploded"), debug: true, want: saveFailedText, wantExtra: "Details: bucket exploded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &MockRecorder{
				RecordFunc: func(ctx context.Context, msg pipeline.Message) (*pipeline.Result, error) {
					return nil, tt.err
				},
			}
			sender := &MockSender{}

			if err := NewHandler(rec, sender, Options{Debug: tt.debug}).HandleUpdate(context.Background(), textUpdate(1, "lunch 150")); err != nil {
				t.Fatalf("HandleUpdate() error = %v", err)
			}
			reply := onlyReply(t, sender)
			if !strings.HasPrefix(reply, tt.want) {
				t.Errorf("reply = %q, want prefix %q", reply, tt.want)
			}
			if tt.wantExtra != "" && !strings.Contains(reply, tt.wantExtra) {
				t.Errorf("reply = %q, want %q", reply, tt.wantExtra)
			}
			if tt.wantExtra == "" && strings.Contains(reply, "Details:") {
				t.Errorf("reply leaks detail: %q", reply)
			}
		})
	}
}

func TestHandleUpdate_NothingFound(t *testing.T) {
	sender := &MockSender{}
	_ = NewHandler(&MockRecorder{}, sender, Options{}).HandleUpdate(context.Background(), textUpdate(1, "what is this"))

	if got := onlyReply(t, sender); got != nothingFoundText {
		t.Errorf("reply = %q", got)
	}
}

func TestHandleUpdate_PanicRepliesOnce(t *testing.T) {
	rec := &MockRecorder{
		RecordFunc: func(ctx context.Context, msg pipeline.Message) (*pipeline.Result, error) {
			panic("nil map")
		},
	}
	sender := &MockSender{}

	if err := NewHandler(rec, sender, Options{}).HandleUpdate(context.Background(), textUpdate(1, "lunch 150")); err != nil {
		t.Fatalf("HandleUpdate() error = %v", err)
	}
	if got := onlyReply(t, sender); got != internalErrorText {
		t.Errorf("reply = %q", got)
	}
}

func TestHandleUpdate_PanicAfterReplyDoesNotReplyAgain(t *testing.T) {
	sender := &MockSender{}
	sender.SendFunc = func(ctx context.Context, chatID int64, replyTo int, text string) error {
		panic("send exploded after delivery")
	}

	err := NewHandler(&MockRecorder{}, sender, Options{}).HandleUpdate(context.Background(), textUpdate(1, "/help"))
	if err == nil {
		t.Error("HandleUpdate() should report the panic")
	}
	onlyReply(t, sender)
}

func TestHandleUpdate_Dedup(t *testing.T) {
	rec := &MockRecorder{}
	sender := &MockSender{}
	h := NewHandler(rec, sender, Options{Seen: dedup.New(10)})

	_ = h.HandleUpdate(context.Background(), textUpdate(5, "lunch 150"))
	_ = h.HandleUpdate(context.Background(), textUpdate(5, "lunch 150"))

	if len(rec.recorded) != 1 || len(sender.replies) != 1 {
		t.Errorf("recorded %d, replied %d; want 1 and 1", len(rec.recorded), len(sender.replies))
	}
}

func TestHandleUpdate_IgnoresUpdatesWithoutMessage(t *testing.T) {
	sender := &MockSender{}
	err := NewHandler(&MockRecorder{}, sender, Options{}).HandleUpdate(context.Background(), tgbotapi.Update{
		UpdateID:      9,
		EditedMessage: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: 1}, Text: "lunch 200"},
	})
	if err != nil || len(sender.replies) != 0 {
		t.Errorf("err = %v, replies = %q", err, sender.replies)
	}
}

func TestHandleUpdate_SendFailure(t *testing.T) {
	sender := &MockSender{SendFunc: func(ctx context.Context, chatID int64, replyTo int, text string) error {
		return errors.New("chat not found")
	}}

	err := NewHandler(&MockRecorder{}, sender, Options{}).HandleUpdate(context.Background(), textUpdate(1, "/help"))
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("HandleUpdate() error = %v", err)
	}
}
