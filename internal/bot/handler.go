// Package bot turns Telegram updates into recorder calls and answers every
// triggering message exactly once.
package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/expense-bot/internal/dedup"
	"github.com/dvloznov/expense-bot/internal/extract"
	"github.com/dvloznov/expense-bot/internal/logger"
	"github.com/dvloznov/expense-bot/internal/pipeline"
	"github.com/dvloznov/expense-bot/internal/store"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Recorder is the part of pipeline.Recorder the handler needs.
type Recorder interface {
	Record(ctx context.Context, msg pipeline.Message) (*pipeline.Result, error)
	Summary(ctx context.Context) (*pipeline.SummaryResult, error)
	Download(ctx context.Context) (store.Location, error)
	Currency() string
}

// Sender delivers a text reply to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, replyTo int, text string) error
}

// Options configures a Handler.
type Options struct {
	// Seen drops re-delivered updates when set.
	Seen *dedup.Cache

	// Debug appends internal error details to failure replies.
	Debug bool
}

// Handler routes updates.
type Handler struct {
	recorder Recorder
	sender   Sender
	opts     Options
}

// NewHandler creates a Handler.
func NewHandler(recorder Recorder, sender Sender, opts Options) *Handler {
	return &Handler{recorder: recorder, sender: sender, opts: opts}
}

// replier sends at most one message for one inbound update.
type replier struct {
	sender  Sender
	chatID  int64
	replyTo int

	mu   sync.Mutex
	sent bool
}

func (r *replier) send(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent {
		return nil
	}
	r.sent = true
	return r.sender.Send(ctx, r.chatID, r.replyTo, clip(text))
}

func (r *replier) replied() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}

// HandleUpdate processes one update. Updates without a new message are
// ignored. Every other update gets exactly one reply, including when the
// processing panics. The returned error reports a failed reply only.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) (err error) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return nil
	}

	log := logger.FromContext(ctx).With().
		Int("update_id", update.UpdateID).
		Int64("chat_id", msg.Chat.ID).
		Int("message_id", msg.MessageID).
		Logger()
	ctx = logger.WithContext(ctx, log)

	if h.opts.Seen != nil && h.opts.Seen.Seen(dedup.Key(msg.Chat.ID, msg.MessageID)) {
		log.Info().Msg("Ignoring re-delivered update")
		return nil
	}

	r := &replier{sender: h.sender, chatID: msg.Chat.ID, replyTo: msg.MessageID}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("stack", string(debug.Stack())).Msg("Handler panicked")
			if r.replied() {
				err = fmt.Errorf("HandleUpdate: panic after reply: %v", p)
				return
			}
			err = r.send(ctx, h.withDetail(internalErrorText, fmt.Errorf("panic: %v", p)))
		}
	}()

	reply := h.route(ctx, msg)
	if err := r.send(ctx, reply); err != nil {
		return fmt.Errorf("HandleUpdate: sending reply: %w", err)
	}
	return nil
}

func (h *Handler) route(ctx context.Context, msg *tgbotapi.Message) string {
	kind := Classify(msg)
	log := logger.FromContext(ctx)
	log.Debug().Str("kind", kind.String()).Msg("Classified message")

	switch kind {
	case KindCommand:
		return h.command(ctx, msg)
	case KindReportLike:
		return reportLikeText
	case KindNonText, KindTooShort, KindGreeting:
		return guidanceText
	}

	res, err := h.recorder.Record(ctx, toPipelineMessage(msg))
	if err != nil {
		log.Error().Err(err).Msg("Recording expenses failed")
		return h.replyForError(err)
	}
	if len(res.Added) == 0 {
		return nothingFoundText
	}
	return confirmationText(res, h.recorder.Currency())
}

func (h *Handler) command(ctx context.Context, msg *tgbotapi.Message) string {
	log := logger.FromContext(ctx)

	switch commandName(msg) {
	case "start":
		return startText
	case "help":
		return guidanceText
	case "summary", "total", "report":
		sum, err := h.recorder.Summary(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Building summary failed")
			return h.withDetail(summaryFailedText, err)
		}
		return summaryText(sum, h.recorder.Currency())
	case "download", "file", "csv":
		loc, err := h.recorder.Download(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return noDownloadText
		}
		if err != nil {
			log.Error().Err(err).Msg("Locating document failed")
			return h.withDetail(summaryFailedText, err)
		}
		return downloadText(loc.URL)
	default:
		return unknownCommandText
	}
}

// replyForError maps a recording failure to the user-facing reply.
func (h *Handler) replyForError(err error) string {
	switch {
	case extract.IsInputError(err):
		return guidanceText
	case errors.Is(err, extract.ErrMalformedResponse):
		return h.withDetail(unreadableText, err)
	case errors.Is(err, store.ErrConflict):
		return h.withDetail(busyText, err)
	default:
		return h.withDetail(saveFailedText, err)
	}
}

func (h *Handler) withDetail(text string, err error) string {
	if !h.opts.Debug || err == nil {
		return text
	}
	return text + "\n\nDetails: " + err.Error()
}

func toPipelineMessage(msg *tgbotapi.Message) pipeline.Message {
	m := pipeline.Message{
		ChatID:     msg.Chat.ID,
		MessageID:  msg.MessageID,
		Text:       strings.TrimSpace(msg.Text),
		ReceivedAt: time.Now(),
	}
	if msg.Date != 0 {
		m.ReceivedAt = msg.Time()
	}
	if from := msg.From; from != nil {
		m.SenderID = from.ID
		m.SenderName = from.UserName
		if m.SenderName == "" {
			m.SenderName = strings.TrimSpace(from.FirstName + " " + from.LastName)
		}
	}
	return m
}
