package bot

import (
	"strings"
	"unicode"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Kind classifies an inbound message before it reaches the recorder.
type Kind int

const (
	KindExpense Kind = iota
	KindNonText
	KindCommand
	KindTooShort
	KindGreeting
	KindReportLike
)

func (k Kind) String() string {
	switch k {
	case KindExpense:
		return "expense"
	case KindNonText:
		return "non_text"
	case KindCommand:
		return "command"
	case KindTooShort:
		return "too_short"
	case KindGreeting:
		return "greeting"
	case KindReportLike:
		return "report_like"
	default:
		return "unknown"
	}
}

// minExpenseRunes is the shortest text sent to the recorder.
const minExpenseRunes = 3

var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yo": true, "sup": true,
	"thanks": true, "thank you": true, "thx": true, "ty": true,
	"ok": true, "okay": true, "k": true, "cool": true, "nice": true,
	"good morning": true, "good afternoon": true, "good evening": true, "good night": true,
	"gm": true, "bye": true, "test": true,
}

// Classify decides how a message is handled.
func Classify(msg *tgbotapi.Message) Kind {
	text := strings.TrimSpace(msg.Text)
	switch {
	case text == "":
		return KindNonText
	case msg.IsCommand() || strings.HasPrefix(text, "/"):
		return KindCommand
	case utf8.RuneCountInString(text) < minExpenseRunes:
		return KindTooShort
	case greetings[normalizeGreeting(text)]:
		return KindGreeting
	case looksLikeReport(text):
		return KindReportLike
	default:
		return KindExpense
	}
}

func normalizeGreeting(text string) string {
	text = strings.ToLower(text)
	text = strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.Is(unicode.So, r)
	})
	return strings.Join(strings.Fields(text), " ")
}

// looksLikeReport spots text pasted back from a previously generated
// document: a preamble line or the header row.
func looksLikeReport(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# Expense Report") || strings.HasPrefix(line, "# Total Amount:") {
			return true
		}
		if strings.HasPrefix(strings.ToLower(line), "date,description,amount") {
			return true
		}
	}
	return false
}

// commandName returns the command without the leading slash or a
// "@botname" suffix, lower-cased.
func commandName(msg *tgbotapi.Message) string {
	if msg.IsCommand() {
		return strings.ToLower(msg.Command())
	}
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 {
		return ""
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}
