package bot

import (
	"fmt"
	"strings"

	"github.com/dvloznov/expense-bot/internal/ledger"
	"github.com/dvloznov/expense-bot/internal/pipeline"
)

const (
	guidanceText = "Send me an expense in plain words, for example \"lunch 150\" or \"taxi fare 80\". " +
		"You can put several in one message.\n\n" +
		"/summary shows your totals\n/download sends a link to the spreadsheet file\n/help shows this message"

	startText = "👋 Hi! I keep track of your expenses.\n\n" + guidanceText

	reportLikeText = "That looks like a report I generated earlier, so I did not record it. " +
		"Send new expenses one message at a time, for example \"coffee 120\"."

	nothingFoundText = "I couldn't find an expense in that message. Try something like \"lunch 150\"."

	unknownCommandText = "I don't know that command. Try /help."

	noDownloadText = "Nothing has been recorded yet, so there is no file to download."

	saveFailedText = "⚠️ Sorry, I couldn't save that. Please try again in a moment."

	busyText = "⚠️ The expense file was being updated by someone else. Please send that again."

	unreadableText = "⚠️ I couldn't make sense of that one. Please rephrase it, for example \"grab to office 230\"."

	summaryFailedText = "⚠️ Sorry, I couldn't load your expenses right now."

	internalErrorText = "⚠️ Something went wrong on my side. Please try again."
)

// maxMessageRunes is Telegram's limit for one text message.
const maxMessageRunes = 4096

// confirmationText renders the reply to a recorded message.
func confirmationText(res *pipeline.Result, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Added %d item(s) totalling %s.\n", len(res.Added), ledger.FormatAmount(currency, res.Subtotal))
	for _, r := range res.Added {
		fmt.Fprintf(&b, "• %s: %s (%s)", r.Description, ledger.FormatAmount(currency, r.Amount), r.Category)
		if r.Amount.IsZero() {
			b.WriteString(" ⚠️ no amount found")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Running total: %s (%d records).", ledger.FormatAmount(currency, res.GrandTotal), res.Count)
	if res.Location.URL != "" {
		fmt.Fprintf(&b, "\nDownload: %s", res.Location.URL)
	}
	return b.String()
}

func summaryText(sum *pipeline.SummaryResult, currency string) string {
	text := sum.Report.Text(currency)
	if sum.Location.URL != "" {
		text += "\nDownload: " + sum.Location.URL
	}
	return text
}

func downloadText(url string) string {
	return "📎 Latest expense file: " + url
}

// clip keeps text within Telegram's message size.
func clip(text string) string {
	runes := []rune(text)
	if len(runes) <= maxMessageRunes {
		return text
	}
	return string(runes[:maxMessageRunes-1]) + "…"
}
