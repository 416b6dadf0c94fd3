package ledger

import (
	"strings"

	"github.com/dvloznov/expense-bot/internal/expense"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Stats are the aggregates written into the document preamble.
type Stats struct {
	Count      int
	Total      decimal.Decimal
	ByCategory map[expense.Category]decimal.Decimal
	Top        expense.Category
	TopAmount  decimal.Decimal
}

// Aggregate computes totals over records. Every fixed category is present
// in ByCategory, zero when unused. Top is the category with the highest sum;
// ties go to the category encountered first in insertion order.
func Aggregate(records []expense.Record) Stats {
	stats := Stats{
		Count:      len(records),
		Total:      decimal.Zero,
		ByCategory: make(map[expense.Category]decimal.Decimal, len(expense.Categories())),
		TopAmount:  decimal.Zero,
	}
	for _, c := range expense.Categories() {
		stats.ByCategory[c] = decimal.Zero
	}

	var seen []expense.Category
	for _, r := range records {
		c := expense.ParseCategory(string(r.Category))
		if !containsCategory(seen, c) {
			seen = append(seen, c)
		}
		stats.ByCategory[c] = stats.ByCategory[c].Add(r.Amount)
		stats.Total = stats.Total.Add(r.Amount)
	}

	for i, c := range seen {
		if i == 0 || stats.ByCategory[c].GreaterThan(stats.TopAmount) {
			stats.Top = c
			stats.TopAmount = stats.ByCategory[c]
		}
	}
	return stats
}

func containsCategory(list []expense.Category, c expense.Category) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

// Report is the user-facing summary of the whole document.
type Report struct {
	Empty      bool
	Count      int
	Total      decimal.Decimal
	Average    decimal.Decimal
	Top        expense.Category
	TopAmount  decimal.Decimal
	ByCategory map[expense.Category]decimal.Decimal
}

// Summarize builds a Report. An empty record set short-circuits to an
// Empty report so no average is ever computed over zero records.
func Summarize(records []expense.Record) Report {
	if len(records) == 0 {
		return Report{Empty: true, Total: decimal.Zero, Average: decimal.Zero, TopAmount: decimal.Zero}
	}

	stats := Aggregate(records)
	return Report{
		Count:      stats.Count,
		Total:      stats.Total,
		Average:    stats.Total.Div(decimal.NewFromInt(int64(stats.Count))),
		Top:        stats.Top,
		TopAmount:  stats.TopAmount,
		ByCategory: stats.ByCategory,
	}
}

// NoRecordsMessage is shown instead of a report when nothing is recorded.
const NoRecordsMessage = "No expenses recorded yet. Send me something like \"lunch 150\" to get started."

// Text renders the report for chat. Amounts use English digit grouping.
func (r Report) Text(currency string) string {
	if r.Empty {
		return NoRecordsMessage
	}

	p := message.NewPrinter(language.English)
	sym := Symbol(currency)

	var b strings.Builder
	b.WriteString("📊 Expense Summary\n\n")
	p.Fprintf(&b, "Records: %d\n", r.Count)
	p.Fprintf(&b, "Total: %s%.2f\n", sym, r.Total.InexactFloat64())
	p.Fprintf(&b, "Average: %s%.2f\n", sym, r.Average.InexactFloat64())
	p.Fprintf(&b, "Top category: %s (%s%.2f)\n", r.Top, sym, r.TopAmount.InexactFloat64())

	b.WriteString("\nBy category:\n")
	for _, c := range expense.Categories() {
		amount, ok := r.ByCategory[c]
		if !ok || amount.IsZero() {
			continue
		}
		p.Fprintf(&b, "• %s: %s%.2f (%s%%)\n", c, sym, amount.InexactFloat64(), Percent(amount, r.Total).StringFixed(1))
	}
	return b.String()
}

// FormatAmount renders an amount with the currency symbol and grouping.
func FormatAmount(currency string, amount decimal.Decimal) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%s%.2f", Symbol(currency), amount.InexactFloat64())
}

// Symbol maps an ISO currency code to the symbol used in chat replies.
func Symbol(currency string) string {
	switch strings.ToUpper(currency) {
	case "", "PHP":
		return "₱"
	case "USD":
		return "$"
	case "EUR":
		return "€"
	case "GBP":
		return "£"
	case "JPY":
		return "¥"
	default:
		return strings.ToUpper(currency) + " "
	}
}
