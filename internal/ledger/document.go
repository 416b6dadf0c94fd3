// Package ledger converts between expense records and the persisted
// comma-delimited document, and computes the aggregate statistics shown to
// users and written into the document preamble.
//
// Document layout:
//
//	# Expense Report
//	# Generated: 2026-10-19 14:03:00 PST
//	# Total Amount: 230.00
//	# Total Records: 2
//	# Food: 150.00 (65.2%)
//	...
//	Date,Description,Amount (PHP),Category
//	10/19/2026,"lunch at jollibee",150,Food
package ledger

import (
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/expense-bot/internal/expense"
	"github.com/shopspring/decimal"
)

const (
	// CommentMarker starts every metadata line of the preamble.
	CommentMarker = "#"

	// DefaultCurrency is used when no currency code is configured.
	DefaultCurrency = "PHP"

	generatedLayout = "2006-01-02 15:04:05 MST"
)

// Options controls how a document is rendered.
type Options struct {
	Currency string
	Location *time.Location
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Currency == "" {
		o.Currency = DefaultCurrency
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Header returns the fixed header row naming the four fields in order.
func Header(currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	return fmt.Sprintf("Date,Description,Amount (%s),Category", currency)
}

// InitialDocument is the canonical document used when nothing has been
// persisted yet: a zero-valued preamble followed by the header row.
func InitialDocument(currency string) string {
	var b strings.Builder
	b.WriteString("# Expense Report\n")
	b.WriteString("# Total Amount: 0.00\n")
	b.WriteString("# Total Records: 0\n")
	b.WriteString(Header(currency))
	b.WriteString("\n")
	return b.String()
}

// Render serializes the full record set: preamble with aggregates, header
// row, then one line per record in insertion order.
func Render(records []expense.Record, opts Options) string {
	opts = opts.withDefaults()
	stats := Aggregate(records)

	var b strings.Builder
	b.WriteString("# Expense Report\n")
	fmt.Fprintf(&b, "# Generated: %s\n", opts.Now().In(opts.Location).Format(generatedLayout))
	fmt.Fprintf(&b, "# Total Amount: %s\n", stats.Total.StringFixed(2))
	fmt.Fprintf(&b, "# Total Records: %d\n", stats.Count)
	for _, c := range expense.Categories() {
		amount := stats.ByCategory[c]
		fmt.Fprintf(&b, "# %s: %s (%s%%)\n", c, amount.StringFixed(2), Percent(amount, stats.Total).StringFixed(1))
	}

	b.WriteString(Header(opts.Currency))
	b.WriteString("\n")
	for _, r := range records {
		b.WriteString(renderRow(r))
		b.WriteString("\n")
	}
	return b.String()
}

func renderRow(r expense.Record) string {
	desc := strings.ReplaceAll(r.Description, `"`, `""`)
	return fmt.Sprintf(`%s,"%s",%s,%s`, r.Date, desc, r.Amount.String(), r.Category)
}

// Percent returns part as a percentage of total, or zero when total is zero.
func Percent(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Mul(decimal.NewFromInt(100)).Div(total)
}

// Parse reads the records back out of a document. Comment lines are
// skipped, and so is the header row when it is the first data line. Any
// row whose amount does not parse is dropped: a corrupt historical row must
// never block new writes. Quoted descriptions may span several lines.
func Parse(text string) []expense.Record {
	var records []expense.Record
	for i, fields := range dataRows(text) {
		if len(fields) < 3 {
			continue
		}
		if i == 0 && isHeader(fields) {
			continue
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(fields[2]))
		if err != nil {
			continue
		}

		category := ""
		if len(fields) > 3 {
			category = fields[3]
		}
		records = append(records, expense.Record{
			Date:        strings.TrimSpace(fields[0]),
			Description: fields[1],
			Amount:      amount,
			Category:    expense.ParseCategory(category),
		})
	}
	return records
}

// dataRows splits the non-comment part of text into CSV rows. A line that
// opens a quote is joined with the following lines until the quote closes.
// A quote that never closes is treated as a corrupt single-line row so it
// cannot swallow the rest of the document.
func dataRows(text string) [][]string {
	lines := strings.Split(text, "\n")
	var rows [][]string
	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, CommentMarker) {
			continue
		}

		record, end := line, i
		for openQuote(record) && end+1 < len(lines) {
			end++
			record += "\n" + strings.TrimRight(lines[end], "\r")
		}
		if openQuote(record) {
			record, end = line, i
		}
		i = end

		fields, err := splitLine(record)
		if err != nil {
			continue
		}
		rows = append(rows, fields)
	}
	return rows
}

// openQuote reports whether s ends inside a quoted field. Escaped quotes
// come in pairs and do not change the parity.
func openQuote(s string) bool {
	return strings.Count(s, `"`)%2 == 1
}

func splitLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.Read()
}

func isHeader(fields []string) bool {
	return strings.EqualFold(strings.TrimSpace(fields[0]), "Date") &&
		strings.EqualFold(strings.TrimSpace(fields[1]), "Description")
}

// Merge appends added after existing, preserving the order of both.
func Merge(existing, added []expense.Record) []expense.Record {
	out := make([]expense.Record, 0, len(existing)+len(added))
	out = append(out, existing...)
	return append(out, added...)
}
