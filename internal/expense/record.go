// Package expense holds the expense record model shared by the extraction
// client, the ledger and the document stores.
package expense

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category is one value of the closed expense category set.
type Category string

const (
	CategoryFood           Category = "Food"
	CategoryTransportation Category = "Transportation"
	CategorySupplies       Category = "Supplies"
	CategoryUtilities      Category = "Utilities"
	CategoryPersonal       Category = "Personal"
	CategoryOther          Category = "Other"
)

// DateLayout is the capture date format written to the document.
const DateLayout = "01/02/2006"

var categories = []Category{
	CategoryFood,
	CategoryTransportation,
	CategorySupplies,
	CategoryUtilities,
	CategoryPersonal,
	CategoryOther,
}

// Categories returns every category in canonical order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory maps free text onto the category set. Matching is
// case-insensitive; anything unrecognized becomes CategoryOther.
func ParseCategory(s string) Category {
	s = strings.TrimSpace(s)
	for _, c := range categories {
		if strings.EqualFold(s, string(c)) {
			return c
		}
	}
	return CategoryOther
}

// Record is one parsed expense.
type Record struct {
	Date        string
	Description string
	Amount      decimal.Decimal
	Category    Category
}

// NewRecord builds a normalized record: the category is forced into the
// fixed set, whitespace in the description is collapsed and a negative
// amount is stored as its absolute value.
func NewRecord(date, description string, amount decimal.Decimal, category string) Record {
	return Record{
		Date:        strings.TrimSpace(date),
		Description: strings.Join(strings.Fields(description), " "),
		Amount:      amount.Abs(),
		Category:    ParseCategory(category),
	}
}

// Equal compares two records field by field, using numeric equality for
// the amount.
func (r Record) Equal(other Record) bool {
	return r.Date == other.Date &&
		r.Description == other.Description &&
		r.Amount.Equal(other.Amount) &&
		r.Category == other.Category
}

// FormatDate renders t as a capture date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Sum adds the amounts of records.
func Sum(records []Record) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}
