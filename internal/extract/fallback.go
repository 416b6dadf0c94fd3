package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/dvloznov/expense-bot/internal/expense"
	"github.com/shopspring/decimal"
)

const number = `(?P<amount>[0-9][0-9,]*(?:\.[0-9]+)?)`

// amountPatterns are tried in order; the first match wins. Group "amount"
// holds the number. Group "desc", when present, is the description;
// otherwise the text around the match is. "for", "at" and a bare "p" only
// mark the amount when nothing more specific matched.
var amountPatterns = []*regexp.Regexp{
	// paid 80 for fare, ₱45 jeepney, spent 60 on snack
	regexp.MustCompile(`(?i)(?:\b(?:php|pesos?|rs|usd|cost|costs|paid|spent)|₱|\$)\s*` + number + `\b`),
	// 150 lunch, P99 coffee
	regexp.MustCompile(`(?i)^\s*(?:₱|php|p)?\s*` + number + `\s+(?P<desc>.+)$`),
	// taxi fare 80, lunch for 150, coffee at 7-eleven 150
	regexp.MustCompile(`(?i)^(?P<desc>.*?)\s*(?:\b(?:for|at|p)\s*)?` + number + `\s*$`),
	// lunch 150 p2 meeting
	regexp.MustCompile(`(?:^|\s)` + number + `(?:\s|$)`),
	// burger p150 and fries
	regexp.MustCompile(`(?i)\b(?:for|at|p)\s*` + number + `\b`),
}

// categoryKeywords are checked in canonical category order.
var categoryKeywords = []struct {
	category expense.Category
	words    []string
}{
	{expense.CategoryFood, []string{"lunch", "dinner", "breakfast", "meal", "food", "coffee", "snack", "grocery", "groceries", "restaurant"}},
	{expense.CategoryTransportation, []string{"taxi", "bus", "fare", "grab", "jeep", "jeepney", "train", "mrt", "lrt", "gas", "fuel", "parking", "uber"}},
	{expense.CategorySupplies, []string{"paper", "pen", "supplies", "office", "printer", "ink", "notebook"}},
	{expense.CategoryUtilities, []string{"electric", "electricity", "water", "internet", "wifi", "phone", "bill", "load", "meralco"}},
	{expense.CategoryPersonal, []string{"haircut", "clothes", "shirt", "medicine", "gym", "salon", "personal"}},
}

// ParseHeuristic is the deterministic parser used when the model cannot be
// reached. It always returns one record: the amount defaults to zero and the
// description to the raw text when no number is found.
func ParseHeuristic(text, date string) expense.Record {
	text = strings.TrimSpace(text)
	description, amount := findAmount(text)
	return expense.NewRecord(date, description, amount, string(categorize(text)))
}

func findAmount(text string) (string, decimal.Decimal) {
	for _, re := range amountPatterns {
		m := re.FindStringSubmatchIndex(text)
		if m == nil {
			continue
		}
		ai := re.SubexpIndex("amount")
		amount, err := decimal.NewFromString(strings.ReplaceAll(text[m[2*ai]:m[2*ai+1]], ",", ""))
		if err != nil {
			continue
		}

		var description string
		if di := re.SubexpIndex("desc"); di > 0 && m[2*di] >= 0 {
			description = cleanDescription(text[m[2*di]:m[2*di+1]])
		} else {
			description = cleanDescription(text[:m[0]] + " " + text[m[1]:])
		}
		if description == "" {
			description = text
		}
		return description, amount
	}
	return text, decimal.Zero
}

func cleanDescription(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " -:,;")
}

func categorize(text string) expense.Category {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	present := make(map[string]bool, len(words))
	for _, w := range words {
		present[w] = true
	}

	for _, entry := range categoryKeywords {
		for _, kw := range entry.words {
			if present[kw] {
				return entry.category
			}
		}
	}
	return expense.CategoryOther
}
