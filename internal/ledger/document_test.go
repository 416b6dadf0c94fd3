package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/expense-bot/internal/expense"
	"github.com/shopspring/decimal"
)

var fixedNow = func() time.Time {
	return time.Date(2026, time.October, 19, 14, 3, 0, 0, time.UTC)
}

func rec(date, desc, amount, category string) expense.Record {
	return expense.NewRecord(date, desc, decimal.RequireFromString(amount), category)
}

func assertRecords(t *testing.T, got, want []expense.Record) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseRenderRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		records []expense.Record
	}{
		{
			name: "single record",
			records: []expense.Record{
				rec("10/19/2026", "lunch at jollibee", "150", "Food"),
			},
		},
		{
			name: "commas quotes and decimals",
			records: []expense.Record{
				rec("10/18/2026", `bond paper, pens and "sharpies"`, "245.75", "Supplies"),
				rec("10/18/2026", "grab to BGC", "320.5", "Transportation"),
				rec("10/19/2026", "meralco bill", "2310.00", "Utilities"),
			},
		},
		{
			name: "zero amount and other category",
			records: []expense.Record{
				rec("10/19/2026", "something I forgot the price of", "0", "Other"),
				rec("10/19/2026", "haircut", "200", "Personal"),
			},
		},
		{
			name: "leading hash inside description",
			records: []expense.Record{
				rec("10/19/2026", "#2 pencils", "35", "Supplies"),
			},
		},
		{
			name: "multi-line description",
			records: []expense.Record{
				{Date: "10/19/2026", Description: "line one\nline two", Amount: decimal.NewFromInt(5), Category: expense.CategoryFood},
				{Date: "10/19/2026", Description: "notes:\n# not a comment\n\n\"quoted\"", Amount: decimal.NewFromInt(7), Category: expense.CategoryOther},
				rec("10/19/2026", "after", "1", "Other"),
			},
		},
		{
			name: "row that looks like the header",
			records: []expense.Record{
				rec("Date", "Description", "1", "Other"),
				rec("10/19/2026", "lunch", "150", "Food"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Render(tt.records, Options{Currency: "PHP", Now: fixedNow})
			assertRecords(t, Parse(doc), tt.records)
		})
	}
}

func TestParseInitialDocumentIsEmpty(t *testing.T) {
	if got := Parse(InitialDocument("PHP")); len(got) != 0 {
		t.Errorf("Parse(InitialDocument) = %+v, want empty", got)
	}
	if got := Parse(""); len(got) != 0 {
		t.Errorf("Parse(\"\") = %+v, want empty", got)
	}
}

func TestInitialDocumentLayout(t *testing.T) {
	doc := InitialDocument("PHP")
	lines := strings.Split(strings.TrimRight(doc, "\n"), "\n")
	if last := lines[len(lines)-1]; last != "Date,Description,Amount (PHP),Category" {
		t.Errorf("last line = %q, want header row", last)
	}
	for _, l := range lines[:len(lines)-1] {
		if !strings.HasPrefix(l, CommentMarker) {
			t.Errorf("preamble line %q is not a comment", l)
		}
	}
}

func TestRenderEmptyShowsZeroPercentages(t *testing.T) {
	doc := Render(nil, Options{Now: fixedNow})

	if strings.Contains(doc, "NaN") {
		t.Fatalf("rendered document contains NaN:\n%s", doc)
	}
	for _, c := range expense.Categories() {
		want := "# " + string(c) + ": 0.00 (0.0%)"
		if !strings.Contains(doc, want) {
			t.Errorf("missing %q in:\n%s", want, doc)
		}
	}
	if !strings.Contains(doc, "# Total Records: 0") {
		t.Errorf("missing zero record count in:\n%s", doc)
	}
}

func TestRenderPreamble(t *testing.T) {
	records := []expense.Record{
		rec("10/19/2026", "lunch", "150", "Food"),
		rec("10/19/2026", "taxi", "50", "Transportation"),
	}
	doc := Render(records, Options{Currency: "USD", Now: fixedNow})

	for _, want := range []string{
		"# Expense Report",
		"# Generated: 2026-10-19 14:03:00 UTC",
		"# Total Amount: 200.00",
		"# Total Records: 2",
		"# Food: 150.00 (75.0%)",
		"# Transportation: 50.00 (25.0%)",
		"# Supplies: 0.00 (0.0%)",
		"Date,Description,Amount (USD),Category",
		`10/19/2026,"lunch",150,Food`,
		`10/19/2026,"taxi",50,Transportation`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("rendered document missing %q:\n%s", want, doc)
		}
	}

	// Data rows follow the header in insertion order.
	header := strings.Index(doc, "Date,Description")
	first := strings.Index(doc, `"lunch"`)
	second := strings.Index(doc, `"taxi"`)
	if !(header < first && first < second) {
		t.Errorf("unexpected row order in:\n%s", doc)
	}
}

func TestParseNormalizesCategory(t *testing.T) {
	doc := strings.Join([]string{
		"Date,Description,Amount (PHP),Category",
		`10/19/2026,"mystery",10,Gadgets`,
		`10/19/2026,"blank",20,`,
		`10/19/2026,"missing column",30`,
		`10/19/2026,"lowercase",40,food`,
	}, "\n")

	got := Parse(doc)
	want := []expense.Category{expense.CategoryOther, expense.CategoryOther, expense.CategoryOther, expense.CategoryFood}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i, c := range want {
		if got[i].Category != c {
			t.Errorf("record %d category = %q, want %q", i, got[i].Category, c)
		}
	}
}

func TestParseSkipsCorruptRows(t *testing.T) {
	doc := strings.Join([]string{
		"# Expense Report",
		"# Total Amount: 180.00",
		"Date,Description,Amount (PHP),Category",
		`10/19/2026,"lunch",150,Food`,
		`10/19/2026,"broken",one hundred,Food`,
		`10/19/2026,"jeep",30,Transportation`,
		`garbage line`,
		"",
	}, "\n")

	got := Parse(doc)
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(got), got)
	}
	if got[0].Description != "lunch" || got[1].Description != "jeep" {
		t.Errorf("unexpected records: %+v", got)
	}
}

func TestParseUnclosedQuoteDoesNotSwallowRows(t *testing.T) {
	doc := strings.Join([]string{
		"Date,Description,Amount (PHP),Category",
		`10/19/2026,"lunch",150,Food`,
		`10/19/2026,"never closed,20,Food`,
		`10/19/2026,"jeep",30,Transportation`,
		`10/19/2026,"taxi",80,Transportation`,
	}, "\n")

	got := Parse(doc)
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3: %+v", len(got), got)
	}
	if got[0].Description != "lunch" || got[1].Description != "jeep" || got[2].Description != "taxi" {
		t.Errorf("unexpected records: %+v", got)
	}
}

func TestParseHandlesCRLF(t *testing.T) {
	doc := "Date,Description,Amount (PHP),Category\r\n10/19/2026,\"coffee\",95,Food\r\n"
	got := Parse(doc)
	if len(got) != 1 || got[0].Category != expense.CategoryFood || !got[0].Amount.Equal(decimal.NewFromInt(95)) {
		t.Errorf("Parse() = %+v", got)
	}
}

func TestMergeAppendOrder(t *testing.T) {
	a := rec("10/17/2026", "A", "1", "Food")
	b := rec("10/18/2026", "B", "2", "Food")
	c := rec("10/19/2026", "C", "3", "Other")

	existing := []expense.Record{a, b}
	merged := Merge(existing, []expense.Record{c})
	assertRecords(t, merged, []expense.Record{a, b, c})

	// Merge must not write into the caller's backing array.
	existing = append(existing[:0:0], existing...)
	_ = Merge(existing[:1], []expense.Record{c})
	if !existing[1].Equal(b) {
		t.Error("Merge modified the existing slice")
	}

	doc := Render(merged, Options{Now: fixedNow})
	assertRecords(t, Parse(doc), []expense.Record{a, b, c})
}

func TestPercent(t *testing.T) {
	if got := Percent(decimal.NewFromInt(5), decimal.Zero); !got.IsZero() {
		t.Errorf("Percent with zero total = %s, want 0", got)
	}
	if got := Percent(decimal.NewFromInt(1), decimal.NewFromInt(3)).StringFixed(1); got != "33.3" {
		t.Errorf("Percent(1, 3) = %s, want 33.3", got)
	}
}
