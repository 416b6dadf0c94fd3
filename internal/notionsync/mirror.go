// Package notionsync copies recorded expenses into a Notion database.
package notionsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/expense-bot/internal/expense"
	"github.com/dvloznov/expense-bot/internal/pipeline"
)

// ExpenseMirror creates one Notion page per recorded expense.
type ExpenseMirror struct {
	service    NotionService
	databaseID string
	currency   string
}

// NewExpenseMirror creates a mirror writing into databaseID.
func NewExpenseMirror(service NotionService, databaseID, currency string) *ExpenseMirror {
	return &ExpenseMirror{service: service, databaseID: databaseID, currency: currency}
}

// Name implements pipeline.Mirror.
func (m *ExpenseMirror) Name() string { return "notion" }

// Mirror implements pipeline.Mirror. Every record is attempted; failures
// are joined into one error.
func (m *ExpenseMirror) Mirror(ctx context.Context, msg pipeline.Message, records []expense.Record) error {
	var errs []error
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		props := ExpenseToNotionProperties(r, msg, m.currency)
		if _, err := m.service.CreatePage(ctx, m.databaseID, props); err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("Mirror: %w", err)
	}
	return nil
}

// CheckDatabase verifies the database has every property the mirror writes,
// with the expected type.
func (m *ExpenseMirror) CheckDatabase(ctx context.Context) error {
	db, err := m.service.GetDatabase(ctx, m.databaseID)
	if err != nil {
		return fmt.Errorf("CheckDatabase: %w", err)
	}

	var problems []string
	for name, want := range RequiredProperties {
		cfg, ok := db.Properties[name]
		if !ok {
			problems = append(problems, fmt.Sprintf("missing property %q (%s)", name, want))
			continue
		}
		if got := cfg.GetType(); got != want {
			problems = append(problems, fmt.Sprintf("property %q is %s, want %s", name, got, want))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("CheckDatabase: %s", strings.Join(problems, "; "))
	}
	return nil
}
