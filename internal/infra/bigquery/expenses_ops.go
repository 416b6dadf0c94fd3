package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/expense"
	"github.com/dvloznov/expense-bot/internal/pipeline"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
)

const expensesTable = "expenses"

// expenseIDNamespace scopes the deterministic expense IDs.
var expenseIDNamespace = uuid.MustParse("6f1c1c2e-4a53-4a8e-9a65-7b0f3f1f4c21")

// RowInserter is the part of *bigquery.Inserter the mirror uses.
type RowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// ExpenseMirror streams every new expense into BigQuery. The table is an
// append-only log, so concurrent writers never overwrite each other.
type ExpenseMirror struct {
	client   *bigquery.Client
	table    *bigquery.Table
	inserter RowInserter
	currency string
	now      func() time.Time
}

// NewExpenseMirror connects to BigQuery and targets <dataset>.expenses.
func NewExpenseMirror(ctx context.Context, projectID, datasetID, currency string) (*ExpenseMirror, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewExpenseMirror: creating client: %w", err)
	}
	table := client.DatasetInProject(projectID, datasetID).Table(expensesTable)
	m := NewExpenseMirrorWithInserter(table.Inserter(), currency)
	m.client = client
	m.table = table
	return m, nil
}

// NewExpenseMirrorWithInserter builds a mirror over an existing inserter.
func NewExpenseMirrorWithInserter(inserter RowInserter, currency string) *ExpenseMirror {
	return &ExpenseMirror{
		inserter: inserter,
		currency: currency,
		now:      time.Now,
	}
}

// Close closes the BigQuery client connection.
func (m *ExpenseMirror) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Name implements pipeline.Mirror.
func (m *ExpenseMirror) Name() string { return "bigquery" }

// Mirror implements pipeline.Mirror. Insert IDs are derived from the chat,
// message and position so a repeated call is deduplicated by BigQuery.
func (m *ExpenseMirror) Mirror(ctx context.Context, msg pipeline.Message, records []expense.Record) error {
	if len(records) == 0 {
		return nil
	}

	savers := make([]*bigquery.StructSaver, 0, len(records))
	for i, r := range records {
		row := m.toRow(msg, i, r)
		savers = append(savers, &bigquery.StructSaver{
			Struct:   row,
			Schema:   expensesSchema,
			InsertID: row.ExpenseID,
		})
	}

	if err := m.inserter.Put(ctx, savers); err != nil {
		return fmt.Errorf("Mirror: inserting %d rows: %w", len(savers), err)
	}
	return nil
}

func (m *ExpenseMirror) toRow(msg pipeline.Message, position int, r expense.Record) *ExpenseRow {
	row := &ExpenseRow{
		ExpenseID:   ExpenseID(msg.ChatID, msg.MessageID, position),
		ChatID:      msg.ChatID,
		MessageID:   int64(msg.MessageID),
		Position:    int64(position),
		ExpenseDate: expenseDate(r.Date, msg.ReceivedAt),
		Description: r.Description,
		Amount:      r.Amount.Rat(),
		Currency:    m.currency,
		Category:    string(r.Category),
		CreatedTS:   m.now().UTC(),
	}
	if msg.SenderID != 0 {
		row.SenderID = bigquery.NullInt64{Int64: msg.SenderID, Valid: true}
	}
	if msg.SenderName != "" {
		row.SenderName = bigquery.NullString{StringVal: msg.SenderName, Valid: true}
	}
	return row
}

// ExpenseID is the stable identifier of the position-th record of a message.
func ExpenseID(chatID int64, messageID, position int) string {
	key := fmt.Sprintf("%d:%d:%d", chatID, messageID, position)
	return uuid.NewSHA1(expenseIDNamespace, []byte(key)).String()
}

// expenseDate parses the record date, falling back to the receive day.
func expenseDate(date string, received time.Time) civil.Date {
	if t, err := time.Parse(expense.DateLayout, date); err == nil {
		return civil.DateOf(t)
	}
	if received.IsZero() {
		received = time.Now()
	}
	return civil.DateOf(received)
}

var expensesSchema = mustInferSchema()

func mustInferSchema() bigquery.Schema {
	schema, err := bigquery.InferSchema(ExpenseRow{})
	if err != nil {
		panic(fmt.Sprintf("inferring expenses schema: %v", err))
	}
	return schema
}

// EnsureTable creates the expenses table, partitioned by expense date, when
// it does not exist yet.
func (m *ExpenseMirror) EnsureTable(ctx context.Context) (created bool, err error) {
	if m.table == nil {
		return false, errors.New("EnsureTable: mirror has no table")
	}

	_, err = m.table.Metadata(ctx)
	if err == nil {
		return false, nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return false, fmt.Errorf("EnsureTable: reading metadata: %w", err)
	}

	meta := &bigquery.TableMetadata{
		Schema:           expensesSchema,
		TimePartitioning: &bigquery.TimePartitioning{Field: "expense_date"},
		Description:      "Expenses recorded by the expense bot, one row per item.",
	}
	if err := m.table.Create(ctx, meta); err != nil {
		return false, fmt.Errorf("EnsureTable: creating table: %w", err)
	}
	return true, nil
}
