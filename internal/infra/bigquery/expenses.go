package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// ExpenseRow is one recorded expense in <dataset>.expenses.
type ExpenseRow struct {
	ExpenseID string `bigquery:"expense_id"` // REQUIRED

	ChatID    int64 `bigquery:"chat_id"`    // REQUIRED
	MessageID int64 `bigquery:"message_id"` // REQUIRED
	Position  int64 `bigquery:"position"`   // REQUIRED, order within the message

	SenderID   bigquery.NullInt64  `bigquery:"sender_id"`   // NULLABLE
	SenderName bigquery.NullString `bigquery:"sender_name"` // NULLABLE

	ExpenseDate civil.Date `bigquery:"expense_date"` // REQUIRED
	Description string     `bigquery:"description"`  // REQUIRED
	Amount      *big.Rat   `bigquery:"amount"`       // REQUIRED NUMERIC
	Currency    string     `bigquery:"currency"`     // REQUIRED
	Category    string     `bigquery:"category"`     // REQUIRED

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}
