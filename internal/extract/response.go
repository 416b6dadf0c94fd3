package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/expense-bot/internal/expense"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/shopspring/decimal"
)

const recordsSchemaJSON = `{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"description": {"type": "string"},
			"amount": {"type": "number", "minimum": 0},
			"category": {"type": "string"}
		},
		"required": ["description", "amount"]
	}
}`

var recordsSchema = compileRecordsSchema()

func compileRecordsSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(recordsSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("extract: records schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("expenses.schema.json", doc); err != nil {
		panic(fmt.Sprintf("extract: records schema: %v", err))
	}
	return c.MustCompile("expenses.schema.json")
}

type modelExpense struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
}

// parseModelResponse validates the model output against the record schema
// and stamps every record with date.
func parseModelResponse(raw, date string) ([]expense.Record, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, fmt.Errorf("parseModelResponse: empty response: %w", ErrMalformedResponse)
	}

	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(clean))
	if err != nil {
		return nil, fmt.Errorf("parseModelResponse: %w: %v", ErrMalformedResponse, err)
	}
	if err := recordsSchema.Validate(inst); err != nil {
		return nil, fmt.Errorf("parseModelResponse: %w: %v", ErrMalformedResponse, err)
	}

	var items []modelExpense
	if err := json.Unmarshal([]byte(clean), &items); err != nil {
		return nil, fmt.Errorf("parseModelResponse: %w: %v", ErrMalformedResponse, err)
	}

	records := make([]expense.Record, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Description) == "" {
			continue
		}
		records = append(records, expense.NewRecord(date, it.Description, it.Amount, it.Category))
	}
	return records, nil
}

// cleanModelJSON strips Markdown fences and any prose around the JSON array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the opening fence line (``` or ```json).
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return ""
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = strings.TrimSpace(s[:idx])
	}

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}
