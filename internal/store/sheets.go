package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/expense-bot/internal/logger"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// DefaultSheetName is the tab holding the document.
const DefaultSheetName = "Expenses"

// SheetValues is the values surface of one spreadsheet.
type SheetValues interface {
	Get(ctx context.Context, rng string) ([][]interface{}, error)
	Update(ctx context.Context, rng string, rows [][]interface{}) error
	Clear(ctx context.Context, rng string) error
}

// SheetsStore keeps each document line as one spreadsheet row. Comment
// lines live in column A, other lines are split into cells. Sheets have no
// version tokens, so writes are last-write-wins and rely on the caller's
// lock.
type SheetsStore struct {
	values          SheetValues
	spreadsheetID   string
	sheet           string
	initialDocument string
}

// NewSheetsStore wraps a SheetValues client.
func NewSheetsStore(values SheetValues, spreadsheetID, sheet, initialDocument string) *SheetsStore {
	if sheet == "" {
		sheet = DefaultSheetName
	}
	return &SheetsStore{values: values, spreadsheetID: spreadsheetID, sheet: sheet, initialDocument: initialDocument}
}

func (s *SheetsStore) Read(ctx context.Context) (Snapshot, error) {
	rows, err := s.values.Get(ctx, s.sheet+"!A:Z")
	if err != nil {
		return Snapshot{}, fmt.Errorf("store: read sheet %s: %w", s.sheet, err)
	}
	if len(rows) == 0 {
		return Snapshot{Text: s.initialDocument}, nil
	}

	var b strings.Builder
	for _, row := range rows {
		line, err := rowToLine(row)
		if err != nil {
			return Snapshot{}, fmt.Errorf("store: read sheet %s: %w", s.sheet, err)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return Snapshot{Text: b.String()}, nil
}

func (s *SheetsStore) Write(ctx context.Context, text string, _ Version) (Location, error) {
	rows := textToRows(text)
	if len(rows) == 0 {
		return Location{}, errors.New("store: refusing to write an empty sheet")
	}

	if err := s.values.Update(ctx, fmt.Sprintf("%s!A1", s.sheet), rows); err != nil {
		return Location{}, fmt.Errorf("store: update sheet %s: %w", s.sheet, err)
	}
	// Rows below the new document are leftovers of a longer previous write.
	if err := s.values.Clear(ctx, fmt.Sprintf("%s!A%d:Z", s.sheet, len(rows)+1)); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("sheet", s.sheet).Msg("Clearing stale rows failed")
	}
	return s.location(), nil
}

func (s *SheetsStore) Locate(ctx context.Context) (Location, error) {
	return s.location(), nil
}

func (s *SheetsStore) location() Location {
	return Location{URL: "https://docs.google.com/spreadsheets/d/" + s.spreadsheetID}
}

func rowToLine(row []interface{}) (string, error) {
	cells := make([]string, len(row))
	for i, v := range row {
		cells[i] = fmt.Sprint(v)
	}
	if len(cells) > 0 && strings.HasPrefix(strings.TrimSpace(cells[0]), "#") {
		return strings.Join(cells, " "), nil
	}

	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(cells); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), "\r\n"), nil
}

func textToRows(text string) [][]interface{} {
	var rows [][]interface{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			rows = append(rows, []interface{}{line})
			continue
		}
		r := csv.NewReader(strings.NewReader(line))
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		fields, err := r.Read()
		if err != nil {
			rows = append(rows, []interface{}{line})
			continue
		}
		row := make([]interface{}, len(fields))
		for i, f := range fields {
			row[i] = f
		}
		rows = append(rows, row)
	}
	return rows
}

// GoogleSheetValues implements SheetValues with the Sheets API.
type GoogleSheetValues struct {
	svc           *gsheet.Service
	spreadsheetID string
}

// NewGoogleSheetValues creates a Sheets service from service account JSON.
// Empty credentials fall back to Application Default Credentials.
func NewGoogleSheetValues(ctx context.Context, spreadsheetID string, credentialsJSON []byte) (*GoogleSheetValues, error) {
	if spreadsheetID == "" {
		return nil, errors.New("NewGoogleSheetValues: missing spreadsheet id")
	}
	opts := []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsScope)}
	if len(credentialsJSON) > 0 {
		opts = append(opts, goption.WithCredentialsJSON(credentialsJSON))
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGoogleSheetValues: create sheets service: %w", err)
	}
	return &GoogleSheetValues{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func (g *GoogleSheetValues) Get(ctx context.Context, rng string) ([][]interface{}, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (g *GoogleSheetValues) Update(ctx context.Context, rng string, rows [][]interface{}) error {
	vr := &gsheet.ValueRange{Values: rows}
	_, err := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

func (g *GoogleSheetValues) Clear(ctx context.Context, rng string) error {
	_, err := g.svc.Spreadsheets.Values.Clear(g.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}
