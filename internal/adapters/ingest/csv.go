package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
)

// CSVRow is one imported row with every field still a string
type CSVRow struct {
	ID          string
	Date        string
	Amount      string
	Merchant    string
	Description string
	Category    string
}

// RowError reports a CSV line that could not be converted
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// headerAliases maps accepted header names to CSVRow fields
var headerAliases = map[string]string{
	"id":             "id",
	"transaction_id": "id",
	"date":           "date",
	"posted":         "date",
	"posted_date":    "date",
	"amount":         "amount",
	"total":          "amount",
	"merchant":       "merchant",
	"payee":          "merchant",
	"name":           "merchant",
	"description":    "description",
	"memo":           "description",
	"category":       "category",
}

// CSVRecord converts a single CSV row of the given kind. Merchant falls back
// to the description.
func (c *Converter) CSVRecord(ownerID string, kind record.Kind, row CSVRow) (*record.FinancialRecord, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
	rec, err := c.newRecord(strings.TrimSpace(row.ID), ownerID, kind, SourceCSV)
	if err != nil {
		return nil, err
	}

	if rec.Date, err = ParseDate(row.Date); err != nil {
		return nil, err
	}
	if rec.Amount, err = ParseAmount(row.Amount); err != nil {
		return nil, err
	}
	rec.MerchantText = firstNonEmpty(row.Merchant, row.Description)
	rec.Category = strings.TrimSpace(row.Category)
	return rec, nil
}

// ReadCSV reads a CSV export with a header row. Rows that fail to convert
// are reported as RowErrors and skipped; a malformed file returns an error.
func (c *Converter) ReadCSV(r io.Reader, ownerID string, kind record.Kind) ([]*record.FinancialRecord, []*RowError, error) {
	if !kind.Valid() {
		return nil, nil, fmt.Errorf("unknown record kind %q", kind)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("csv is empty")
		}
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int)
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if field, ok := headerAliases[key]; ok {
			if _, seen := columns[field]; !seen {
				columns[field] = i
			}
		}
	}
	if _, ok := columns["amount"]; !ok {
		return nil, nil, errors.New("csv header has no amount column")
	}
	if _, ok := columns["date"]; !ok {
		return nil, nil, errors.New("csv header has no date column")
	}

	get := func(fields []string, name string) string {
		if i, ok := columns[name]; ok && i < len(fields) {
			return fields[i]
		}
		return ""
	}

	var records []*record.FinancialRecord
	var rowErrs []*RowError
	line := 1
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			rowErrs = append(rowErrs, &RowError{Line: line, Err: err})
			continue
		}

		row := CSVRow{
			ID:          get(fields, "id"),
			Date:        get(fields, "date"),
			Amount:      get(fields, "amount"),
			Merchant:    get(fields, "merchant"),
			Description: get(fields, "description"),
			Category:    get(fields, "category"),
		}
		rec, err := c.CSVRecord(ownerID, kind, row)
		if err != nil {
			rowErrs = append(rowErrs, &RowError{Line: line, Err: err})
			continue
		}
		records = append(records, rec)
	}

	return records, rowErrs, nil
}
