// Package ingest converts the shapes produced by upstream collaborators
// (OCR receipt extraction, bank feed sync, CSV import) into
// record.FinancialRecord. Nothing past this package sees provider fields.
package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Source tags stored on ingested records
const (
	SourceOCR      = "ocr"
	SourceBankFeed = "bank_feed"
	SourceCSV      = "csv"
	SourceManual   = "manual"
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrMissingOwner  = errors.New("owner id is required")
)

// dateLayouts are tried in order. Slashes are read month first, dashes
// with a four digit year last are read day first.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"02-01-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
}

// Converter builds records from collaborator payloads
type Converter struct {
	newID func() string
	now   func() time.Time
}

// NewConverter creates a converter that assigns uuid record IDs
func NewConverter() *Converter {
	return &Converter{
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// newRecord fills the fields every ingested record shares
func (c *Converter) newRecord(id, ownerID string, kind record.Kind, source string) (*record.FinancialRecord, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrMissingOwner
	}
	if id == "" {
		id = c.newID()
	}
	return &record.FinancialRecord{
		ID:        id,
		Kind:      kind,
		OwnerID:   ownerID,
		LinkState: record.StateUnmatched,
		Source:    source,
		CreatedAt: c.now().UTC(),
	}, nil
}

// ParseDate reads a date in any supported layout and returns it at UTC
// midnight. Blank input is a missing date, not an error.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return record.CalendarDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// ParseAmount reads a money string such as "$1,234.50", "-42.10" or
// "(42.10)" and returns its positive magnitude. Blank input is a missing
// amount.
func ParseAmount(s string) (decimal.NullDecimal, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return decimal.NullDecimal{}, nil
	}
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned = cleaned[1 : len(cleaned)-1]
	}
	cleaned = strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', ',', ' ':
			return -1
		}
		return r
	}, cleaned)
	cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "+"), "-")

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return magnitude(d), nil
}

// magnitude stores amounts as positive values rounded to cents
func magnitude(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(d.Abs().Round(2))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
