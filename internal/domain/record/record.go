// Package record defines the single normalized shape every matching
// component works on. Ingestion adapters convert bank transactions, OCR
// receipts and CSV rows into a FinancialRecord; nothing downstream looks at
// provider-specific fields.
package record

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind distinguishes the two record streams being reconciled.
type Kind string

const (
	KindTransaction Kind = "transaction"
	KindReceipt     Kind = "receipt"
)

// Counterpart returns the kind a record of this kind is matched against.
func (k Kind) Counterpart() Kind {
	if k == KindReceipt {
		return KindTransaction
	}
	return KindReceipt
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindTransaction || k == KindReceipt
}

// LinkState is the reconciliation state of a record.
type LinkState string

const (
	StateUnmatched   LinkState = "unmatched"
	StateMatched     LinkState = "matched"
	StateNeedsReview LinkState = "needs_review"
)

// Eligible reports whether a record in this state may be linked.
func (s LinkState) Eligible() bool {
	return s == StateUnmatched || s == StateNeedsReview
}

// FinancialRecord is a transaction or a receipt.
type FinancialRecord struct {
	ID           string
	Kind         Kind
	OwnerID      string
	Date         time.Time           // calendar date at UTC midnight; zero means missing
	Amount       decimal.NullDecimal // positive magnitude; invalid means missing
	MerchantText string
	Category     string
	LinkedID     string
	LinkState    LinkState
	Source       string
	CreatedAt    time.Time
}

// HasAmount reports whether the record carries an amount.
func (r *FinancialRecord) HasAmount() bool {
	return r.Amount.Valid
}

// HasDate reports whether the record carries a date.
func (r *FinancialRecord) HasDate() bool {
	return !r.Date.IsZero()
}

// IsMatched reports whether the record is linked to a counterpart.
func (r *FinancialRecord) IsMatched() bool {
	return r.LinkState == StateMatched && r.LinkedID != ""
}

// Clone returns a copy that can be mutated without affecting r.
func (r *FinancialRecord) Clone() *FinancialRecord {
	c := *r
	return &c
}

// MatchResult is the persisted outcome of linking two records.
type MatchResult struct {
	ID            string    `json:"id"`
	RecordID      string    `json:"record_id"`
	CounterpartID string    `json:"counterpart_id"`
	Confidence    float64   `json:"confidence"`
	MatchedAt     time.Time `json:"matched_at"`
}

// Involves reports whether id is either side of the match.
func (m *MatchResult) Involves(id string) bool {
	return m.RecordID == id || m.CounterpartID == id
}

// DuplicateFlag marks a record as a likely re-entry of another record.
// Flags are advisory and never change link state.
type DuplicateFlag struct {
	RecordID      string    `json:"record_id"`
	DuplicateOfID string    `json:"duplicate_of_id"`
	Confidence    float64   `json:"confidence"`
	CreatedAt     time.Time `json:"created_at"`
}

// CalendarDate truncates t to midnight UTC of its calendar day.
func CalendarDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute number of calendar days between a and b.
func DaysBetween(a, b time.Time) int {
	diff := CalendarDate(a).Sub(CalendarDate(b)).Hours() / 24
	if diff < 0 {
		diff = -diff
	}
	return int(diff + 0.5)
}
