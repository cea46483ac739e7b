package reconcile

import (
	"context"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
	"github.com/shopspring/decimal"
)

// CandidateFinder narrows the counterpart search to records that can score
// above zero: opposite kind, same owner, inside the amount band and date
// window, and not yet linked.
type CandidateFinder struct {
	store storage.RecordRepository
	calc  *matcher.Calculator
	limit int
}

// NewCandidateFinder creates a finder bounded by the calculator's policy.
// limit caps the rows per query (0 = store default).
func NewCandidateFinder(store storage.RecordRepository, calc *matcher.Calculator, limit int) *CandidateFinder {
	return &CandidateFinder{
		store: store,
		calc:  calc,
		limit: limit,
	}
}

// FindCandidates returns unlinked counterparts for rec. An empty result is
// not an error.
func (f *CandidateFinder) FindCandidates(ctx context.Context, rec *record.FinancialRecord) ([]*record.FinancialRecord, error) {
	if err := requireScorable(rec); err != nil {
		return nil, err
	}

	low, high := f.calc.AmountBand(rec.Amount.Decimal)
	window := f.calc.DateWindow()

	q := storage.RecordQuery{
		OwnerID:       rec.OwnerID,
		Kind:          rec.Kind.Counterpart(),
		AmountLow:     low,
		AmountHigh:    high,
		DateLow:       rec.Date.AddDate(0, 0, -window),
		DateHigh:      rec.Date.AddDate(0, 0, window),
		ExcludeLinked: true,
		ExcludeID:     rec.ID,
		Limit:         f.limit,
		NearDate:      rec.Date,
		NearAmount:    rec.Amount.Decimal,
	}

	found, err := f.store.FindByAmountAndDateRange(ctx, q)
	if err != nil {
		return nil, storeError("find candidates", err)
	}
	if found == nil {
		found = []*record.FinancialRecord{}
	}
	return found, nil
}

// FindNeighbours returns same-kind records of the same owner whose amount is
// within tolerance and whose date is within windowDays of rec. Linked records
// are included: a re-import of an already reconciled expense is still a
// duplicate.
func (f *CandidateFinder) FindNeighbours(ctx context.Context, rec *record.FinancialRecord, tolerance decimal.Decimal, windowDays int) ([]*record.FinancialRecord, error) {
	if err := requireScorable(rec); err != nil {
		return nil, err
	}

	low := rec.Amount.Decimal.Sub(tolerance)
	if low.IsNegative() {
		low = decimal.Zero
	}

	q := storage.RecordQuery{
		OwnerID:    rec.OwnerID,
		Kind:       rec.Kind,
		AmountLow:  low,
		AmountHigh: rec.Amount.Decimal.Add(tolerance),
		DateLow:    rec.Date.AddDate(0, 0, -windowDays),
		DateHigh:   rec.Date.AddDate(0, 0, windowDays),
		ExcludeID:  rec.ID,
		Limit:      f.limit,
		NearDate:   rec.Date,
		NearAmount: rec.Amount.Decimal,
	}

	found, err := f.store.FindByAmountAndDateRange(ctx, q)
	if err != nil {
		return nil, storeError("find duplicate neighbours", err)
	}
	return found, nil
}

func requireScorable(rec *record.FinancialRecord) error {
	if !rec.HasAmount() {
		return &matcher.MissingFieldError{RecordID: rec.ID, Field: "amount"}
	}
	if !rec.HasDate() {
		return &matcher.MissingFieldError{RecordID: rec.ID, Field: "date"}
	}
	return nil
}
