package storage

import (
	"fmt"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/shopspring/decimal"
)

// RecordQuery bounds a candidate search. Bounds are inclusive.
type RecordQuery struct {
	OwnerID       string
	Kind          record.Kind
	AmountLow     decimal.Decimal
	AmountHigh    decimal.Decimal
	DateLow       time.Time
	DateHigh      time.Time
	ExcludeLinked bool   // Skip matched records and records with a linked ID
	ExcludeID     string // Skip this record (empty = none)
	Limit         int    // Max results (0 = default 200)

	// Ordering reference. Zero values rank by distance from the low bounds.
	NearDate   time.Time
	NearAmount decimal.Decimal
}

// UnmatchedQuery pages through unlinked records by ascending ID
type UnmatchedQuery struct {
	Kind    record.Kind
	AfterID string // Keyset cursor (empty = from the start)
	Limit   int    // Max results (0 = default 100)
}

const (
	defaultCandidateLimit = 200
	defaultPageLimit      = 100
)

func (q RecordQuery) limit() int {
	if q.Limit <= 0 {
		return defaultCandidateLimit
	}
	return q.Limit
}

func (q UnmatchedQuery) limit() int {
	if q.Limit <= 0 {
		return defaultPageLimit
	}
	return q.Limit
}

// nearDate is the date results are ranked against
func (q RecordQuery) nearDate() time.Time {
	if q.NearDate.IsZero() {
		return record.CalendarDate(q.DateLow)
	}
	return record.CalendarDate(q.NearDate)
}

// nearAmount is the amount results are ranked against
func (q RecordQuery) nearAmount() decimal.Decimal {
	if q.NearAmount.IsZero() {
		return q.AmountLow
	}
	return q.NearAmount
}

// closer reports whether a ranks before b for q
func (q RecordQuery) closer(a, b *record.FinancialRecord) bool {
	near := q.nearDate()
	da := absDays(record.CalendarDate(a.Date).Sub(near))
	db := absDays(record.CalendarDate(b.Date).Sub(near))
	if da != db {
		return da < db
	}
	amount := q.nearAmount()
	aa := a.Amount.Decimal.Sub(amount).Abs()
	ab := b.Amount.Decimal.Sub(amount).Abs()
	if !aa.Equal(ab) {
		return aa.LessThan(ab)
	}
	return a.ID < b.ID
}

func absDays(d time.Duration) int64 {
	days := int64(d / (24 * time.Hour))
	if days < 0 {
		return -days
	}
	return days
}

// checkSaveConflict reports whether saving incoming over existing would
// rewrite a record's identity or the fields a live match was scored on.
func checkSaveConflict(existing, incoming *record.FinancialRecord) error {
	if existing.Kind != incoming.Kind {
		return fmt.Errorf("record %s is a %s, not a %s: %w", existing.ID, existing.Kind, incoming.Kind, ErrRecordConflict)
	}
	if existing.OwnerID != incoming.OwnerID {
		return fmt.Errorf("record %s belongs to another owner: %w", existing.ID, ErrRecordConflict)
	}
	if existing.LinkState != record.StateMatched && existing.LinkedID == "" {
		return nil
	}
	if existing.HasAmount() != incoming.HasAmount() ||
		(existing.HasAmount() && !existing.Amount.Decimal.Equal(incoming.Amount.Decimal)) {
		return fmt.Errorf("record %s is matched; unmatch it before changing the amount: %w", existing.ID, ErrRecordConflict)
	}
	if existing.HasDate() != incoming.HasDate() ||
		(existing.HasDate() && !record.CalendarDate(existing.Date).Equal(record.CalendarDate(incoming.Date))) {
		return fmt.Errorf("record %s is matched; unmatch it before changing the date: %w", existing.ID, ErrRecordConflict)
	}
	return nil
}

// matches reports whether r satisfies q using exact decimal comparison.
func (q RecordQuery) matches(r *record.FinancialRecord) bool {
	if r.OwnerID != q.OwnerID || r.Kind != q.Kind {
		return false
	}
	if q.ExcludeID != "" && r.ID == q.ExcludeID {
		return false
	}
	if q.ExcludeLinked && (r.LinkState == record.StateMatched || r.LinkedID != "") {
		return false
	}
	if !r.HasAmount() || !r.HasDate() {
		return false
	}
	amount := r.Amount.Decimal
	if amount.LessThan(q.AmountLow) || amount.GreaterThan(q.AmountHigh) {
		return false
	}
	date := record.CalendarDate(r.Date)
	if date.Before(record.CalendarDate(q.DateLow)) || date.After(record.CalendarDate(q.DateHigh)) {
		return false
	}
	return true
}

// Sweep run statuses
const (
	SweepStatusRunning             = "running"
	SweepStatusCompleted           = "completed"
	SweepStatusCompletedWithErrors = "completed_with_errors"
	SweepStatusFailed              = "failed"
)

// SweepCounts are the per-outcome totals of a sweep
type SweepCounts struct {
	Found   int `json:"records_found"`
	Matched int `json:"matched"`
	NoMatch int `json:"no_match"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

// SweepRun represents a sweep run record
type SweepRun struct {
	ID           int64       `json:"id"`
	Job          string      `json:"job"`
	Kind         record.Kind `json:"kind"`
	StartedAt    string      `json:"started_at"`
	CompletedAt  string      `json:"completed_at,omitempty"`
	Counts       SweepCounts `json:"counts"`
	Status       string      `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// sweepStatus derives the terminal status of a run
func sweepStatus(counts SweepCounts, runErr error) string {
	switch {
	case runErr != nil:
		return SweepStatusFailed
	case counts.Errored > 0:
		return SweepStatusCompletedWithErrors
	default:
		return SweepStatusCompleted
	}
}

// Stats contains aggregate counts
type Stats struct {
	TotalRecords   int                       `json:"total_records"`
	ByKind         map[record.Kind]KindStats `json:"by_kind"`
	ActiveMatches  int                       `json:"active_matches"`
	DuplicateFlags int                       `json:"duplicate_flags"`
}

// KindStats contains per-kind counts by link state
type KindStats struct {
	Unmatched   int `json:"unmatched"`
	Matched     int `json:"matched"`
	NeedsReview int `json:"needs_review"`
}

func (k *KindStats) add(state record.LinkState, n int) {
	switch state {
	case record.StateMatched:
		k.Matched += n
	case record.StateNeedsReview:
		k.NeedsReview += n
	default:
		k.Unmatched += n
	}
}
