package storage

import (
	"context"
	"errors"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// ErrRecordConflict is returned when a save would change a record's identity
// (kind or owner) or the amount or date of a matched record.
var ErrRecordConflict = errors.New("record conflict")

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, PostgreSQL, etc.)
// and makes testing with mocks straightforward.
type Repository interface {
	RecordRepository
	MatchRepository
	DuplicateRepository
	SweepRunRepository

	// Ping checks that the store is reachable
	Ping(ctx context.Context) error
	Close() error
}

// RecordRepository handles financial record persistence and lookup
type RecordRepository interface {
	// SaveRecord inserts a record or updates its descriptive fields.
	// Link fields of an existing record are only changed by CompareAndLink and Unlink.
	// Kind and owner never change, and a matched record keeps its amount and
	// date until it is unlinked; either attempt returns ErrRecordConflict.
	SaveRecord(ctx context.Context, rec *record.FinancialRecord) error

	// GetRecord retrieves a record by ID (ErrNotFound if missing)
	GetRecord(ctx context.Context, id string) (*record.FinancialRecord, error)

	// FindByAmountAndDateRange returns records inside the amount and date
	// bounds of q, nearest first: by day distance from q.NearDate, then by
	// amount distance from q.NearAmount, then by ID. The limit applies after
	// ordering.
	FindByAmountAndDateRange(ctx context.Context, q RecordQuery) ([]*record.FinancialRecord, error)

	// ListUnmatched pages through records of a kind that are not linked
	ListUnmatched(ctx context.Context, q UnmatchedQuery) ([]*record.FinancialRecord, error)

	// GetStats returns aggregate counts
	GetStats(ctx context.Context) (*Stats, error)
}

// MatchRepository handles the atomic link between two records
type MatchRepository interface {
	// CompareAndLink links idA and idB in one transaction when both are still
	// in their expected state and unlinked. It returns false, without
	// changing anything, when either precondition fails.
	CompareAndLink(ctx context.Context, idA, idB string, expectedA, expectedB record.LinkState, match *record.MatchResult) (bool, error)

	// Unlink clears both sides of the active match involving recordID and
	// returns it. It returns nil when the record has no active match.
	Unlink(ctx context.Context, recordID string) (*record.MatchResult, error)

	// GetMatchForRecord returns the active match involving recordID, or nil
	GetMatchForRecord(ctx context.Context, recordID string) (*record.MatchResult, error)
}

// DuplicateRepository stores advisory duplicate flags
type DuplicateRepository interface {
	// SaveDuplicateFlag inserts or refreshes a flag
	SaveDuplicateFlag(ctx context.Context, flag record.DuplicateFlag) error

	// ListDuplicateFlags returns flags raised for recordID, highest confidence first
	ListDuplicateFlags(ctx context.Context, recordID string) ([]record.DuplicateFlag, error)
}

// SweepRunRepository handles sweep run tracking
type SweepRunRepository interface {
	// StartSweepRun records the start of a sweep and returns the run ID
	StartSweepRun(ctx context.Context, job string, kind record.Kind) (int64, error)

	// CompleteSweepRun records the outcome of a sweep. A non-nil runErr marks it failed.
	CompleteSweepRun(ctx context.Context, runID int64, counts SweepCounts, runErr error) error

	// ListSweepRuns returns recent sweep runs, newest first
	ListSweepRuns(ctx context.Context, limit int) ([]SweepRun, error)

	// GetSweepRun retrieves a sweep run by ID (ErrNotFound if missing)
	GetSweepRun(ctx context.Context, runID int64) (*SweepRun, error)
}
