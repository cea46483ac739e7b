package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps and slices, making tests fast and isolated.
// CompareAndLink and Unlink hold the mutex for their whole duration, which
// gives the same all-or-nothing behavior as the SQLite transaction.
type MockRepository struct {
	mu        sync.Mutex
	records   map[string]*record.FinancialRecord
	matches   []*mockMatch
	flags     map[string][]record.DuplicateFlag // Keyed by record_id
	sweepRuns map[int64]*SweepRun
	nextRunID int64

	// Hooks for test assertions
	SaveRecordCalls     int
	CompareAndLinkCalls int
	FindCalls           int
	LastQuery           RecordQuery

	// BeforeCompareAndLink runs before the link preconditions are checked,
	// outside the lock. Tests use it to simulate a concurrent writer.
	BeforeCompareAndLink func(idA, idB string)

	// Error injection for testing error paths
	SaveRecordErr        error
	GetRecordErr         error
	FindErr              error
	ListUnmatchedErr     error
	CompareAndLinkErr    error
	UnlinkErr            error
	GetMatchErr          error
	SaveDuplicateFlagErr error
	StartSweepRunErr     error
	CompleteSweepRunErr  error
	PingErr              error
}

type mockMatch struct {
	result record.MatchResult
	active bool
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		records:   make(map[string]*record.FinancialRecord),
		flags:     make(map[string][]record.DuplicateFlag),
		sweepRuns: make(map[int64]*SweepRun),
		nextRunID: 1,
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// Ping returns PingErr
func (m *MockRepository) Ping(ctx context.Context) error {
	return m.PingErr
}

// SaveRecord saves a record to the in-memory map
func (m *MockRepository) SaveRecord(ctx context.Context, rec *record.FinancialRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveRecordCalls++
	if m.SaveRecordErr != nil {
		return m.SaveRecordErr
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.LinkState == "" {
		rec.LinkState = record.StateUnmatched
	}

	stored := rec.Clone()
	stored.Date = record.CalendarDate(stored.Date)
	if existing, ok := m.records[rec.ID]; ok {
		if err := checkSaveConflict(existing, rec); err != nil {
			return err
		}
		// Link fields are owned by CompareAndLink and Unlink.
		stored.LinkedID = existing.LinkedID
		stored.LinkState = existing.LinkState
		stored.CreatedAt = existing.CreatedAt
		rec.LinkedID = existing.LinkedID
		rec.LinkState = existing.LinkState
		rec.CreatedAt = existing.CreatedAt
	}
	m.records[rec.ID] = stored
	return nil
}

// GetRecord retrieves a copy of a record
func (m *MockRepository) GetRecord(ctx context.Context, id string) (*record.FinancialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetRecordErr != nil {
		return nil, m.GetRecordErr
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	return rec.Clone(), nil
}

// FindByAmountAndDateRange filters records in memory
func (m *MockRepository) FindByAmountAndDateRange(ctx context.Context, q RecordQuery) ([]*record.FinancialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FindCalls++
	m.LastQuery = q
	if m.FindErr != nil {
		return nil, m.FindErr
	}

	results := make([]*record.FinancialRecord, 0)
	for _, rec := range m.records {
		if q.matches(rec) {
			results = append(results, rec.Clone())
		}
	}

	sort.Slice(results, func(i, j int) bool { return q.closer(results[i], results[j]) })

	if len(results) > q.limit() {
		results = results[:q.limit()]
	}
	return results, nil
}

// ListUnmatched pages through unlinked records by ID
func (m *MockRepository) ListUnmatched(ctx context.Context, q UnmatchedQuery) ([]*record.FinancialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListUnmatchedErr != nil {
		return nil, m.ListUnmatchedErr
	}

	var results []*record.FinancialRecord
	for _, rec := range m.records {
		if rec.Kind != q.Kind || rec.LinkState == record.StateMatched || rec.LinkedID != "" {
			continue
		}
		if rec.ID <= q.AfterID {
			continue
		}
		results = append(results, rec.Clone())
	}

	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	if len(results) > q.limit() {
		results = results[:q.limit()]
	}
	return results, nil
}

// GetStats counts records in memory
func (m *MockRepository) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &Stats{ByKind: make(map[record.Kind]KindStats)}
	for _, rec := range m.records {
		ks := stats.ByKind[rec.Kind]
		ks.add(rec.LinkState, 1)
		stats.ByKind[rec.Kind] = ks
		stats.TotalRecords++
	}
	for _, mm := range m.matches {
		if mm.active {
			stats.ActiveMatches++
		}
	}
	for _, f := range m.flags {
		stats.DuplicateFlags += len(f)
	}
	return stats, nil
}

// CompareAndLink links two records if both preconditions hold
func (m *MockRepository) CompareAndLink(ctx context.Context, idA, idB string, expectedA, expectedB record.LinkState, match *record.MatchResult) (bool, error) {
	if m.BeforeCompareAndLink != nil {
		m.BeforeCompareAndLink(idA, idB)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.CompareAndLinkCalls++
	if m.CompareAndLinkErr != nil {
		return false, m.CompareAndLinkErr
	}
	if idA == idB {
		return false, fmt.Errorf("cannot link record %s to itself", idA)
	}

	a, okA := m.records[idA]
	b, okB := m.records[idB]
	if !okA || !okB {
		return false, nil
	}
	if a.LinkState != expectedA || a.LinkedID != "" || b.LinkState != expectedB || b.LinkedID != "" {
		return false, nil
	}

	a.LinkedID, a.LinkState = idB, record.StateMatched
	b.LinkedID, b.LinkState = idA, record.StateMatched
	m.matches = append(m.matches, &mockMatch{result: *match, active: true})
	return true, nil
}

// Unlink clears both sides of the active match
func (m *MockRepository) Unlink(ctx context.Context, recordID string) (*record.MatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UnlinkErr != nil {
		return nil, m.UnlinkErr
	}
	rec, ok := m.records[recordID]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", recordID, ErrNotFound)
	}

	mm := m.activeMatchLocked(recordID)
	ids := []string{recordID}
	if rec.LinkedID != "" {
		ids = append(ids, rec.LinkedID)
	}
	if mm != nil {
		ids = append(ids, mm.result.RecordID, mm.result.CounterpartID)
	}
	if len(ids) == 1 && mm == nil {
		return nil, nil
	}

	for _, id := range ids {
		if r, ok := m.records[id]; ok {
			r.LinkedID = ""
			r.LinkState = record.StateUnmatched
		}
	}

	if mm == nil {
		return nil, nil
	}
	mm.active = false
	result := mm.result
	return &result, nil
}

// GetMatchForRecord returns the active match involving recordID
func (m *MockRepository) GetMatchForRecord(ctx context.Context, recordID string) (*record.MatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetMatchErr != nil {
		return nil, m.GetMatchErr
	}
	mm := m.activeMatchLocked(recordID)
	if mm == nil {
		return nil, nil
	}
	result := mm.result
	return &result, nil
}

func (m *MockRepository) activeMatchLocked(recordID string) *mockMatch {
	for i := len(m.matches) - 1; i >= 0; i-- {
		mm := m.matches[i]
		if mm.active && mm.result.Involves(recordID) {
			return mm
		}
	}
	return nil
}

// ActiveMatchCount returns the number of active matches (test helper)
func (m *MockRepository) ActiveMatchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, mm := range m.matches {
		if mm.active {
			n++
		}
	}
	return n
}

// SaveDuplicateFlag stores or refreshes a flag
func (m *MockRepository) SaveDuplicateFlag(ctx context.Context, flag record.DuplicateFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveDuplicateFlagErr != nil {
		return m.SaveDuplicateFlagErr
	}

	existing := m.flags[flag.RecordID]
	for i := range existing {
		if existing[i].DuplicateOfID == flag.DuplicateOfID {
			existing[i] = flag
			return nil
		}
	}
	m.flags[flag.RecordID] = append(existing, flag)
	return nil
}

// ListDuplicateFlags returns flags for recordID, highest confidence first
func (m *MockRepository) ListDuplicateFlags(ctx context.Context, recordID string) ([]record.DuplicateFlag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	flags := make([]record.DuplicateFlag, len(m.flags[recordID]))
	copy(flags, m.flags[recordID])
	sort.SliceStable(flags, func(i, j int) bool {
		if flags[i].Confidence != flags[j].Confidence {
			return flags[i].Confidence > flags[j].Confidence
		}
		return flags[i].DuplicateOfID < flags[j].DuplicateOfID
	})
	return flags, nil
}

// StartSweepRun creates a new sweep run
func (m *MockRepository) StartSweepRun(ctx context.Context, job string, kind record.Kind) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.StartSweepRunErr != nil {
		return 0, m.StartSweepRunErr
	}

	id := m.nextRunID
	m.nextRunID++
	m.sweepRuns[id] = &SweepRun{
		ID:        id,
		Job:       job,
		Kind:      kind,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		Status:    SweepStatusRunning,
	}
	return id, nil
}

// CompleteSweepRun marks a sweep run complete
func (m *MockRepository) CompleteSweepRun(ctx context.Context, runID int64, counts SweepCounts, runErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CompleteSweepRunErr != nil {
		return m.CompleteSweepRunErr
	}

	run, ok := m.sweepRuns[runID]
	if !ok {
		return fmt.Errorf("sweep run %d: %w", runID, ErrNotFound)
	}
	run.Counts = counts
	run.Status = sweepStatus(counts, runErr)
	run.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	if runErr != nil {
		run.ErrorMessage = runErr.Error()
	}
	return nil
}

// ListSweepRuns returns sweep runs, newest first
func (m *MockRepository) ListSweepRuns(ctx context.Context, limit int) ([]SweepRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := make([]SweepRun, 0, len(m.sweepRuns))
	for _, run := range m.sweepRuns {
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID > runs[j].ID })

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// GetSweepRun retrieves a sweep run by ID
func (m *MockRepository) GetSweepRun(ctx context.Context, runID int64) (*SweepRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.sweepRuns[runID]
	if !ok {
		return nil, fmt.Errorf("sweep run %d: %w", runID, ErrNotFound)
	}
	copied := *run
	return &copied, nil
}
