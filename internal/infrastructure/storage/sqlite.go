package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// amountSlack widens REAL range filters so float rounding never drops a row;
// results are re-checked with exact decimals.
const amountSlack = 0.005

const recordColumns = `id, kind, owner_id, record_date, amount, merchant_text, category,
	linked_id, link_state, source, created_at`

// Storage provides SQLite database access for financial records.
// It implements the Repository interface.
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database.
// Write transactions take the database lock immediately so concurrent
// CompareAndLink calls serialize instead of failing on lock upgrade.
func NewStorage(dbPath string) (*Storage, error) {
	dsn := dbPath + "?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"
	if strings.Contains(dbPath, "?") {
		dsn = dbPath + "&_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	s := &Storage{
		db:     db,
		logger: slog.Default().With("system", "storage"),
	}

	// Run all pending migrations
	if err := runMigrations(context.Background(), db, s.logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SchemaVersion returns the latest applied migration version
func (s *Storage) SchemaVersion(ctx context.Context) (int64, error) {
	return schemaVersion(ctx, s.db)
}

// SaveRecord inserts a record or updates its descriptive fields. The
// existing row is read inside the same write transaction so a concurrent
// CompareAndLink cannot slip between the conflict check and the update.
func (s *Storage) SaveRecord(ctx context.Context, rec *record.FinancialRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.LinkState == "" {
		rec.LinkState = record.StateUnmatched
	}

	recordDate, amount, amountValue := encodeRecord(rec)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin save transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, rec.ID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
		INSERT INTO records
		(id, kind, owner_id, record_date, amount, amount_value, merchant_text,
		 category, linked_id, link_state, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rec.ID,
			string(rec.Kind),
			rec.OwnerID,
			recordDate,
			amount,
			amountValue,
			rec.MerchantText,
			rec.Category,
			nullString(rec.LinkedID),
			string(rec.LinkState),
			rec.Source,
			rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
		}
	case err != nil:
		return fmt.Errorf("failed to read record %s: %w", rec.ID, err)
	default:
		if err := checkSaveConflict(existing, rec); err != nil {
			return err
		}
		// Kind, owner and link fields are left as stored
		_, err = tx.ExecContext(ctx, `
		UPDATE records SET
			record_date = ?,
			amount = ?,
			amount_value = ?,
			merchant_text = ?,
			category = ?,
			source = ?
		WHERE id = ?
		`,
			recordDate,
			amount,
			amountValue,
			rec.MerchantText,
			rec.Category,
			rec.Source,
			rec.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update record %s: %w", rec.ID, err)
		}
		rec.LinkedID = existing.LinkedID
		rec.LinkState = existing.LinkState
		rec.CreatedAt = existing.CreatedAt
	}

	return tx.Commit()
}

// GetRecord retrieves a record by ID
func (s *Storage) GetRecord(ctx context.Context, id string) (*record.FinancialRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = ?`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FindByAmountAndDateRange returns records inside the bounds of q
func (s *Storage) FindByAmountAndDateRange(ctx context.Context, q RecordQuery) ([]*record.FinancialRecord, error) {
	low, _ := q.AmountLow.Float64()
	high, _ := q.AmountHigh.Float64()

	var sb strings.Builder
	sb.WriteString(`SELECT ` + recordColumns + ` FROM records
		WHERE owner_id = ? AND kind = ?
		  AND amount_value BETWEEN ? AND ?
		  AND record_date BETWEEN ? AND ?`)
	args := []interface{}{
		q.OwnerID,
		string(q.Kind),
		low - amountSlack,
		high + amountSlack,
		q.DateLow.Format(dateLayout),
		q.DateHigh.Format(dateLayout),
	}

	if q.ExcludeLinked {
		sb.WriteString(` AND link_state != 'matched' AND linked_id IS NULL`)
	}
	if q.ExcludeID != "" {
		sb.WriteString(` AND id != ?`)
		args = append(args, q.ExcludeID)
	}
	// Nearest first so the limit drops the weakest candidates
	nearAmount, _ := q.nearAmount().Float64()
	sb.WriteString(` ORDER BY ABS(julianday(record_date) - julianday(?)) ASC,
		ABS(amount_value - ?) ASC, id ASC LIMIT ?`)
	args = append(args, q.nearDate().Format(dateLayout), nearAmount, q.limit())

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	results := make([]*record.FinancialRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if q.matches(rec) {
			results = append(results, rec)
		}
	}
	return results, rows.Err()
}

// ListUnmatched pages through unlinked records of a kind
func (s *Storage) ListUnmatched(ctx context.Context, q UnmatchedQuery) ([]*record.FinancialRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM records
		WHERE kind = ? AND link_state != 'matched' AND linked_id IS NULL AND id > ?
		ORDER BY id ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, string(q.Kind), q.AfterID, q.limit())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []*record.FinancialRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// GetStats returns aggregate counts
func (s *Storage) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByKind: make(map[record.Kind]KindStats)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, link_state, COUNT(*) FROM records GROUP BY kind, link_state
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var kind, state string
		var n int
		if err := rows.Scan(&kind, &state, &n); err != nil {
			return nil, err
		}
		ks := stats.ByKind[record.Kind(kind)]
		ks.add(record.LinkState(state), n)
		stats.ByKind[record.Kind(kind)] = ks
		stats.TotalRecords += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM match_results WHERE active = 1`).Scan(&stats.ActiveMatches)
	if err != nil {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM duplicate_flags`).Scan(&stats.DuplicateFlags)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// CompareAndLink links two records atomically
func (s *Storage) CompareAndLink(ctx context.Context, idA, idB string, expectedA, expectedB record.LinkState, match *record.MatchResult) (bool, error) {
	if idA == idB {
		return false, fmt.Errorf("cannot link record %s to itself", idA)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin link transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	link := `
		UPDATE records SET linked_id = ?, link_state = 'matched'
		WHERE id = ? AND link_state = ? AND linked_id IS NULL
	`

	for _, side := range []struct {
		id, other string
		expected  record.LinkState
	}{
		{idA, idB, expectedA},
		{idB, idA, expectedB},
	} {
		res, err := tx.ExecContext(ctx, link, side.other, side.id, string(side.expected))
		if err != nil {
			return false, fmt.Errorf("failed to link %s: %w", side.id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		if n != 1 {
			return false, nil
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO match_results (id, record_id, counterpart_id, confidence, matched_at, active)
		VALUES (?, ?, ?, ?, ?, 1)
	`, match.ID, match.RecordID, match.CounterpartID, match.Confidence, match.MatchedAt)
	if err != nil {
		return false, fmt.Errorf("failed to save match %s: %w", match.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit link: %w", err)
	}
	return true, nil
}

// Unlink clears both sides of the active match involving recordID
func (s *Storage) Unlink(ctx context.Context, recordID string) (*record.MatchResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin unlink transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	match, err := activeMatch(ctx, tx, recordID)
	if err != nil {
		return nil, err
	}

	var linkedID sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT linked_id FROM records WHERE id = ?`, recordID).Scan(&linkedID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", recordID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	ids := []string{recordID}
	if linkedID.Valid && linkedID.String != "" {
		ids = append(ids, linkedID.String)
	}
	if match != nil {
		ids = append(ids, match.RecordID, match.CounterpartID)
	}
	if len(ids) == 1 && match == nil {
		return nil, nil
	}

	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `
			UPDATE records SET linked_id = NULL, link_state = 'unmatched' WHERE id = ?
		`, id)
		if err != nil {
			return nil, fmt.Errorf("failed to unlink %s: %w", id, err)
		}
	}

	if match != nil {
		_, err := tx.ExecContext(ctx, `
			UPDATE match_results SET active = 0, unmatched_at = ? WHERE id = ?
		`, time.Now().UTC(), match.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to deactivate match %s: %w", match.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit unlink: %w", err)
	}
	return match, nil
}

// GetMatchForRecord returns the active match involving recordID
func (s *Storage) GetMatchForRecord(ctx context.Context, recordID string) (*record.MatchResult, error) {
	return activeMatch(ctx, s.db, recordID)
}

// queryRower is satisfied by *sql.DB and *sql.Tx
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func activeMatch(ctx context.Context, q queryRower, recordID string) (*record.MatchResult, error) {
	m := &record.MatchResult{}
	err := q.QueryRowContext(ctx, `
		SELECT id, record_id, counterpart_id, confidence, matched_at
		FROM match_results
		WHERE active = 1 AND (record_id = ? OR counterpart_id = ?)
		ORDER BY matched_at DESC
		LIMIT 1
	`, recordID, recordID).Scan(&m.ID, &m.RecordID, &m.CounterpartID, &m.Confidence, &m.MatchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SaveDuplicateFlag inserts or refreshes a flag
func (s *Storage) SaveDuplicateFlag(ctx context.Context, flag record.DuplicateFlag) error {
	if flag.CreatedAt.IsZero() {
		flag.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO duplicate_flags (record_id, duplicate_of_id, confidence, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(record_id, duplicate_of_id) DO UPDATE SET
			confidence = excluded.confidence,
			created_at = excluded.created_at
	`, flag.RecordID, flag.DuplicateOfID, flag.Confidence, flag.CreatedAt)
	return err
}

// ListDuplicateFlags returns flags raised for recordID
func (s *Storage) ListDuplicateFlags(ctx context.Context, recordID string) ([]record.DuplicateFlag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, duplicate_of_id, confidence, created_at
		FROM duplicate_flags
		WHERE record_id = ?
		ORDER BY confidence DESC, duplicate_of_id ASC
	`, recordID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	flags := make([]record.DuplicateFlag, 0)
	for rows.Next() {
		var f record.DuplicateFlag
		if err := rows.Scan(&f.RecordID, &f.DuplicateOfID, &f.Confidence, &f.CreatedAt); err != nil {
			return nil, err
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// StartSweepRun records the start of a sweep run
func (s *Storage) StartSweepRun(ctx context.Context, job string, kind record.Kind) (int64, error) {
	query := `
		INSERT INTO sweep_runs (job, kind, status)
		VALUES (?, ?, 'running')
	`

	result, err := s.db.ExecContext(ctx, query, job, string(kind))
	if err != nil {
		return 0, err
	}

	return result.LastInsertId()
}

// CompleteSweepRun records the completion of a sweep run
func (s *Storage) CompleteSweepRun(ctx context.Context, runID int64, counts SweepCounts, runErr error) error {
	query := `
		UPDATE sweep_runs
		SET completed_at = CURRENT_TIMESTAMP,
		    records_found = ?,
		    matched = ?,
		    no_match = ?,
		    skipped = ?,
		    errored = ?,
		    status = ?,
		    error_message = ?
		WHERE id = ?
	`

	var errMsg sql.NullString
	if runErr != nil {
		errMsg = sql.NullString{String: runErr.Error(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		counts.Found,
		counts.Matched,
		counts.NoMatch,
		counts.Skipped,
		counts.Errored,
		sweepStatus(counts, runErr),
		errMsg,
		runID,
	)
	return err
}

// ListSweepRuns returns recent sweep runs
func (s *Storage) ListSweepRuns(ctx context.Context, limit int) ([]SweepRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job, kind, started_at, completed_at, records_found, matched,
		       no_match, skipped, errored, status, error_message
		FROM sweep_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	runs := make([]SweepRun, 0)
	for rows.Next() {
		run, err := scanSweepRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetSweepRun retrieves a sweep run by ID
func (s *Storage) GetSweepRun(ctx context.Context, runID int64) (*SweepRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job, kind, started_at, completed_at, records_found, matched,
		       no_match, skipped, errored, status, error_message
		FROM sweep_runs WHERE id = ?
	`, runID)

	run, err := scanSweepRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sweep run %d: %w", runID, ErrNotFound)
	}
	return run, err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*record.FinancialRecord, error) {
	var (
		rec        record.FinancialRecord
		kind       string
		state      string
		recordDate sql.NullString
		amount     sql.NullString
		linkedID   sql.NullString
	)

	err := row.Scan(
		&rec.ID,
		&kind,
		&rec.OwnerID,
		&recordDate,
		&amount,
		&rec.MerchantText,
		&rec.Category,
		&linkedID,
		&state,
		&rec.Source,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Kind = record.Kind(kind)
	rec.LinkState = record.LinkState(state)
	rec.LinkedID = linkedID.String

	if recordDate.Valid && recordDate.String != "" {
		d, err := time.Parse(dateLayout, recordDate.String)
		if err != nil {
			return nil, fmt.Errorf("record %s has malformed date %q: %w", rec.ID, recordDate.String, err)
		}
		rec.Date = d
	}
	if amount.Valid && amount.String != "" {
		d, err := decimal.NewFromString(amount.String)
		if err != nil {
			return nil, fmt.Errorf("record %s has malformed amount %q: %w", rec.ID, amount.String, err)
		}
		rec.Amount = decimal.NewNullDecimal(d)
	}

	return &rec, nil
}

func scanSweepRun(row rowScanner) (*SweepRun, error) {
	var (
		run         SweepRun
		kind        string
		completedAt sql.NullString
		errMsg      sql.NullString
	)

	err := row.Scan(
		&run.ID,
		&run.Job,
		&kind,
		&run.StartedAt,
		&completedAt,
		&run.Counts.Found,
		&run.Counts.Matched,
		&run.Counts.NoMatch,
		&run.Counts.Skipped,
		&run.Counts.Errored,
		&run.Status,
		&errMsg,
	)
	if err != nil {
		return nil, err
	}

	run.Kind = record.Kind(kind)
	run.CompletedAt = completedAt.String
	run.ErrorMessage = errMsg.String
	return &run, nil
}

// encodeRecord converts the optional date and amount to column values.
func encodeRecord(rec *record.FinancialRecord) (recordDate, amount sql.NullString, amountValue sql.NullFloat64) {
	if rec.HasDate() {
		recordDate = sql.NullString{String: record.CalendarDate(rec.Date).Format(dateLayout), Valid: true}
	}
	if rec.HasAmount() {
		d := rec.Amount.Decimal
		f, _ := d.Float64()
		amount = sql.NullString{String: d.String(), Valid: true}
		amountValue = sql.NullFloat64{Float64: f, Valid: true}
	}
	return recordDate, amount, amountValue
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
