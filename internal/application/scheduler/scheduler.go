// Package scheduler sweeps unmatched records on fixed intervals.
//
// Each named job covers one record kind. A sweep pages through the kind's
// unmatched records by ID and hands every page to the reconciliation engine.
// Only one sweep per job runs at a time: a tick that fires while the job is
// still running is skipped, and an on-demand trigger gets ErrSweepInProgress.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
)

var (
	// ErrSweepInProgress is returned when the job is already running
	ErrSweepInProgress = errors.New("sweep already in progress")

	// ErrUnknownJob is returned for a job name that is not configured
	ErrUnknownJob = errors.New("unknown sweep job")

	// ErrStopped is returned by TriggerNow once Stop has been called
	ErrStopped = errors.New("scheduler stopped")
)

// Default job names
const (
	JobReceipts     = "receipts"
	JobTransactions = "transactions"
)

const defaultBatchSize = 100

// Reconciler is the part of the engine a sweep needs
type Reconciler interface {
	ReconcileBatch(ctx context.Context, records []*record.FinancialRecord) (*reconcile.BatchResult, error)
}

// Store is the part of the repository a sweep needs
type Store interface {
	ListUnmatched(ctx context.Context, q storage.UnmatchedQuery) ([]*record.FinancialRecord, error)
	storage.SweepRunRepository
}

// Job is a named periodic sweep over one record kind
type Job struct {
	Name     string
	Kind     record.Kind
	Interval time.Duration
}

// Config holds scheduler configuration
type Config struct {
	Jobs       []Job
	BatchSize  int  // Records per page (default: 100)
	RunOnStart bool // Sweep every job once when Start is called
}

// DefaultJobs sweeps receipts hourly and transactions daily
func DefaultJobs() []Job {
	return []Job{
		{Name: JobReceipts, Kind: record.KindReceipt, Interval: time.Hour},
		{Name: JobTransactions, Kind: record.KindTransaction, Interval: 24 * time.Hour},
	}
}

// Scheduler runs sweep jobs in the background
type Scheduler struct {
	store      Store
	engine     Reconciler
	logger     *slog.Logger
	jobs       map[string]Job
	batchSize  int
	runOnStart bool

	// Job-level locking (only one sweep per job at a time)
	locks map[string]*sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	// mu guards stopped; wg.Add only happens while holding it
	mu      sync.Mutex
	stopped bool
}

// New creates a scheduler. Jobs with a non-positive interval can only be
// triggered on demand.
func New(store Store, engine Reconciler, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Jobs) == 0 {
		cfg.Jobs = DefaultJobs()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	jobs := make(map[string]Job, len(cfg.Jobs))
	locks := make(map[string]*sync.Mutex, len(cfg.Jobs))
	for _, job := range cfg.Jobs {
		jobs[job.Name] = job
		locks[job.Name] = &sync.Mutex{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:      store,
		engine:     engine,
		logger:     logger.With("system", "scheduler"),
		jobs:       jobs,
		batchSize:  batchSize,
		runOnStart: cfg.RunOnStart,
		locks:      locks,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Jobs returns the configured jobs ordered by name
func (s *Scheduler) Jobs() []Job {
	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

// Start launches one ticker loop per job with a positive interval
func (s *Scheduler) Start() {
	for _, job := range s.Jobs() {
		job := job
		if job.Interval <= 0 {
			continue
		}
		if !s.spawn(func() { s.loop(job) }) {
			return
		}
	}

	s.logger.Info("scheduler started", "jobs", len(s.jobs), "batch_size", s.batchSize)
}

// Stop cancels running sweeps and waits for the loops to exit.
// It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		s.cancel()
		s.wg.Wait()
		s.logger.Info("scheduler stopped")
	})
}

// spawn runs fn in a tracked goroutine. It returns false, without running
// fn, once Stop has begun.
func (s *Scheduler) spawn(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

func (s *Scheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Scheduler) loop(job Job) {
	if s.runOnStart {
		s.runScheduled(job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runScheduled(job)
		}
	}
}

func (s *Scheduler) runScheduled(job Job) {
	_, err := s.RunNow(s.ctx, job.Name)
	switch {
	case err == nil:
	case errors.Is(err, ErrSweepInProgress):
		s.logger.Info("sweep still running, skipping tick", "job", job.Name)
	case errors.Is(err, context.Canceled):
	default:
		s.logger.Error("scheduled sweep failed", "job", job.Name, "error", err)
	}
}

// RunNow runs a sweep synchronously and returns its run record
func (s *Scheduler) RunNow(ctx context.Context, name string) (*storage.SweepRun, error) {
	job, lock, err := s.acquire(name)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	runID, err := s.store.StartSweepRun(ctx, job.Name, job.Kind)
	if err != nil {
		return nil, fmt.Errorf("failed to record sweep start: %w", err)
	}

	sweepErr := s.sweep(ctx, job, runID)
	run, err := s.store.GetSweepRun(context.WithoutCancel(ctx), runID)
	if err != nil {
		return nil, errors.Join(sweepErr, err)
	}
	return run, sweepErr
}

// TriggerNow starts a sweep in the background and returns its run ID.
// The sweep is bound to the scheduler's lifetime, not to ctx, so it
// survives the HTTP request that triggered it. After Stop it returns
// ErrStopped.
func (s *Scheduler) TriggerNow(ctx context.Context, name string) (int64, error) {
	if s.isStopped() {
		return 0, ErrStopped
	}
	job, lock, err := s.acquire(name)
	if err != nil {
		return 0, err
	}

	runID, err := s.store.StartSweepRun(ctx, job.Name, job.Kind)
	if err != nil {
		lock.Unlock()
		return 0, fmt.Errorf("failed to record sweep start: %w", err)
	}

	started := s.spawn(func() {
		defer lock.Unlock()
		if err := s.sweep(s.ctx, job, runID); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("triggered sweep failed", "job", job.Name, "run_id", runID, "error", err)
		}
	})
	if !started {
		// Stop won the race after the run was recorded
		defer lock.Unlock()
		if err := s.store.CompleteSweepRun(context.WithoutCancel(ctx), runID, storage.SweepCounts{}, ErrStopped); err != nil {
			s.logger.Error("failed to record sweep completion", "job", job.Name, "run_id", runID, "error", err)
		}
		return 0, ErrStopped
	}

	s.logger.Info("sweep triggered", "job", job.Name, "run_id", runID)
	return runID, nil
}

// acquire looks up the job and takes its lock without blocking
func (s *Scheduler) acquire(name string) (Job, *sync.Mutex, error) {
	job, ok := s.jobs[name]
	if !ok {
		return Job{}, nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	lock := s.locks[name]
	if !lock.TryLock() {
		return Job{}, nil, fmt.Errorf("%w: %s", ErrSweepInProgress, name)
	}
	return job, lock, nil
}

// sweep pages through unmatched records and records the outcome on runID
func (s *Scheduler) sweep(ctx context.Context, job Job, runID int64) error {
	start := time.Now()
	logger := s.logger.With("job", job.Name, "run_id", runID)
	logger.Info("sweep started", "kind", job.Kind)

	var counts storage.SweepCounts
	var sweepErr error
	afterID := ""

	for {
		page, err := s.store.ListUnmatched(ctx, storage.UnmatchedQuery{
			Kind:    job.Kind,
			AfterID: afterID,
			Limit:   s.batchSize,
		})
		if err != nil {
			sweepErr = fmt.Errorf("failed to list unmatched records: %w", err)
			break
		}
		if len(page) == 0 {
			break
		}

		result, err := s.engine.ReconcileBatch(ctx, page)
		if result == nil {
			result = &reconcile.BatchResult{}
		}
		addCounts(&counts, result.Counts)
		if err != nil {
			sweepErr = err
			break
		}

		logger.Debug("sweep page done",
			"page_size", len(page),
			"matched", result.Counts.Matched,
			"no_match", result.Counts.NoMatch,
		)

		if len(page) < s.batchSize {
			break
		}
		afterID = page[len(page)-1].ID
	}

	// Record the outcome even when the sweep was cancelled
	if err := s.store.CompleteSweepRun(context.WithoutCancel(ctx), runID, counts, sweepErr); err != nil {
		logger.Error("failed to record sweep completion", "error", err)
	}

	logger.Info("sweep completed",
		"found", counts.Found,
		"matched", counts.Matched,
		"no_match", counts.NoMatch,
		"skipped", counts.Skipped,
		"errored", counts.Errored,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return sweepErr
}

func addCounts(total *storage.SweepCounts, c storage.SweepCounts) {
	total.Found += c.Found
	total.Matched += c.Matched
	total.NoMatch += c.NoMatch
	total.Skipped += c.Skipped
	total.Errored += c.Errored
}
