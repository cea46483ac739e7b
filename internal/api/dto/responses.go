package dto

import (
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Store     string `json:"store_error,omitempty"`
}

// MessageResponse is a generic acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// SweepRunResponse represents a sweep run in API responses.
type SweepRunResponse struct {
	ID           int64  `json:"id"`
	Job          string `json:"job"`
	Kind         string `json:"kind"`
	StartedAt    string `json:"started_at"`
	CompletedAt  string `json:"completed_at,omitempty"`
	RecordsFound int    `json:"records_found"`
	Matched      int    `json:"matched"`
	NoMatch      int    `json:"no_match"`
	Skipped      int    `json:"skipped"`
	Errored      int    `json:"errored"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// SweepRunListResponse is returned when listing sweep runs.
type SweepRunListResponse struct {
	Runs  []SweepRunResponse `json:"runs"`
	Count int                `json:"count"`
}

// StartSweepResponse is returned when an on-demand sweep is accepted.
type StartSweepResponse struct {
	RunID  int64  `json:"run_id"`
	Job    string `json:"job"`
	Status string `json:"status"`
}

// JobResponse describes a scheduled sweep job.
type JobResponse struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Interval string `json:"interval"`
}

// JobListResponse is returned when listing sweep jobs.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// StatsResponse contains aggregate record and match counts.
type StatsResponse struct {
	TotalRecords   int                `json:"total_records"`
	Receipts       KindStatsResponse  `json:"receipts"`
	Transactions   KindStatsResponse  `json:"transactions"`
	ActiveMatches  int                `json:"active_matches"`
	DuplicateFlags int                `json:"duplicate_flags"`
	MatchRate      float64            `json:"match_rate"`
	LastRuns       []SweepRunResponse `json:"last_runs,omitempty"`
}

// KindStatsResponse contains per-kind counts by link state.
type KindStatsResponse struct {
	Unmatched   int `json:"unmatched"`
	Matched     int `json:"matched"`
	NeedsReview int `json:"needs_review"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// NewSweepRunResponse converts a storage SweepRun to an API response.
func NewSweepRunResponse(run storage.SweepRun) SweepRunResponse {
	return SweepRunResponse{
		ID:           run.ID,
		Job:          run.Job,
		Kind:         string(run.Kind),
		StartedAt:    run.StartedAt,
		CompletedAt:  run.CompletedAt,
		RecordsFound: run.Counts.Found,
		Matched:      run.Counts.Matched,
		NoMatch:      run.Counts.NoMatch,
		Skipped:      run.Counts.Skipped,
		Errored:      run.Counts.Errored,
		Status:       run.Status,
		ErrorMessage: run.ErrorMessage,
	}
}
