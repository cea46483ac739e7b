package handlers

import (
	"log/slog"
	"net/http"

	"github.com/eshaffer321/receipt-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
)

// recentRunsInStats is how many sweep runs the stats response includes
const recentRunsInStats = 5

// StatsHandler handles stats-related HTTP requests.
type StatsHandler struct {
	*Base
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(repo storage.Repository, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		Base: NewBase(repo, logger),
	}
}

// Get handles GET /api/stats - returns aggregate statistics.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.GetStats(r.Context())
	if err != nil {
		h.logger.Error("failed to load stats", "error", err)
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	runs, err := h.repo.ListSweepRuns(r.Context(), recentRunsInStats)
	if err != nil {
		h.logger.Error("failed to list sweep runs", "error", err)
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	receipts := stats.ByKind[record.KindReceipt]
	transactions := stats.ByKind[record.KindTransaction]

	response := dto.StatsResponse{
		TotalRecords:   stats.TotalRecords,
		Receipts:       dto.KindStatsResponse(receipts),
		Transactions:   dto.KindStatsResponse(transactions),
		ActiveMatches:  stats.ActiveMatches,
		DuplicateFlags: stats.DuplicateFlags,
	}

	// Match rate is the share of receipts that found their transaction
	if total := receipts.Unmatched + receipts.Matched + receipts.NeedsReview; total > 0 {
		response.MatchRate = float64(receipts.Matched) / float64(total)
	}

	for _, run := range runs {
		response.LastRuns = append(response.LastRuns, dto.NewSweepRunResponse(run))
	}

	h.WriteJSON(w, http.StatusOK, response)
}
