package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/receipt-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
)

// RecordsHandler handles record lookup and the reconcile/unmatch actions.
type RecordsHandler struct {
	*Base
	engine Reconciler
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(repo storage.Repository, engine Reconciler, logger *slog.Logger) *RecordsHandler {
	return &RecordsHandler{
		Base:   NewBase(repo, logger),
		engine: engine,
	}
}

// Get handles GET /api/records/{id} - returns a record with its match and flags.
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadRecord(w, r)
	if !ok {
		return
	}

	match, err := h.repo.GetMatchForRecord(r.Context(), rec.ID)
	if err != nil {
		h.WriteServiceError(w, r, err, "record")
		return
	}
	flags, err := h.repo.ListDuplicateFlags(r.Context(), rec.ID)
	if err != nil {
		h.WriteServiceError(w, r, err, "record")
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.RecordDetailResponse{
		Record:     dto.NewRecordResponse(rec),
		Match:      match,
		Duplicates: nonNilFlags(flags),
	})
}

// Reconcile handles POST /api/records/{id}/reconcile - matches one record now.
// A record that is already matched returns its existing match.
func (h *RecordsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadRecord(w, r)
	if !ok {
		return
	}

	outcome, err := h.engine.ReconcileOne(r.Context(), rec)
	if err != nil {
		h.WriteServiceError(w, r, err, "record")
		return
	}

	h.WriteJSON(w, http.StatusOK, outcome)
}

// Unmatch handles POST /api/records/{id}/unmatch - clears a link on both sides.
func (h *RecordsHandler) Unmatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("record ID is required"))
		return
	}

	if err := h.engine.Unmatch(r.Context(), id); err != nil {
		h.WriteServiceError(w, r, err, "record")
		return
	}

	rec, err := h.repo.GetRecord(r.Context(), id)
	if err != nil {
		h.WriteServiceError(w, r, err, "record")
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.NewRecordResponse(rec))
}

// Duplicates handles GET /api/records/{id}/duplicates. Stored flags are
// returned; ?check=true re-runs detection first.
func (h *RecordsHandler) Duplicates(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadRecord(w, r)
	if !ok {
		return
	}

	if ParseBoolParam(r, "check", false) {
		if _, err := h.engine.CheckDuplicates(r.Context(), rec); err != nil {
			h.WriteServiceError(w, r, err, "record")
			return
		}
	}

	flags, err := h.repo.ListDuplicateFlags(r.Context(), rec.ID)
	if err != nil {
		h.WriteServiceError(w, r, err, "record")
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.DuplicatesResponse{
		RecordID:   rec.ID,
		Duplicates: nonNilFlags(flags),
		Count:      len(flags),
	})
}

// loadRecord reads the {id} record, writing the error response on failure.
func (h *RecordsHandler) loadRecord(w http.ResponseWriter, r *http.Request) (*record.FinancialRecord, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("record ID is required"))
		return nil, false
	}

	rec, err := h.repo.GetRecord(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("record"))
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed to load record", "record_id", id, "error", err)
		h.WriteError(w, http.StatusServiceUnavailable, dto.StoreUnavailableError())
		return nil, false
	}
	return rec, true
}

func nonNilFlags(flags []record.DuplicateFlag) []record.DuplicateFlag {
	if flags == nil {
		return []record.DuplicateFlag{}
	}
	return flags
}
