package handlers

import (
	"log/slog"
	"net/http"

	"github.com/eshaffer321/receipt-reconciler/internal/adapters/ingest"
	"github.com/eshaffer321/receipt-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
)

// ReceiptsHandler ingests OCR receipt extractions.
type ReceiptsHandler struct {
	*Base
	engine    Reconciler
	converter *ingest.Converter
}

// NewReceiptsHandler creates a new receipts handler.
func NewReceiptsHandler(repo storage.Repository, engine Reconciler, converter *ingest.Converter, logger *slog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{
		Base:      NewBase(repo, logger),
		engine:    engine,
		converter: converter,
	}
}

// Create handles POST /api/receipts - stores a receipt, flags likely
// duplicates and optionally reconciles it right away.
func (h *ReceiptsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.ReceiptRequest
	if err := h.DecodeJSON(w, r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}

	receipt, err := h.converter.Receipt(req.OwnerID, req.ReceiptExtraction)
	if err != nil {
		h.WriteError(w, http.StatusUnprocessableEntity, dto.ValidationError(err.Error()))
		return
	}

	rec := receipt.Record
	if err := h.repo.SaveRecord(r.Context(), rec); err != nil {
		h.logger.Error("failed to save receipt", "record_id", rec.ID, "error", err)
		h.WriteError(w, http.StatusServiceUnavailable, dto.StoreUnavailableError())
		return
	}

	response := dto.ReceiptResponse{
		Meta:       receipt.Meta,
		Duplicates: []record.DuplicateFlag{},
	}

	// Receipts without an amount or date stay unmatched until corrected
	scorable := rec.HasAmount() && rec.HasDate()
	if scorable {
		flags, err := h.engine.CheckDuplicates(r.Context(), rec)
		if err != nil {
			h.WriteServiceError(w, r, err, "record")
			return
		}
		response.Duplicates = nonNilFlags(flags)
	}

	if req.Reconcile && scorable {
		outcome, err := h.engine.ReconcileOne(r.Context(), rec)
		if err != nil {
			h.WriteServiceError(w, r, err, "record")
			return
		}
		response.Outcome = outcome

		// Pick up the link state the engine just wrote
		if updated, err := h.repo.GetRecord(r.Context(), rec.ID); err == nil {
			rec = updated
		}
	}

	response.Record = dto.NewRecordResponse(rec)
	h.WriteJSON(w, http.StatusCreated, response)
}
