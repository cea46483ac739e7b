package dto

import "github.com/eshaffer321/receipt-reconciler/internal/adapters/ingest"

// ReceiptRequest is the body of POST /api/receipts: an OCR extraction
// plus the owner it belongs to.
type ReceiptRequest struct {
	OwnerID   string `json:"owner_id"`
	Reconcile bool   `json:"reconcile"` // Try to match right after ingest
	ingest.ReceiptExtraction
}

// TransactionsRequest is the body of POST /api/transactions: one bank
// feed sync page.
type TransactionsRequest struct {
	OwnerID      string                   `json:"owner_id"`
	Reconcile    bool                     `json:"reconcile"`
	Transactions []ingest.BankTransaction `json:"transactions"`
}

// RunListParams represents query parameters for listing sweep runs.
type RunListParams struct {
	Limit int `json:"limit"`
}

// DefaultRunListParams returns default values for run list params.
func DefaultRunListParams() RunListParams {
	return RunListParams{
		Limit: 20,
	}
}
