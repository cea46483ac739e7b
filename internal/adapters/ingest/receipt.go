package ingest

import (
	"fmt"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/shopspring/decimal"
)

// ReceiptExtraction is what the OCR collaborator reports for one receipt
type ReceiptExtraction struct {
	Merchant   string              `json:"merchant"`
	Date       string              `json:"date"`
	Total      decimal.NullDecimal `json:"total"`
	Confidence float64             `json:"confidence"`
	Items      []ReceiptItem       `json:"items,omitempty"`
	Tax        decimal.NullDecimal `json:"tax"`
	Currency   string              `json:"currency,omitempty"`
	Category   string              `json:"category,omitempty"`
}

// ReceiptItem is a single extracted line item
type ReceiptItem struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity,omitempty"`
}

// ReceiptMeta carries extraction details that never feed matching
type ReceiptMeta struct {
	ExtractionConfidence float64             `json:"extraction_confidence"`
	Currency             string              `json:"currency,omitempty"`
	Tax                  decimal.NullDecimal `json:"tax"`
	ItemCount            int                 `json:"item_count"`
	TotalFromItems       bool                `json:"total_from_items"`
	ItemsMismatch        decimal.NullDecimal `json:"items_mismatch"` // items+tax minus total, when off by more than itemsTolerance
}

// itemsTolerance absorbs per-line rounding on printed receipts
var itemsTolerance = decimal.RequireFromString("0.02")

// Receipt is a converted receipt record plus its extraction metadata
type Receipt struct {
	Record *record.FinancialRecord
	Meta   ReceiptMeta
}

// Receipt converts an OCR extraction into an unmatched receipt record.
// When no total was read, the item prices plus tax stand in for it.
func (c *Converter) Receipt(ownerID string, ext ReceiptExtraction) (*Receipt, error) {
	rec, err := c.newRecord("", ownerID, record.KindReceipt, SourceOCR)
	if err != nil {
		return nil, err
	}

	date, err := ParseDate(ext.Date)
	if err != nil {
		return nil, fmt.Errorf("receipt date: %w", err)
	}
	if ext.Confidence < 0 || ext.Confidence > 1 {
		return nil, fmt.Errorf("extraction confidence %v out of range [0,1]", ext.Confidence)
	}

	rec.Date = date
	rec.MerchantText = ext.Merchant
	rec.Category = ext.Category

	meta := ReceiptMeta{
		ExtractionConfidence: ext.Confidence,
		Currency:             ext.Currency,
		Tax:                  ext.Tax,
		ItemCount:            len(ext.Items),
	}

	switch {
	case ext.Total.Valid:
		rec.Amount = magnitude(ext.Total.Decimal)
		if len(ext.Items) > 0 {
			diff := itemsTotal(ext.Items, ext.Tax).Sub(rec.Amount.Decimal).Round(2)
			if diff.Abs().GreaterThan(itemsTolerance) {
				meta.ItemsMismatch = decimal.NewNullDecimal(diff)
			}
		}
	case len(ext.Items) > 0:
		rec.Amount = magnitude(itemsTotal(ext.Items, ext.Tax))
		meta.TotalFromItems = true
	}

	return &Receipt{Record: rec, Meta: meta}, nil
}

func itemsTotal(items []ReceiptItem, tax decimal.NullDecimal) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		sum = sum.Add(item.Price.Mul(decimal.NewFromInt(int64(qty))))
	}
	if tax.Valid {
		sum = sum.Add(tax.Decimal)
	}
	return sum
}
