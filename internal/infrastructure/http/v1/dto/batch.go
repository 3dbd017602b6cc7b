package dto

import (
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/allocation"
	"stockflow/internal/domain/batch"
)

// CreateBatchRequest is the body of POST /batches.
// Dates are calendar days (YYYY-MM-DD).
type CreateBatchRequest struct {
	ProductCode   string  `json:"productCode" binding:"required"`
	Quantity      int64   `json:"quantity"`
	PurchasePrice string  `json:"purchasePrice" binding:"required"`
	PurchaseDate  string  `json:"purchaseDate" binding:"required"`
	ExpiryDate    *string `json:"expiryDate"`
	Supplier      string  `json:"supplier"`
}

// ToInput parses the request into an AddBatch input. Range checks are left to
// the command so HTTP and console report the same errors.
func (r CreateBatchRequest) ToInput() (allocation.AddBatchInput, error) {
	price, err := types.NewMoneyFromString(r.PurchasePrice)
	if err != nil {
		return allocation.AddBatchInput{}, apperror.NewValidationField("purchasePrice", "purchase price must be a decimal number").
			WithDetail("value", r.PurchasePrice)
	}
	purchased, err := ParseDate("purchaseDate", r.PurchaseDate)
	if err != nil {
		return allocation.AddBatchInput{}, err
	}
	var expiry *time.Time
	if r.ExpiryDate != nil && *r.ExpiryDate != "" {
		d, err := ParseDate("expiryDate", *r.ExpiryDate)
		if err != nil {
			return allocation.AddBatchInput{}, err
		}
		expiry = &d
	}
	return allocation.AddBatchInput{
		ProductCode:   r.ProductCode,
		Quantity:      types.Quantity(r.Quantity),
		PurchasePrice: price,
		PurchaseDate:  purchased,
		ExpiryDate:    expiry,
		Supplier:      r.Supplier,
	}, nil
}

// ParseDate parses a YYYY-MM-DD value, naming field in the validation error.
func ParseDate(field, value string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, apperror.NewValidationField(field, "date must be formatted as YYYY-MM-DD").
			WithDetail("value", value)
	}
	return d, nil
}

// BatchResponse is the API view of a batch.
type BatchResponse struct {
	ID                id.ID          `json:"id"`
	ProductCode       string         `json:"productCode"`
	ReceivedQuantity  types.Quantity `json:"receivedQuantity"`
	RemainingQuantity types.Quantity `json:"remainingQuantity"`
	PurchasePrice     string         `json:"purchasePrice"`
	PurchaseDate      string         `json:"purchaseDate"`
	ExpiryDate        *string        `json:"expiryDate,omitempty"`
	Supplier          string         `json:"supplier,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// FromBatch converts a batch to its API view.
func FromBatch(b *batch.Batch) *BatchResponse {
	if b == nil {
		return nil
	}
	resp := &BatchResponse{
		ID:                b.ID,
		ProductCode:       b.ProductCode,
		ReceivedQuantity:  b.ReceivedQuantity,
		RemainingQuantity: b.RemainingQuantity,
		PurchasePrice:     b.PurchasePrice.StringFixed(2),
		PurchaseDate:      b.PurchaseDate.Format(time.DateOnly),
		Supplier:          b.Supplier,
		CreatedAt:         b.CreatedAt,
	}
	if b.ExpiryDate != nil {
		s := b.ExpiryDate.Format(time.DateOnly)
		resp.ExpiryDate = &s
	}
	return resp
}

// FromBatches converts a slice of batches.
func FromBatches(bs []batch.Batch) []BatchResponse {
	out := make([]BatchResponse, 0, len(bs))
	for i := range bs {
		out = append(out, *FromBatch(&bs[i]))
	}
	return out
}

// ChannelStockResponse is what a batch has issued per channel.
type ChannelStockResponse struct {
	BatchID  id.ID          `json:"batchId"`
	Physical types.Quantity `json:"physical"`
	Online   types.Quantity `json:"online"`
	Total    types.Quantity `json:"total"`
}

// FromChannelStock converts channel stock to its API view.
func FromChannelStock(cs batch.ChannelStock) ChannelStockResponse {
	return ChannelStockResponse{
		BatchID:  cs.BatchID,
		Physical: cs.PhysicalQuantity,
		Online:   cs.OnlineQuantity,
		Total:    cs.Total(),
	}
}
