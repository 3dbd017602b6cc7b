package dto

import (
	"time"

	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/allocation"
	"stockflow/internal/domain/batch"
)

// AnalyzeRequest is the body of POST /allocations/analyze.
type AnalyzeRequest struct {
	ProductCode string `json:"productCode" binding:"required"`
	Quantity    int64  `json:"quantity"`
}

// IssueRequest is the body of POST /allocations/issue.
type IssueRequest struct {
	ProductCode string `json:"productCode" binding:"required"`
	Quantity    int64  `json:"quantity"`
	Channel     string `json:"channel" binding:"required"`
}

// UndoRequest is the optional body of POST /undo. Without a handle id the most
// recent command is undone.
type UndoRequest struct {
	HandleID string `json:"handleId"`
}

// SelectionResponse explains which batch the strategy chose and why.
type SelectionResponse struct {
	ProductCode string         `json:"productCode"`
	Requested   types.Quantity `json:"requested"`
	Fulfillable types.Quantity `json:"fulfillable"`
	Partial     bool           `json:"partial"`
	Strategy    string         `json:"strategy"`
	Rationale   string         `json:"rationale"`
	Batch       *BatchResponse `json:"batch,omitempty"`
}

// FromSelection converts a selection.
func FromSelection(sel allocation.Selection) SelectionResponse {
	return SelectionResponse{
		ProductCode: sel.ProductCode,
		Requested:   sel.Requested,
		Fulfillable: sel.Fulfillable,
		Partial:     sel.Partial(),
		Strategy:    sel.Strategy,
		Rationale:   sel.Rationale,
		Batch:       FromBatch(sel.Batch),
	}
}

// HandleResponse describes an undoable command.
type HandleResponse struct {
	ID          id.ID     `json:"id"`
	Command     string    `json:"command"`
	Description string    `json:"description"`
	State       string    `json:"state"`
	BatchID     id.ID     `json:"batchId"`
	CanUndo     bool      `json:"canUndo"`
	ExecutedAt  time.Time `json:"executedAt"`
}

// FromHandle converts a handle; nil stays nil.
func FromHandle(h *allocation.Handle) *HandleResponse {
	if h == nil {
		return nil
	}
	return &HandleResponse{
		ID:          h.ID,
		Command:     h.Command(),
		Description: h.Describe(),
		State:       h.State().String(),
		BatchID:     h.Target(),
		CanUndo:     h.CanUndo(),
		ExecutedAt:  h.ExecutedAt,
	}
}

// CommandResponse is the body returned by every successful mutation.
type CommandResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Payload any             `json:"payload,omitempty"`
	Handle  *HandleResponse `json:"handle,omitempty"`
}

// FromOutcome converts a successful command outcome.
func FromOutcome(out allocation.Outcome) CommandResponse {
	return CommandResponse{
		Success: out.Success,
		Message: out.Message,
		Payload: payloadView(out.Payload),
		Handle:  FromHandle(out.Handle),
	}
}

// FromUndo converts a successful undo result.
func FromUndo(res allocation.Result) CommandResponse {
	return CommandResponse{
		Success: res.Success,
		Message: res.Message,
		Payload: payloadView(res.Payload),
	}
}

func payloadView(p any) any {
	if b, ok := p.(*batch.Batch); ok {
		return FromBatch(b)
	}
	if b, ok := p.(batch.Batch); ok {
		return FromBatch(&b)
	}
	return p
}

// IssueResponse adds the selection and the issued quantity.
type IssueResponse struct {
	CommandResponse
	Issued    types.Quantity    `json:"issued"`
	Selection SelectionResponse `json:"selection"`
}

// FromIssueOutcome converts a successful issue.
func FromIssueOutcome(out allocation.IssueOutcome) IssueResponse {
	return IssueResponse{
		CommandResponse: FromOutcome(out.Outcome),
		Issued:          out.Issued,
		Selection:       FromSelection(out.Selection),
	}
}

// UndoStatusResponse is the body of GET /undo.
type UndoStatusResponse struct {
	CanUndo bool            `json:"canUndo"`
	Handle  *HandleResponse `json:"handle,omitempty"`
}
