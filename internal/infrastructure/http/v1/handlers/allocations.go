package handlers

import (
	"errors"
	"io"
	"maps"
	"strings"

	"github.com/gin-gonic/gin"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/allocation"
	"stockflow/internal/domain/batch"
	"stockflow/internal/infrastructure/http/v1/dto"
)

// AllocationHandler handles selection previews, stock issues and undo.
type AllocationHandler struct {
	*BaseHandler
	service *allocation.Service
}

// NewAllocationHandler creates a new allocation handler.
func NewAllocationHandler(base *BaseHandler, service *allocation.Service) *AllocationHandler {
	return &AllocationHandler{BaseHandler: base, service: service}
}

// Analyze handles POST /allocations/analyze
func (h *AllocationHandler) Analyze(c *gin.Context) {
	var req dto.AnalyzeRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sel, err := h.service.Analyze(c.Request.Context(), req.ProductCode, types.Quantity(req.Quantity))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSelection(sel))
}

// Issue handles POST /allocations/issue
func (h *AllocationHandler) Issue(c *gin.Context) {
	var req dto.IssueRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ch, err := batch.ParseChannel(req.Channel)
	if err != nil {
		h.Error(c, err)
		return
	}

	out, err := h.service.IssueStock(c.Request.Context(), allocation.IssueRequest{
		ProductCode: req.ProductCode,
		Quantity:    types.Quantity(req.Quantity),
		Channel:     ch,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	if !out.Success {
		h.Error(c, withSelection(out.Err, out.Selection))
		return
	}
	h.OK(c, dto.FromIssueOutcome(out))
}

// withSelection attaches the strategy's pick and rationale to a rejected
// issue so HTTP callers see why no stock moved.
func withSelection(err error, sel allocation.Selection) error {
	appErr, ok := apperror.AsAppError(err)
	if !ok || sel.ProductCode == "" {
		return err
	}
	detailed := *appErr
	detailed.Details = maps.Clone(appErr.Details)
	return detailed.WithDetail("selection", dto.FromSelection(sel))
}

// Undo handles POST /undo
func (h *AllocationHandler) Undo(c *gin.Context) {
	var req dto.UndoRequest
	// The body is optional.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return
	}

	var (
		res allocation.Result
		err error
	)
	if handleID := strings.TrimSpace(req.HandleID); handleID != "" {
		hid, perr := id.Parse(handleID)
		if perr != nil {
			h.Error(c, apperror.NewValidationField("handleId", "invalid id").WithDetail("value", handleID))
			return
		}
		res, err = h.service.UndoHandle(c.Request.Context(), hid)
	} else {
		res, err = h.service.UndoLast(c.Request.Context())
	}
	if err != nil {
		h.Error(c, err)
		return
	}
	if !res.Success {
		h.Error(c, res.Err)
		return
	}
	h.OK(c, dto.FromUndo(res))
}

// UndoStatus handles GET /undo
func (h *AllocationHandler) UndoStatus(c *gin.Context) {
	last := h.service.LastHandle()
	h.OK(c, dto.UndoStatusResponse{
		CanUndo: last != nil,
		Handle:  dto.FromHandle(last),
	})
}
