package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"stockflow/internal/core/apperror"
	"stockflow/internal/domain/allocation"
	"stockflow/internal/infrastructure/http/v1/dto"
)

// BatchHandler handles goods receipts, removals and batch lookups.
type BatchHandler struct {
	*BaseHandler
	service *allocation.Service
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(base *BaseHandler, service *allocation.Service) *BatchHandler {
	return &BatchHandler{BaseHandler: base, service: service}
}

// Create handles POST /batches
func (h *BatchHandler) Create(c *gin.Context) {
	var req dto.CreateBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}
	input, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	out, err := h.service.AddBatch(c.Request.Context(), input)
	if err != nil {
		h.Error(c, err)
		return
	}
	if !out.Success {
		h.Error(c, out.Err)
		return
	}
	h.Created(c, dto.FromOutcome(out))
}

// Delete handles DELETE /batches/:id
func (h *BatchHandler) Delete(c *gin.Context) {
	batchID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	out, err := h.service.RemoveBatch(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if !out.Success {
		h.Error(c, out.Err)
		return
	}
	h.OK(c, dto.FromOutcome(out))
}

// Get handles GET /batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	batchID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	b, err := h.service.GetBatch(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromBatch(b))
}

// ListAvailable handles GET /batches?productCode=
func (h *BatchHandler) ListAvailable(c *gin.Context) {
	productCode := strings.TrimSpace(c.Query("productCode"))
	if productCode == "" {
		h.Error(c, apperror.NewValidationField("productCode", "productCode query parameter is required"))
		return
	}

	batches, err := h.service.ListAvailable(c.Request.Context(), productCode)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(dto.FromBatches(batches)))
}

// Channels handles GET /batches/:id/channels
func (h *BatchHandler) Channels(c *gin.Context) {
	batchID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	cs, err := h.service.ChannelStock(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromChannelStock(cs))
}
