package handler

import (
	"net/http"

	"github.com/Panchu11/obscura/internal/api/dto"
	"github.com/Panchu11/obscura/internal/ledger/domain"
	"github.com/Panchu11/obscura/internal/ledger/storage"
	"github.com/gin-gonic/gin"
)

// RegisterWorker handles POST /api/v1/workers
// Registers the caller as a worker and locks its stake
func (h *WorkerHandler) RegisterWorker(c *gin.Context) {
	var req dto.RegisterWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	stake, err := domain.ParseAmount(req.Stake)
	if err != nil {
		respondError(c, h.logger, "register_worker", err)
		return
	}

	w, err := h.ledger.RegisterWorker(c.Request.Context(), callerAddress(c), req.Name, stake)
	if err != nil {
		respondError(c, h.logger, "register_worker", err)
		return
	}

	c.JSON(http.StatusCreated, dto.FromWorker(w))
}

// DeregisterWorker handles POST /api/v1/workers/deregister
// Returns the caller's stake and deactivates it
func (h *WorkerHandler) DeregisterWorker(c *gin.Context) {
	w, err := h.ledger.DeregisterWorker(c.Request.Context(), callerAddress(c))
	if err != nil {
		respondError(c, h.logger, "deregister_worker", err)
		return
	}

	c.JSON(http.StatusOK, dto.FromWorker(w))
}

// GetWorker handles GET /api/v1/workers/:address
func (h *WorkerHandler) GetWorker(c *gin.Context) {
	w, err := h.ledger.GetWorker(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, h.logger, "get_worker", err)
		return
	}

	c.JSON(http.StatusOK, dto.FromWorker(w))
}

// ListWorkers handles GET /api/v1/workers
func (h *WorkerHandler) ListWorkers(c *gin.Context) {
	var req dto.ListWorkersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "Invalid query parameters")
		return
	}
	after, err := DecodeWorkerCursor(req.Cursor)
	if err != nil {
		badRequest(c, "Invalid cursor")
		return
	}

	filter := storage.WorkerFilter{
		ActiveOnly:   req.ActiveOnly,
		AfterAddress: after,
		Limit:        storage.NormalizeLimit(req.PageSize),
	}
	workers, err := h.ledger.ListWorkers(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, "list_workers", err)
		return
	}

	resp := dto.ListWorkersResponse{Workers: make([]dto.WorkerDTO, len(workers))}
	for i := range workers {
		resp.Workers[i] = dto.FromWorker(&workers[i])
	}
	if len(workers) == filter.Limit {
		resp.NextCursor = EncodeWorkerCursor(workers[len(workers)-1].Address)
	}

	c.JSON(http.StatusOK, resp)
}
