package handler

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Panchu11/obscura/internal/api/dto"
	"github.com/Panchu11/obscura/internal/compute"
	"github.com/Panchu11/obscura/internal/ledger/domain"
	"github.com/Panchu11/obscura/internal/ledger/storage"
	"github.com/gin-gonic/gin"
)

// CreateJob handles POST /api/v1/jobs
// Escrows the reward and opens a Pending job for the caller
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		badRequest(c, "Invalid request body")
		return
	}

	kind, err := domain.ParseComputationKind(req.ComputationKind)
	if err != nil {
		respondError(c, h.logger, "create_job", err)
		return
	}
	input, err := base64.StdEncoding.DecodeString(req.EncryptedInput)
	if err != nil {
		badRequest(c, "encrypted_input must be base64")
		return
	}
	reward, err := domain.ParseAmount(req.Reward)
	if err != nil {
		respondError(c, h.logger, "create_job", err)
		return
	}

	job, err := h.ledger.CreateJob(c.Request.Context(), callerAddress(c), kind, input, reward)
	if err != nil {
		respondError(c, h.logger, "create_job", err)
		return
	}

	c.JSON(http.StatusCreated, dto.FromJob(job))
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}

	job, err := h.ledger.GetJob(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, "get_job", err)
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs with optional client, worker and status filters in id order
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		badRequest(c, "Invalid query parameters")
		return
	}

	filter := storage.JobFilter{
		Client: req.Client,
		Worker: req.Worker,
		Limit:  storage.NormalizeLimit(req.PageSize),
	}
	if req.Status != "" {
		status, err := domain.ParseJobStatus(req.Status)
		if err != nil {
			respondError(c, h.logger, "list_jobs", err)
			return
		}
		filter.Status = status
	}

	h.listJobs(c, filter, req.Cursor)
}

// ListClientJobs handles GET /api/v1/clients/:address/jobs
func (h *JobHandler) ListClientJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "Invalid query parameters")
		return
	}
	h.listJobs(c, storage.JobFilter{Client: c.Param("address"), Limit: storage.NormalizeLimit(req.PageSize)}, req.Cursor)
}

// ListWorkerJobs handles GET /api/v1/workers/:address/jobs
func (h *JobHandler) ListWorkerJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "Invalid query parameters")
		return
	}
	h.listJobs(c, storage.JobFilter{Worker: c.Param("address"), Limit: storage.NormalizeLimit(req.PageSize)}, req.Cursor)
}

func (h *JobHandler) listJobs(c *gin.Context, filter storage.JobFilter, cursor string) {
	afterID, err := DecodeJobCursor(cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		badRequest(c, "Invalid cursor")
		return
	}
	filter.AfterID = afterID

	jobs, err := h.ledger.ListJobs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, "list_jobs", err)
		return
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs))}
	for i := range jobs {
		resp.Jobs[i] = dto.FromJob(&jobs[i])
	}
	// a full page may be followed by more
	if len(jobs) == filter.Limit {
		resp.NextCursor = EncodeJobCursor(jobs[len(jobs)-1].ID)
	}

	c.JSON(http.StatusOK, resp)
}

// ClaimJob handles POST /api/v1/jobs/:job_id/claim
func (h *JobHandler) ClaimJob(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}

	job, err := h.ledger.ClaimJob(c.Request.Context(), callerAddress(c), jobID)
	if err != nil {
		respondError(c, h.logger, "claim_job", err)
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(job))
}

// SubmitResult handles POST /api/v1/jobs/:job_id/result
func (h *JobHandler) SubmitResult(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}

	var req dto.SubmitResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	result, err := base64.StdEncoding.DecodeString(req.EncryptedResult)
	if err != nil {
		badRequest(c, "encrypted_result must be base64")
		return
	}

	job, err := h.ledger.SubmitResult(c.Request.Context(), callerAddress(c), jobID, result)
	if err != nil {
		respondError(c, h.logger, "submit_result", err)
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(job))
}

// VerifyJob handles POST /api/v1/jobs/:job_id/verify
// Releases the payout to the worker
func (h *JobHandler) VerifyJob(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}

	job, err := h.ledger.VerifyAndPay(c.Request.Context(), callerAddress(c), jobID)
	if err != nil {
		respondError(c, h.logger, "verify_and_pay", err)
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(job))
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
// Cancels a Pending job and refunds the payout share
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}

	job, err := h.ledger.CancelJob(c.Request.Context(), callerAddress(c), jobID)
	if err != nil {
		respondError(c, h.logger, "cancel_job", err)
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(job))
}

// MarkDecrypted handles POST /api/v1/jobs/:job_id/decrypted
func (h *JobHandler) MarkDecrypted(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}

	job, err := h.ledger.MarkResultDecrypted(c.Request.Context(), callerAddress(c), jobID)
	if err != nil {
		respondError(c, h.logger, "mark_result_decrypted", err)
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(job))
}

// JobEvents handles GET /api/v1/jobs/:job_id/events
func (h *JobHandler) JobEvents(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}

	evs, err := h.ledger.JobEvents(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, "job_events", err)
		return
	}

	out := make([]dto.EventDTO, len(evs))
	for i := range evs {
		out[i] = dto.FromEvent(&evs[i])
	}
	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "events": out})
}

// ListKinds handles GET /api/v1/kinds
func (h *JobHandler) ListKinds(c *gin.Context) {
	out := make([]dto.KindDTO, len(domain.AllComputationKinds))
	for i, kind := range domain.AllComputationKinds {
		out[i] = dto.KindDTO{
			Kind:              string(kind),
			Name:              kind.DisplayName(),
			ExpectedLatencyMS: compute.ExpectedLatency(kind).Milliseconds(),
		}
	}
	c.JSON(http.StatusOK, gin.H{"kinds": out})
}

func parseJobID(c *gin.Context) (uint64, bool) {
	jobID, err := strconv.ParseUint(c.Param("job_id"), 10, 64)
	if err != nil || jobID == 0 {
		badRequest(c, "job_id must be a positive integer")
		return 0, false
	}
	return jobID, true
}
