package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kart-io/ragserve/internal/ragserve/biz"
)

// ProcessingHandler serves ingestion job requests.
type ProcessingHandler struct {
	manager *biz.ProcessingManager
}

// NewProcessingHandler creates a new ProcessingHandler.
func NewProcessingHandler(manager *biz.ProcessingManager) *ProcessingHandler {
	return &ProcessingHandler{manager: manager}
}

// ProcessRequest is the body of a job-start request. The optional limit
// caps how many documents the job processes.
type ProcessRequest struct {
	Limit *int `json:"limit" binding:"omitempty,gte=1"`
}

// Start schedules a new processing job and returns its initial snapshot.
func (h *ProcessingHandler) Start(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	jobID, err := h.manager.StartJob(req.Limit)
	if err != nil {
		if errors.Is(err, biz.ErrInvalidLimit) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	job, err := h.manager.GetStatus(jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: "failed to start job"})
		return
	}

	c.JSON(http.StatusCreated, success(job))
}

// Status returns the current snapshot of a job.
func (h *ProcessingHandler) Status(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "invalid job id"})
		return
	}

	job, err := h.manager.GetStatus(jobID)
	if err != nil {
		if errors.Is(err, biz.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Code: 404, Message: "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, success(job))
}
