package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/grump-ai/grump-engine/internal/api/dto"
	"github.com/grump-ai/grump-engine/internal/jobs"
)

// CreateGeneration handles POST /api/v1/generations
// Persists a new generation job and schedules it on the active queue backend.
func (h *GenerationHandler) CreateGeneration(c *gin.Context) {
	var req dto.CreateGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = jobs.NewJobID()
	}

	payload, err := json.Marshal(jobs.GenerationRequest{
		Request:     req.Request,
		TechStack:   req.TechStack,
		ProjectName: req.ProjectName,
		SkipStages:  req.SkipStages,
	})
	if err != nil {
		h.logger.Error("Failed to marshal job payload", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create generation job",
		})
		return
	}

	job := &jobs.Job{
		ID:        jobID,
		SessionID: req.SessionID,
		Payload:   string(payload),
	}

	if err := h.queue.Enqueue(c.Request.Context(), job); err != nil {
		h.logger.Error("Failed to enqueue generation job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create generation job",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":     job.ID,
		"session_id": job.SessionID,
		"status":     job.Status,
		"created_at": job.CreatedAt.Format(time.RFC3339),
	})
}

// GetGeneration handles GET /api/v1/generations/:job_id
func (h *GenerationHandler) GetGeneration(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Generation job not found",
			})
			return
		}
		h.logger.Error("Failed to get generation job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get generation job",
		})
		return
	}

	c.JSON(http.StatusOK, toGenerationDTO(job))
}

// ListGenerations handles GET /api/v1/generations
// Returns the most recent jobs, newest first.
func (h *GenerationHandler) ListGenerations(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "limit must be a positive integer",
			})
			return
		}
		if parsed > 200 {
			parsed = 200
		}
		limit = parsed
	}

	list, err := h.store.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list generation jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list generation jobs",
		})
		return
	}

	resp := dto.ListGenerationsResponse{
		Generations: make([]dto.GenerationDTO, len(list)),
	}
	for i, job := range list {
		resp.Generations[i] = toGenerationDTO(job)
	}

	c.JSON(http.StatusOK, resp)
}

// CreateSandboxRun handles POST /api/v1/sandbox-runs
// Persists a sandbox test job for an already generated project directory.
func (h *GenerationHandler) CreateSandboxRun(c *gin.Context) {
	var req dto.CreateSandboxRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = jobs.NewSandboxJobID()
	}

	job := &jobs.SandboxJob{
		ID:          jobID,
		SessionID:   req.SessionID,
		ProjectPath: req.ProjectPath,
	}

	if err := h.sandbox.Enqueue(c.Request.Context(), job); err != nil {
		h.logger.Error("Failed to enqueue sandbox job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create sandbox run",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":       job.ID,
		"session_id":   job.SessionID,
		"status":       job.Status,
		"project_path": job.ProjectPath,
		"created_at":   job.CreatedAt.Format(time.RFC3339),
	})
}

// GetSandboxRun handles GET /api/v1/sandbox-runs/:job_id
func (h *GenerationHandler) GetSandboxRun(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.store.GetSandbox(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Sandbox run not found",
			})
			return
		}
		h.logger.Error("Failed to get sandbox job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get sandbox run",
		})
		return
	}

	c.JSON(http.StatusOK, toSandboxRunDTO(job))
}

func toGenerationDTO(job *jobs.Job) dto.GenerationDTO {
	d := dto.GenerationDTO{
		JobID:     job.ID,
		SessionID: job.SessionID,
		Status:    job.Status,
		Error:     job.Error,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
	}
	if job.Result != "" {
		d.Result = json.RawMessage(job.Result)
	}
	if job.StartedAt != nil {
		d.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if job.CompletedAt != nil {
		d.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return d
}

func toSandboxRunDTO(job *jobs.SandboxJob) dto.SandboxRunDTO {
	d := dto.SandboxRunDTO{
		JobID:       job.ID,
		SessionID:   job.SessionID,
		Status:      job.Status,
		ProjectPath: job.ProjectPath,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   job.UpdatedAt.Format(time.RFC3339),
	}
	if job.ResultJSON != "" {
		d.Result = json.RawMessage(job.ResultJSON)
	}
	return d
}
