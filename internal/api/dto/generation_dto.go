package dto

import "encoding/json"

type CreateGenerationRequest struct {
	Request     string   `json:"request" binding:"required"`
	TechStack   []string `json:"tech_stack"`
	ProjectName string   `json:"project_name"`
	SkipStages  []string `json:"skip_stages"`
	SessionID   string   `json:"session_id"`
	// JobID lets callers supply their own identifier for idempotent retries.
	JobID string `json:"job_id"`
}

type GenerationDTO struct {
	JobID       string          `json:"job_id"`
	SessionID   string          `json:"session_id,omitempty"`
	Status      string          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
	StartedAt   string          `json:"started_at,omitempty"`
	CompletedAt string          `json:"completed_at,omitempty"`
}

type ListGenerationsResponse struct {
	Generations []GenerationDTO `json:"generations"`
}

type CreateSandboxRunRequest struct {
	ProjectPath string `json:"project_path" binding:"required"`
	SessionID   string `json:"session_id"`
	JobID       string `json:"job_id"`
}

type SandboxRunDTO struct {
	JobID       string          `json:"job_id"`
	SessionID   string          `json:"session_id,omitempty"`
	Status      string          `json:"status"`
	ProjectPath string          `json:"project_path"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}
