package handler

import (
	"log/slog"

	"github.com/grump-ai/grump-engine/internal/jobs"
	"github.com/grump-ai/grump-engine/shared/database"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	DBClient *database.Client
	Store    *jobs.Store
	Queue    jobs.Queue
	Sandbox  *jobs.SandboxQueue
}

// GenerationHandler handles generation-job HTTP requests
type GenerationHandler struct {
	logger  *slog.Logger
	store   *jobs.Store
	queue   jobs.Queue
	sandbox *jobs.SandboxQueue
}

// NewGenerationHandler creates a new GenerationHandler instance
func NewGenerationHandler(deps *Dependencies) *GenerationHandler {
	return &GenerationHandler{
		logger:  deps.Logger,
		store:   deps.Store,
		queue:   deps.Queue,
		sandbox: deps.Sandbox,
	}
}
