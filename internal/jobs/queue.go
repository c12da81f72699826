package jobs

import (
	"context"
)

// Queue is the execution surface shared by both backends. Enqueue persists
// a job and schedules it; Start begins claiming work; Stop prevents new
// claims without interrupting a job already in flight.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	Start(ctx context.Context) error
	Stop()
}
