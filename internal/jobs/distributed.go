package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/grump-ai/grump-engine/shared/rabbitmq"
)

// DistributedQueue schedules jobs through RabbitMQ. The jobs table remains
// the source of truth: Enqueue persists the row first, then publishes a
// message naming it. Consumers claim the row before running, so a redelivered
// message cannot run a job twice.
type DistributedQueue struct {
	store    *Store
	worker   *Worker
	client   *rabbitmq.Client
	logger   *slog.Logger
	prefetch int

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewDistributedQueue creates a distributed queue over the given store,
// worker, and RabbitMQ client. worker may be nil for an enqueue-only queue;
// Start requires it.
func NewDistributedQueue(store *Store, worker *Worker, client *rabbitmq.Client, logger *slog.Logger, prefetch int) *DistributedQueue {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &DistributedQueue{
		store:    store,
		worker:   worker,
		client:   client,
		logger:   logger,
		prefetch: prefetch,
	}
}

// Enqueue persists the job and publishes its reference to the queue.
func (q *DistributedQueue) Enqueue(ctx context.Context, job *Job) error {
	if err := q.store.Create(ctx, job); err != nil {
		return err
	}

	body, err := json.Marshal(Message{JobID: job.ID, SessionID: job.SessionID})
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	if err := q.client.Publish(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish job %s: %w", job.ID, err)
	}

	return nil
}

// Start begins consuming the queue. It returns immediately; consumption runs
// until Stop or context cancellation.
func (q *DistributedQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return errors.New("distributed queue already started")
	}
	if q.worker == nil {
		return errors.New("distributed queue has no worker")
	}

	deliveries, err := q.client.Consume("grump-worker", q.prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.done = make(chan struct{})
	q.started = true

	q.logger.Info("Distributed queue started",
		slog.Int("prefetch", q.prefetch),
	)

	go q.consume(loopCtx, deliveries)
	return nil
}

// Stop cancels the consumer loop and waits for the in-flight job to finish.
// The RabbitMQ connection itself is owned by the caller.
func (q *DistributedQueue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	cancel, done := q.cancel, q.done
	q.mu.Unlock()

	cancel()
	<-done

	q.logger.Info("Distributed queue stopped")
}

func (q *DistributedQueue) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(q.done)

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("Consumer stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				q.logger.Warn("RabbitMQ delivery channel closed")
				return
			}
			q.handleDelivery(ctx, delivery)
		}
	}
}

func (q *DistributedQueue) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		q.logger.Error("Failed to parse job message",
			slog.Any("error", err),
			slog.String("body", string(delivery.Body)),
		)
		// Malformed messages are dropped, not requeued.
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			q.logger.Error("Failed to NACK malformed message",
				slog.Any("error", nackErr),
			)
		}
		return
	}

	// Claiming the row is the dedup point: a redelivered message for a job
	// that already ran finds it past pending and acks without work.
	runCtx := context.WithoutCancel(ctx)
	job, err := q.store.Claim(runCtx, msg.JobID)
	if err != nil {
		if errors.Is(err, ErrNoPendingJobs) {
			q.logger.Debug("Job already claimed or finished",
				slog.String("job_id", msg.JobID),
			)
			q.ack(delivery)
			return
		}
		q.logger.Error("Failed to claim job",
			slog.String("job_id", msg.JobID),
			slog.Any("error", err),
		)
		// Transient store failure: requeue for another attempt.
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			q.logger.Error("Failed to NACK message",
				slog.Any("error", nackErr),
			)
		}
		return
	}

	if err := q.worker.Process(runCtx, job); err != nil {
		q.logger.Error("Failed to record job outcome",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}

	q.ack(delivery)
}

func (q *DistributedQueue) ack(delivery amqp.Delivery) {
	if err := delivery.Ack(false); err != nil {
		q.logger.Error("Failed to ACK message",
			slog.Any("error", err),
		)
	}
}
