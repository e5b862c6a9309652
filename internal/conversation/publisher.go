package conversation

import (
	"context"
	"fmt"

	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

// Publisher enqueues conversation jobs for asynchronous processing.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueStart publishes a job to open a conversation for a new lead.
func (p *Publisher) EnqueueStart(ctx context.Context, jobID string, req StartRequest) error {
	return p.enqueue(ctx, queuePayload{ID: jobID, Kind: jobTypeStart, Start: req})
}

// EnqueueInbound publishes an inbound reply job.
func (p *Publisher) EnqueueInbound(ctx context.Context, jobID string, req MessageRequest) error {
	return p.enqueue(ctx, queuePayload{ID: jobID, Kind: jobTypeMessage, Message: req})
}

// EnqueueTimer publishes a follow-up timer firing.
func (p *Publisher) EnqueueTimer(ctx context.Context, jobID string, req TimerRequest) error {
	return p.enqueue(ctx, queuePayload{ID: jobID, Kind: jobTypeTimer, Timer: req})
}

func (p *Publisher) enqueue(ctx context.Context, payload queuePayload) error {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, body, err := encodePayload(payload)
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, string(payload.Kind), body); err != nil {
		return fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	p.logger.Debug("conversation job enqueued", "job_id", payload.ID, "kind", payload.Kind)
	return nil
}
