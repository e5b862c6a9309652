package followup

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

// Handler processes a due follow-up.
type Handler interface {
	HandleFollowUp(ctx context.Context, payload Payload) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, payload Payload) error

func (f HandlerFunc) HandleFollowUp(ctx context.Context, payload Payload) error {
	return f(ctx, payload)
}

// Worker consumes due follow-up tasks from Redis.
type Worker struct {
	server  *asynq.Server
	handler Handler
	logger  *logging.Logger
}

// NewWorker builds the asynq consumer for the follow-up queue.
func NewWorker(redisOpt asynq.RedisClientOpt, queue string, concurrency int, handler Handler, logger *logging.Logger) *Worker {
	if handler == nil {
		panic("followup: handler required")
	}
	if queue == "" {
		queue = "followups"
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = logging.Default()
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
	})
	return &Worker{server: server, handler: handler, logger: logger}
}

// Start runs the consumer until Shutdown is called.
func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskFollowUpDue, w.handleDue)
	if err := w.server.Start(mux); err != nil {
		return fmt.Errorf("followup: start worker: %w", err)
	}
	return nil
}

// Shutdown stops the consumer and waits for in-flight tasks.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func (w *Worker) handleDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseFollowUpPayload(task)
	if err != nil {
		w.logger.Error("undecodable follow-up task dropped", "error", err)
		return nil
	}
	w.logger.Info("follow-up due",
		"org_id", payload.OrgID, "conversation_id", payload.ConversationID,
		"kind", payload.Kind)
	if err := w.handler.HandleFollowUp(ctx, payload); err != nil {
		return fmt.Errorf("followup: handle %s for %s: %w", payload.Kind, payload.ConversationID, err)
	}
	return nil
}
