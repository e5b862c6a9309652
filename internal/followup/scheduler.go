package followup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

// ErrSchedulerUnavailable indicates the timer backend could not accept the
// task. Callers degrade gracefully: the primary reply already went out.
var ErrSchedulerUnavailable = errors.New("followup: scheduler unavailable")

type asynqEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type asynqInspector interface {
	DeleteTask(queue, id string) error
}

// Scheduler arms delayed follow-up tasks on Redis via asynq. Arming a kind
// that is already pending supersedes the earlier timer.
type Scheduler struct {
	client    asynqEnqueuer
	inspector asynqInspector
	queue     string
	logger    *logging.Logger
}

// NewScheduler builds a scheduler over the given Redis connection.
func NewScheduler(redisOpt asynq.RedisClientOpt, queue string, logger *logging.Logger) *Scheduler {
	if queue == "" {
		queue = "followups"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		queue:     queue,
		logger:    logger,
	}
}

func newSchedulerWithClients(client asynqEnqueuer, inspector asynqInspector, queue string, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{client: client, inspector: inspector, queue: queue, logger: logger}
}

// Arm schedules a follow-up after the task's delay, deferring past quiet
// hours. A pending timer of the same kind for the conversation is replaced.
func (s *Scheduler) Arm(ctx context.Context, task Task, quiet QuietHours) error {
	if task.ConversationID == "" || task.Kind == "" {
		return errors.New("followup: conversation id and kind required")
	}

	runAt := time.Now().Add(task.Delay)
	if deferred := quiet.NextAllowed(runAt); deferred.After(runAt) {
		s.logger.Debug("follow-up deferred past quiet hours",
			"conversation_id", task.ConversationID, "kind", task.Kind,
			"run_at", deferred)
		runAt = deferred
	}

	payload := Payload{
		OrgID:          task.OrgID,
		ConversationID: task.ConversationID,
		Kind:           task.Kind,
		ArmedAt:        time.Now().UTC(),
	}
	t, err := NewFollowUpTask(payload)
	if err != nil {
		return fmt.Errorf("followup: encode task: %w", err)
	}

	id := taskID(task.ConversationID, task.Kind)
	// Drop any pending timer with the same id so the new deadline wins.
	if err := s.inspector.DeleteTask(s.queue, id); err != nil &&
		!errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
		s.logger.Warn("stale follow-up not deleted", "task_id", id, "error", err)
	}

	_, err = s.client.EnqueueContext(ctx, t,
		asynq.Queue(s.queue),
		asynq.TaskID(id),
		asynq.ProcessAt(runAt),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchedulerUnavailable, err)
	}

	s.logger.Info("follow-up armed",
		"org_id", task.OrgID, "conversation_id", task.ConversationID,
		"kind", task.Kind, "run_at", runAt)
	return nil
}

// Cancel drops all pending follow-ups for a conversation. Called when the
// conversation reaches a terminal state or the lead replies.
func (s *Scheduler) Cancel(ctx context.Context, conversationID string) error {
	var firstErr error
	for _, kind := range []string{KindReminder, KindReengage, KindAbandon} {
		id := taskID(conversationID, kind)
		err := s.inspector.DeleteTask(s.queue, id)
		if err == nil || errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			continue
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("followup: cancel %s: %w", id, err)
		}
	}
	return firstErr
}
