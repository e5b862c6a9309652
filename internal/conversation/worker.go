package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

// Processor handles decoded conversation jobs.
type Processor interface {
	ProcessStart(ctx context.Context, req StartRequest) (*Response, error)
	ProcessInbound(ctx context.Context, req MessageRequest) (*Response, error)
	ProcessTimer(ctx context.Context, req TimerRequest) (*Response, error)
}

// ProviderMessageChecker verifies an inbound provider message was persisted
// before its job is processed.
type ProviderMessageChecker interface {
	HasProviderMessage(ctx context.Context, providerMessageID string) (bool, error)
}

// Worker consumes conversation jobs from the queue and invokes the processor.
type Worker struct {
	processor  Processor
	queue      queueClient
	jobs       JobUpdater
	msgChecker ProviderMessageChecker
	logger     *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	msgChecker       ProviderMessageChecker
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the queue long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithProviderMessageChecker configures a provider message lookup for
// stale-job detection on inbound jobs.
func WithProviderMessageChecker(checker ProviderMessageChecker) WorkerOption {
	return func(cfg *workerConfig) {
		if checker != nil {
			cfg.msgChecker = checker
		}
	}
}

// NewWorker constructs a queue consumer around the provided processor.
func NewWorker(processor Processor, queue queueClient, jobs JobUpdater, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if jobs == nil {
		panic("conversation: job store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		processor:  processor,
		queue:      queue,
		jobs:       jobs,
		msgChecker: cfg.msgChecker,
		logger:     logger,
		cfg:        cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive conversation jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode conversation job", "error", err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	w.logger.Debug("worker processing job", "job_id", payload.ID, "kind", payload.Kind, "msg_id", msg.ID)

	// An inbound job whose provider message never landed in the transcript is
	// stale; the webhook was accepted but persistence failed.
	if payload.Kind == jobTypeMessage && w.msgChecker != nil {
		if providerID := strings.TrimSpace(payload.Message.ProviderMessageID); providerID != "" {
			exists, err := w.msgChecker.HasProviderMessage(ctx, providerID)
			if err != nil {
				w.logger.Warn("provider message lookup failed", "error", err,
					"provider_message_id", providerID, "job_id", payload.ID)
			} else if !exists {
				w.logger.Info("skipping conversation job: inbound message missing",
					"provider_message_id", providerID, "job_id", payload.ID)
				w.markFailed(ctx, payload.ID, "skipped: inbound message missing")
				w.deleteMessage(context.Background(), msg.ReceiptHandle)
				return
			}
		}
	}

	var (
		resp *Response
		err  error
	)
	switch payload.Kind {
	case jobTypeStart:
		resp, err = w.processor.ProcessStart(ctx, payload.Start)
	case jobTypeMessage:
		resp, err = w.processor.ProcessInbound(ctx, payload.Message)
	case jobTypeTimer:
		resp, err = w.processor.ProcessTimer(ctx, payload.Timer)
	default:
		err = fmt.Errorf("conversation: unknown job type %q", payload.Kind)
	}

	if err != nil {
		w.logger.Error("conversation job failed", "error", err, "job_id", payload.ID, "kind", payload.Kind)
		w.markFailed(ctx, payload.ID, err.Error())
	} else {
		w.logger.Debug("conversation job processed", "job_id", payload.ID, "kind", payload.Kind)
		if storeErr := w.jobs.MarkCompleted(ctx, payload.ID, resp); storeErr != nil {
			w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
		}
	}

	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) markFailed(ctx context.Context, jobID, reason string) {
	if err := w.jobs.MarkFailed(ctx, jobID, reason); err != nil {
		w.logger.Error("failed to update job status", "error", err, "job_id", jobID)
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete conversation job", "error", err)
	}
}
