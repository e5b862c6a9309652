package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

type fakeProcessor struct {
	mu      sync.Mutex
	starts  []StartRequest
	inbound []MessageRequest
	timers  []TimerRequest
	err     error
}

func (f *fakeProcessor) ProcessStart(ctx context.Context, req StartRequest) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, req)
	if f.err != nil {
		return nil, f.err
	}
	return &Response{ConversationID: req.ConversationID, Status: StatusNew}, nil
}

func (f *fakeProcessor) ProcessInbound(ctx context.Context, req MessageRequest) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound = append(f.inbound, req)
	if f.err != nil {
		return nil, f.err
	}
	return &Response{ConversationID: req.ConversationID, Status: StatusReplied}, nil
}

func (f *fakeProcessor) ProcessTimer(ctx context.Context, req TimerRequest) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timers = append(f.timers, req)
	return &Response{ConversationID: req.ConversationID}, nil
}

type fakeJobUpdater struct {
	mu        sync.Mutex
	completed []string
	failed    map[string]string
}

func (f *fakeJobUpdater) MarkCompleted(ctx context.Context, jobID string, resp *Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, jobID)
	return nil
}

func (f *fakeJobUpdater) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed == nil {
		f.failed = make(map[string]string)
	}
	f.failed[jobID] = errMsg
	return nil
}

type fakeMessageChecker struct {
	known map[string]bool
}

func (f *fakeMessageChecker) HasProviderMessage(ctx context.Context, providerMessageID string) (bool, error) {
	return f.known[providerMessageID], nil
}

func TestWorker_ProcessesStartJob(t *testing.T) {
	queue := NewMemoryQueue(8)
	processor := &fakeProcessor{}
	jobs := &fakeJobUpdater{}

	worker := NewWorker(processor, queue, jobs, logging.Default(), WithWorkerCount(1), WithReceiveWaitSeconds(0))
	publisher := NewPublisher(queue, logging.Default())

	err := publisher.EnqueueStart(context.Background(), "job-1", StartRequest{
		OrgID:          "org-1",
		LeadID:         "lead-1",
		ConversationID: "conv-1",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)

	waitFor(t, func() bool {
		jobs.mu.Lock()
		defer jobs.mu.Unlock()
		return len(jobs.completed) == 1
	})

	cancel()
	worker.Wait()

	if len(processor.starts) != 1 || processor.starts[0].ConversationID != "conv-1" {
		t.Fatalf("starts = %+v", processor.starts)
	}
	if jobs.completed[0] != "job-1" {
		t.Fatalf("completed = %v", jobs.completed)
	}
}

func TestWorker_MarksFailedJobs(t *testing.T) {
	queue := NewMemoryQueue(8)
	processor := &fakeProcessor{err: errors.New("pipeline down")}
	jobs := &fakeJobUpdater{}

	worker := NewWorker(processor, queue, jobs, logging.Default(), WithWorkerCount(1), WithReceiveWaitSeconds(0))
	publisher := NewPublisher(queue, logging.Default())

	if err := publisher.EnqueueInbound(context.Background(), "job-2", MessageRequest{
		OrgID:          "org-1",
		ConversationID: "conv-1",
		Body:           "hi",
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)

	waitFor(t, func() bool {
		jobs.mu.Lock()
		defer jobs.mu.Unlock()
		return len(jobs.failed) == 1
	})

	cancel()
	worker.Wait()

	if msg := jobs.failed["job-2"]; msg != "pipeline down" {
		t.Fatalf("failure message = %q", msg)
	}
}

func TestWorker_SkipsInboundJobWithMissingProviderMessage(t *testing.T) {
	queue := NewMemoryQueue(8)
	processor := &fakeProcessor{}
	jobs := &fakeJobUpdater{}
	checker := &fakeMessageChecker{known: map[string]bool{}}

	worker := NewWorker(processor, queue, jobs, logging.Default(),
		WithWorkerCount(1), WithReceiveWaitSeconds(0), WithProviderMessageChecker(checker))
	publisher := NewPublisher(queue, logging.Default())

	if err := publisher.EnqueueInbound(context.Background(), "job-3", MessageRequest{
		OrgID:             "org-1",
		ConversationID:    "conv-1",
		Body:              "hi",
		ProviderMessageID: "tx-999",
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)

	waitFor(t, func() bool {
		jobs.mu.Lock()
		defer jobs.mu.Unlock()
		return len(jobs.failed) == 1
	})

	cancel()
	worker.Wait()

	processor.mu.Lock()
	defer processor.mu.Unlock()
	if len(processor.inbound) != 0 {
		t.Fatalf("skipped job still processed: %+v", processor.inbound)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
