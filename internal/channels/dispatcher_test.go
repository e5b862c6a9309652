package channels

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

type memoryMessageStore struct {
	mu      sync.Mutex
	pending int
	sent    map[string]int
	failed  map[string]string
}

func newMemoryMessageStore() *memoryMessageStore {
	return &memoryMessageStore{sent: make(map[string]int), failed: make(map[string]string)}
}

func (s *memoryMessageStore) CreatePending(ctx context.Context, msg *Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending++
	return fmt.Sprintf("msg-%d", s.pending), nil
}

func (s *memoryMessageStore) MarkSent(ctx context.Context, id, providerMessageID string, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[id] = attempts
	return nil
}

func (s *memoryMessageStore) MarkFailed(ctx context.Context, id, reason string, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = reason
	return nil
}

type scriptedAdapter struct {
	name string

	mu       sync.Mutex
	calls    int
	failures int
	err      error
}

func (a *scriptedAdapter) Name() string { return a.name }

func (a *scriptedAdapter) Send(ctx context.Context, out Outbound) (Receipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return Receipt{}, a.err
	}
	if a.calls <= a.failures {
		return Receipt{}, errors.New("provider timeout")
	}
	return Receipt{ProviderMessageID: fmt.Sprintf("%s-prov-%d", a.name, a.calls)}, nil
}

func newTestDispatcher(store messageStore, adapters ...Adapter) *Dispatcher {
	return NewDispatcher(DispatcherConfig{
		Adapters:    adapters,
		Store:       store,
		Logger:      logging.Default(),
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	})
}

func TestDispatch_FansOutToAllTargets(t *testing.T) {
	store := newMemoryMessageStore()
	sms := &scriptedAdapter{name: ChannelSMS}
	email := &scriptedAdapter{name: ChannelEmail}
	d := newTestDispatcher(store, sms, email)

	results := d.Dispatch(context.Background(), Request{
		OrgID:          "org-1",
		ConversationID: "conv-1",
		Body:           "Hi there!",
		Targets: []Target{
			{Channel: ChannelSMS, To: "+15555550100", From: "+15555550001"},
			{Channel: ChannelEmail, To: "ava@example.com", From: "replies@boltcall.test"},
		},
	})

	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("%s: unexpected error %v", r.Channel, r.Err)
		}
		if r.ProviderMessageID == "" {
			t.Fatalf("%s: missing provider id", r.Channel)
		}
	}
	// Result order matches target order.
	if results[0].Channel != ChannelSMS || results[1].Channel != ChannelEmail {
		t.Fatalf("result order: %s, %s", results[0].Channel, results[1].Channel)
	}
	if len(store.sent) != 2 {
		t.Fatalf("sent rows = %d", len(store.sent))
	}
}

func TestDispatch_RetriesThenSucceeds(t *testing.T) {
	store := newMemoryMessageStore()
	sms := &scriptedAdapter{name: ChannelSMS, failures: 2}
	d := newTestDispatcher(store, sms)

	results := d.Dispatch(context.Background(), Request{
		OrgID: "org-1", ConversationID: "conv-1", Body: "hi",
		Targets: []Target{{Channel: ChannelSMS, To: "+15555550100", From: "+15555550001"}},
	})

	if results[0].Err != nil {
		t.Fatalf("error after retries: %v", results[0].Err)
	}
	if results[0].Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", results[0].Attempts)
	}
	if store.sent["msg-1"] != 3 {
		t.Fatalf("sent attempts recorded = %d", store.sent["msg-1"])
	}
}

func TestDispatch_ExhaustedAttemptsMarkFailed(t *testing.T) {
	store := newMemoryMessageStore()
	sms := &scriptedAdapter{name: ChannelSMS, err: errors.New("hard down")}
	d := newTestDispatcher(store, sms)

	results := d.Dispatch(context.Background(), Request{
		OrgID: "org-1", ConversationID: "conv-1", Body: "hi",
		Targets: []Target{{Channel: ChannelSMS, To: "+15555550100", From: "+15555550001"}},
	})

	r := results[0]
	if !errors.Is(r.Err, ErrDeliveryFailure) {
		t.Fatalf("err = %v, want ErrDeliveryFailure", r.Err)
	}
	if r.Attempts != 3 {
		t.Fatalf("attempts = %d, want cap of 3", r.Attempts)
	}
	if sms.calls != 3 {
		t.Fatalf("adapter calls = %d", sms.calls)
	}
	if store.failed["msg-1"] == "" {
		t.Fatal("failure not recorded")
	}
}

func TestDispatch_OneChannelFailureDoesNotBlockOthers(t *testing.T) {
	store := newMemoryMessageStore()
	sms := &scriptedAdapter{name: ChannelSMS, err: errors.New("down")}
	email := &scriptedAdapter{name: ChannelEmail}
	d := newTestDispatcher(store, sms, email)

	results := d.Dispatch(context.Background(), Request{
		OrgID: "org-1", ConversationID: "conv-1", Body: "hi",
		Targets: []Target{
			{Channel: ChannelSMS, To: "+15555550100", From: "+15555550001"},
			{Channel: ChannelEmail, To: "ava@example.com", From: "replies@boltcall.test"},
		},
	})

	if results[0].Err == nil {
		t.Fatal("sms should have failed")
	}
	if results[1].Err != nil {
		t.Fatalf("email failed alongside sms: %v", results[1].Err)
	}
}

func TestDispatch_UnknownChannel(t *testing.T) {
	store := newMemoryMessageStore()
	d := newTestDispatcher(store, &scriptedAdapter{name: ChannelSMS})

	if d.Supports(ChannelVoice) {
		t.Fatal("voice should be unsupported")
	}
	results := d.Dispatch(context.Background(), Request{
		OrgID: "org-1", ConversationID: "conv-1", Body: "hi",
		Targets: []Target{{Channel: ChannelVoice, To: "+15555550100", From: "+15555550001"}},
	})
	if !errors.Is(results[0].Err, ErrDeliveryFailure) {
		t.Fatalf("err = %v", results[0].Err)
	}
	if store.pending != 0 {
		t.Fatal("pending row created for unroutable target")
	}
}

func TestDispatch_SerializesPerConversationChannel(t *testing.T) {
	store := newMemoryMessageStore()

	var mu sync.Mutex
	var active, maxActive int
	gate := &gateAdapter{name: ChannelSMS, enter: func() {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
	}}
	d := newTestDispatcher(store, gate)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(context.Background(), Request{
				OrgID: "org-1", ConversationID: "conv-1", Body: "hi",
				Targets: []Target{{Channel: ChannelSMS, To: "+15555550100", From: "+15555550001"}},
			})
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("concurrent sends for one conversation:channel = %d, want 1", maxActive)
	}
}

type gateAdapter struct {
	name  string
	enter func()
}

func (a *gateAdapter) Name() string { return a.name }

func (a *gateAdapter) Send(ctx context.Context, out Outbound) (Receipt, error) {
	a.enter()
	return Receipt{ProviderMessageID: "prov-1"}, nil
}
