package responder

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClient struct {
	calls int32
	fn    func(ctx context.Context, req Request) (Reply, error)
}

func (f *fakeClient) Generate(ctx context.Context, req Request) (Reply, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.fn(ctx, req)
}

func TestGuardFallsBackAtDeadline(t *testing.T) {
	slow := &fakeClient{fn: func(ctx context.Context, req Request) (Reply, error) {
		<-ctx.Done()
		return Reply{}, ErrGenerationTimeout
	}}
	g := NewGuard(slow, 50*time.Millisecond, 3, time.Minute, nil)

	start := time.Now()
	reply, err := g.Generate(context.Background(), Request{LeadName: "Sarah Chen"})
	if err != nil {
		t.Fatalf("guard must never return an error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("fallback took %v, expected near the 50ms deadline", elapsed)
	}
	if !reply.Fallback {
		t.Fatal("expected fallback reply")
	}
	if !strings.Contains(reply.Text, "Sarah") {
		t.Fatalf("fallback not personalized: %q", reply.Text)
	}
}

func TestGuardPassesThroughFastReplies(t *testing.T) {
	fast := &fakeClient{fn: func(ctx context.Context, req Request) (Reply, error) {
		return Reply{Text: "Happy to help, what day works for you?"}, nil
	}}
	g := NewGuard(fast, time.Second, 3, time.Minute, nil)

	reply, err := g.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply.Fallback {
		t.Fatal("fast reply should not be flagged fallback")
	}
	if reply.Text != "Happy to help, what day works for you?" {
		t.Fatalf("unexpected text: %q", reply.Text)
	}
}

func TestGuardBreakerShortCircuits(t *testing.T) {
	failing := &fakeClient{fn: func(ctx context.Context, req Request) (Reply, error) {
		return Reply{}, errors.New("provider down")
	}}
	g := NewGuard(failing, time.Second, 3, time.Minute, nil)

	for i := 0; i < 3; i++ {
		if _, err := g.Generate(context.Background(), Request{}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&failing.calls); got != 3 {
		t.Fatalf("expected 3 inner calls before trip, got %d", got)
	}

	// Breaker is open: the inner client must not be touched.
	reply, err := g.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Generate with open breaker: %v", err)
	}
	if !reply.Fallback {
		t.Fatal("open breaker must serve the fallback")
	}
	if got := atomic.LoadInt32(&failing.calls); got != 3 {
		t.Fatalf("inner client called while breaker open, calls=%d", got)
	}
}

func TestGuardBreakerRecoversAfterCooldown(t *testing.T) {
	var healthy atomic.Bool
	client := &fakeClient{fn: func(ctx context.Context, req Request) (Reply, error) {
		if healthy.Load() {
			return Reply{Text: "back online"}, nil
		}
		return Reply{}, errors.New("provider down")
	}}
	g := NewGuard(client, time.Second, 2, 10*time.Millisecond, nil)

	for i := 0; i < 2; i++ {
		g.Generate(context.Background(), Request{})
	}
	healthy.Store(true)
	time.Sleep(20 * time.Millisecond)

	reply, err := g.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Generate after cooldown: %v", err)
	}
	if reply.Fallback {
		t.Fatal("generate after cooldown should reach the recovered client")
	}
}
