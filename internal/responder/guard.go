package responder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

// Guard wraps a Client with a hard generation deadline and a trip breaker so
// the dispatch pipeline always gets a usable reply. When the inner client
// times out, errors, or the breaker is open, Generate returns the
// deterministic template reply instead of an error.
type Guard struct {
	inner    Client
	deadline time.Duration
	logger   *logging.Logger

	mu       sync.Mutex
	failures int
	maxTrips int
	cooldown time.Duration
	openedAt time.Time
}

// NewGuard builds a guard around the given client. maxTrips consecutive
// failures open the breaker for the cooldown window.
func NewGuard(inner Client, deadline time.Duration, maxTrips int, cooldown time.Duration, logger *logging.Logger) *Guard {
	if inner == nil {
		panic("responder: inner client required")
	}
	if deadline <= 0 {
		deadline = 2500 * time.Millisecond
	}
	if maxTrips <= 0 {
		maxTrips = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Guard{
		inner:    inner,
		deadline: deadline,
		logger:   logger,
		maxTrips: maxTrips,
		cooldown: cooldown,
	}
}

var _ Client = (*Guard)(nil)

// Generate returns the inner client's reply when it arrives within the
// deadline, and the template fallback otherwise. The error is always nil.
func (g *Guard) Generate(ctx context.Context, req Request) (Reply, error) {
	if g.breakerOpen() {
		g.logger.Warn("generation breaker open, serving fallback",
			"org_id", req.OrgID, "conversation_id", req.ConversationID)
		return TemplateReply(req), nil
	}

	genCtx, cancel := context.WithTimeout(ctx, g.deadline)
	defer cancel()

	start := time.Now()
	reply, err := g.inner.Generate(genCtx, req)
	elapsed := time.Since(start)
	if err != nil {
		g.recordFailure()
		switch {
		case errors.Is(err, ErrGenerationTimeout), errors.Is(genCtx.Err(), context.DeadlineExceeded):
			g.logger.Warn("generation deadline exceeded, serving fallback",
				"org_id", req.OrgID, "conversation_id", req.ConversationID,
				"deadline", g.deadline, "elapsed", elapsed)
		default:
			g.logger.Error("generation failed, serving fallback", "error", err,
				"org_id", req.OrgID, "conversation_id", req.ConversationID)
		}
		fb := TemplateReply(req)
		fb.Elapsed = elapsed
		return fb, nil
	}

	g.recordSuccess()
	if reply.Elapsed == 0 {
		reply.Elapsed = elapsed
	}
	return reply, nil
}

func (g *Guard) breakerOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failures < g.maxTrips {
		return false
	}
	if time.Since(g.openedAt) >= g.cooldown {
		// Half-open: let the next call probe the inner client.
		g.failures = g.maxTrips - 1
		return false
	}
	return true
}

func (g *Guard) recordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	if g.failures == g.maxTrips {
		g.openedAt = time.Now()
	}
}

func (g *Guard) recordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = 0
}
