package channels

import (
	"context"
	"fmt"
	"sync"
	"time"

	obsmetrics "github.com/NJ44/Boltcall-sub001/internal/observability/metrics"
	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

type messageStore interface {
	CreatePending(ctx context.Context, msg *Message) (string, error)
	MarkSent(ctx context.Context, id, providerMessageID string, attempts int) error
	MarkFailed(ctx context.Context, id, reason string, attempts int) error
}

// Target is one channel destination within a dispatch.
type Target struct {
	Channel string
	To      string
	From    string
	Subject string
}

// Request fans one reply out across the tenant's channels.
type Request struct {
	OrgID          string
	ConversationID string
	Body           string
	Targets        []Target
}

// Result is the per-channel outcome of a dispatch.
type Result struct {
	Channel           string
	MessageID         string
	ProviderMessageID string
	Attempts          int
	Err               error
}

// Dispatcher sends one reply across all configured channels concurrently.
// Each channel retries independently with exponential backoff; one channel's
// failure never blocks the others. Sends for the same conversation and
// channel are serialized so replies keep their order.
type Dispatcher struct {
	adapters    map[string]Adapter
	store       messageStore
	metrics     *obsmetrics.DispatchMetrics
	logger      *logging.Logger
	maxAttempts int
	baseDelay   time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// DispatcherConfig wires the dispatcher.
type DispatcherConfig struct {
	Adapters    []Adapter
	Store       messageStore
	Metrics     *obsmetrics.DispatchMetrics
	Logger      *logging.Logger
	MaxAttempts int
	BaseDelay   time.Duration
}

// NewDispatcher builds a dispatcher over the given adapters.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Store == nil {
		panic("channels: message store required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 250 * time.Millisecond
	}
	adapters := make(map[string]Adapter, len(cfg.Adapters))
	for _, a := range cfg.Adapters {
		if a != nil {
			adapters[a.Name()] = a
		}
	}
	return &Dispatcher{
		adapters:    adapters,
		store:       cfg.Store,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		locks:       make(map[string]*sync.Mutex),
	}
}

// Supports reports whether an adapter is wired for the channel.
func (d *Dispatcher) Supports(channel string) bool {
	_, ok := d.adapters[channel]
	return ok
}

// Dispatch sends the body to every target in parallel and returns one result
// per target. The slice order matches the request's target order.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) []Result {
	results := make([]Result, len(req.Targets))
	var wg sync.WaitGroup
	for i, target := range req.Targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()
			results[i] = d.dispatchOne(ctx, req, target)
		}(i, target)
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, req Request, target Target) Result {
	result := Result{Channel: target.Channel}
	log := d.logger.WithOrg(req.OrgID)

	adapter, ok := d.adapters[target.Channel]
	if !ok {
		result.Err = fmt.Errorf("%w: no adapter for channel %q", ErrDeliveryFailure, target.Channel)
		return result
	}

	unlock := d.lock(req.ConversationID, target.Channel)
	defer unlock()

	id, err := d.store.CreatePending(ctx, &Message{
		OrgID:          req.OrgID,
		ConversationID: req.ConversationID,
		Channel:        target.Channel,
		Recipient:      target.To,
		Body:           req.Body,
	})
	if err != nil {
		result.Err = err
		return result
	}
	result.MessageID = id

	outbound := Outbound{
		OrgID:          req.OrgID,
		ConversationID: req.ConversationID,
		To:             target.To,
		From:           target.From,
		Subject:        target.Subject,
		Body:           req.Body,
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		result.Attempts = attempt
		receipt, err := adapter.Send(ctx, outbound)
		if err == nil {
			d.metrics.ObserveAttempt(target.Channel, "ok")
			d.metrics.ObserveMessage(target.Channel, StatusSent)
			result.ProviderMessageID = receipt.ProviderMessageID
			if err := d.store.MarkSent(ctx, id, receipt.ProviderMessageID, attempt); err != nil {
				log.Warn("sent message not recorded", "message_id", id, "error", err)
			}
			log.Info("reply delivered",
				"conversation_id", req.ConversationID,
				"channel", target.Channel, "attempts", attempt)
			return result
		}
		lastErr = err
		d.metrics.ObserveAttempt(target.Channel, "error")
		log.Warn("delivery attempt failed",
			"conversation_id", req.ConversationID,
			"channel", target.Channel, "attempt", attempt, "error", err)

		if attempt == d.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
		case <-time.After(d.baseDelay << (attempt - 1)):
		}
		if ctx.Err() != nil {
			break
		}
	}

	d.metrics.ObserveMessage(target.Channel, StatusFailed)
	result.Err = fmt.Errorf("%w: %s: %v", ErrDeliveryFailure, target.Channel, lastErr)
	if err := d.store.MarkFailed(ctx, id, lastErr.Error(), result.Attempts); err != nil {
		log.Warn("failed message not recorded", "message_id", id, "error", err)
	}
	return result
}

// lock serializes sends per conversation and channel.
func (d *Dispatcher) lock(conversationID, channel string) func() {
	key := conversationID + ":" + channel
	d.mu.Lock()
	m, ok := d.locks[key]
	if !ok {
		m = &sync.Mutex{}
		d.locks[key] = m
	}
	d.mu.Unlock()
	m.Lock()
	return m.Unlock
}
