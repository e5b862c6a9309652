package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/NJ44/Boltcall-sub001/internal/events"
	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

type outboxInserter interface {
	Insert(ctx context.Context, orgID string, eventType string, payload any) (uuid.UUID, error)
}

// OutboxSink records pipeline milestones durably instead of emailing them
// inline, so notification delivery survives process restarts. A Deliverer
// drains the outbox into a Handler.
type OutboxSink struct {
	outbox outboxInserter
}

// NewOutboxSink creates a sink writing milestones to the event outbox.
func NewOutboxSink(outbox outboxInserter) *OutboxSink {
	if outbox == nil {
		panic("notify: outbox required")
	}
	return &OutboxSink{outbox: outbox}
}

// Emit persists the milestone as a versioned outbox event.
func (s *OutboxSink) Emit(ctx context.Context, evt Event) error {
	occurred := evt.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	var payload events.CanonicalEvent
	switch evt.Kind {
	case EventLeadCaptured:
		payload = events.LeadCapturedV1{
			OrgID:          evt.OrgID,
			LeadID:         evt.LeadID,
			ConversationID: evt.ConversationID,
			Source:         evt.Detail,
			Channel:        evt.Channel,
			CapturedAt:     occurred,
		}
	case EventBooked:
		payload = events.ConversationBookedV1{
			OrgID:          evt.OrgID,
			LeadID:         evt.LeadID,
			ConversationID: evt.ConversationID,
			BookingID:      evt.Detail,
			BookedAt:       occurred,
		}
	case EventEscalated:
		payload = events.ConversationEscalatedV1{
			OrgID:          evt.OrgID,
			LeadID:         evt.LeadID,
			ConversationID: evt.ConversationID,
			Reason:         evt.Detail,
			EscalatedAt:    occurred,
		}
	case EventDeliveryFailed:
		payload = events.MessageDeliveryFailedV1{
			OrgID:          evt.OrgID,
			LeadID:         evt.LeadID,
			ConversationID: evt.ConversationID,
			Channel:        evt.Channel,
			Reason:         evt.Detail,
			FailedAt:       occurred,
		}
	default:
		return fmt.Errorf("notify: unknown event kind %q", evt.Kind)
	}

	if _, err := s.outbox.Insert(ctx, evt.OrgID, payload.EventType(), payload); err != nil {
		return fmt.Errorf("notify: enqueue milestone: %w", err)
	}
	return nil
}

// Handler delivers drained outbox entries through the notification service.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates an outbox delivery handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("notify: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Handle converts an outbox entry back into a milestone and emails it.
// Unknown event types are logged and acknowledged so they do not wedge the
// outbox.
func (h *Handler) Handle(ctx context.Context, entry events.OutboxEntry) error {
	evt := Event{OrgID: entry.OrgID, OccurredAt: entry.CreatedAt}

	switch entry.Type {
	case events.LeadCapturedV1{}.EventType():
		var p events.LeadCapturedV1
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return fmt.Errorf("notify: decode %s: %w", entry.Type, err)
		}
		evt.Kind = EventLeadCaptured
		evt.LeadID = p.LeadID
		evt.ConversationID = p.ConversationID
		evt.Channel = p.Channel
		evt.Detail = p.Source
		evt.OccurredAt = p.CapturedAt
	case events.ConversationBookedV1{}.EventType():
		var p events.ConversationBookedV1
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return fmt.Errorf("notify: decode %s: %w", entry.Type, err)
		}
		evt.Kind = EventBooked
		evt.LeadID = p.LeadID
		evt.ConversationID = p.ConversationID
		evt.Detail = p.BookingID
		evt.OccurredAt = p.BookedAt
	case events.ConversationEscalatedV1{}.EventType():
		var p events.ConversationEscalatedV1
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return fmt.Errorf("notify: decode %s: %w", entry.Type, err)
		}
		evt.Kind = EventEscalated
		evt.LeadID = p.LeadID
		evt.ConversationID = p.ConversationID
		evt.Detail = p.Reason
		evt.OccurredAt = p.EscalatedAt
	case events.MessageDeliveryFailedV1{}.EventType():
		var p events.MessageDeliveryFailedV1
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return fmt.Errorf("notify: decode %s: %w", entry.Type, err)
		}
		evt.Kind = EventDeliveryFailed
		evt.LeadID = p.LeadID
		evt.ConversationID = p.ConversationID
		evt.Channel = p.Channel
		evt.Detail = p.Reason
		evt.OccurredAt = p.FailedAt
	default:
		h.logger.Warn("notify: dropping unknown outbox event", "type", entry.Type, "event_id", entry.ID)
		return nil
	}

	return h.service.Emit(ctx, evt)
}
