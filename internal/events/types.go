package events

import "time"

// LeadCapturedV1 records a normalized lead entering the pipeline.
type LeadCapturedV1 struct {
	EventID        string    `json:"event_id"`
	OrgID          string    `json:"org_id"`
	LeadID         string    `json:"lead_id"`
	ConversationID string    `json:"conversation_id"`
	Source         string    `json:"source"`
	Channel        string    `json:"channel,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}

func (LeadCapturedV1) EventType() string {
	return "lead.captured.v1"
}

// ConversationBookedV1 records a confirmed appointment.
type ConversationBookedV1 struct {
	EventID        string    `json:"event_id"`
	OrgID          string    `json:"org_id"`
	LeadID         string    `json:"lead_id"`
	ConversationID string    `json:"conversation_id"`
	BookingID      string    `json:"booking_id"`
	SlotStart      time.Time `json:"slot_start,omitempty"`
	BookedAt       time.Time `json:"booked_at"`
}

func (ConversationBookedV1) EventType() string {
	return "conversation.booked.v1"
}

// ConversationEscalatedV1 records a hand-off to the tenant's staff.
type ConversationEscalatedV1 struct {
	EventID        string    `json:"event_id"`
	OrgID          string    `json:"org_id"`
	LeadID         string    `json:"lead_id"`
	ConversationID string    `json:"conversation_id"`
	Reason         string    `json:"reason,omitempty"`
	EscalatedAt    time.Time `json:"escalated_at"`
}

func (ConversationEscalatedV1) EventType() string {
	return "conversation.escalated.v1"
}

// MessageDeliveryFailedV1 records an outbound reply that exhausted its
// delivery attempts on one channel.
type MessageDeliveryFailedV1 struct {
	EventID        string    `json:"event_id"`
	OrgID          string    `json:"org_id"`
	LeadID         string    `json:"lead_id"`
	ConversationID string    `json:"conversation_id"`
	Channel        string    `json:"channel"`
	Reason         string    `json:"reason,omitempty"`
	FailedAt       time.Time `json:"failed_at"`
}

func (MessageDeliveryFailedV1) EventType() string {
	return "delivery.failed.v1"
}
