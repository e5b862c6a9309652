package conversation

import "time"

// StartRequest asks the worker to open a conversation for a freshly ingested
// lead and send the first reply.
type StartRequest struct {
	OrgID          string    `json:"org_id"`
	LeadID         string    `json:"lead_id"`
	ConversationID string    `json:"conversation_id"`
	EventID        string    `json:"event_id"`
	ReceivedAt     time.Time `json:"received_at"`
}

// MessageRequest carries a normalized inbound reply from any channel.
type MessageRequest struct {
	OrgID             string    `json:"org_id"`
	ConversationID    string    `json:"conversation_id"`
	Channel           string    `json:"channel"`
	From              string    `json:"from"`
	Body              string    `json:"body"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	ReceivedAt        time.Time `json:"received_at"`
}

// TimerRequest fires when a scheduled follow-up comes due.
type TimerRequest struct {
	OrgID          string    `json:"org_id"`
	ConversationID string    `json:"conversation_id"`
	Kind           string    `json:"kind"`
	ArmedAt        time.Time `json:"armed_at"`
}

// Response summarizes the outcome of a processed job.
type Response struct {
	ConversationID string `json:"conversation_id"`
	Status         Status `json:"status"`
	ReplyText      string `json:"reply_text,omitempty"`
	Fallback       bool   `json:"fallback,omitempty"`
}
