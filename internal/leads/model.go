package leads

import (
	"strings"
	"time"
)

// Lead is the canonical identity derived from one accepted LeadEvent.
type Lead struct {
	ID             string    `json:"id"`
	OrgID          string    `json:"org_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"` // E.164
	Message        string    `json:"message"`
	Source         string    `json:"source"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Source values for inbound lead events.
const (
	SourceWebForm    = "web_form"
	SourceAdPlatform = "ad_platform"
	SourceCall       = "call"
)

// CreateLeadRequest carries the normalized fields for a new lead.
type CreateLeadRequest struct {
	OrgID          string `json:"-"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Message        string `json:"message"`
	Source         string `json:"source"`
	IdempotencyKey string `json:"-"`
}

// Validate validates the create lead request
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.OrgID) == "" {
		return ErrMissingOrgID
	}
	if r.Email == "" && r.Phone == "" {
		return ErrMissingContact
	}
	return nil
}

// Event is the immutable raw record of a single inbound notification.
type Event struct {
	ID             string    `json:"id"`
	OrgID          string    `json:"org_id"`
	Source         string    `json:"source"`
	Mode           string    `json:"mode"`
	IdempotencyKey string    `json:"idempotency_key"`
	ContentType    string    `json:"content_type"`
	Payload        []byte    `json:"payload"`
	ReceivedAt     time.Time `json:"received_at"`
}
