// Package responder generates the outbound reply for a conversation turn,
// under a hard deadline, falling back to a deterministic template when the
// upstream AI capability is slow or unavailable.
package responder

import (
	"context"
	"errors"
	"time"

	"github.com/NJ44/Boltcall-sub001/internal/tenancy"
)

var (
	// ErrGenerationTimeout indicates the upstream did not answer in time.
	ErrGenerationTimeout = errors.New("responder: generation timed out")
	// ErrGenerationFailure indicates the upstream answered with an error.
	ErrGenerationFailure = errors.New("responder: generation failed")
)

// Turn is one prior message in the conversation window.
type Turn struct {
	Direction string `json:"direction"` // "inbound" | "outbound"
	Content   string `json:"content"`
}

// Request carries everything the generator may reference. Nothing outside
// this struct reaches the prompt, which is what keeps tenants isolated.
type Request struct {
	OrgID          string
	ConversationID string
	LeadName       string
	LeadPhone      string
	LeadEmail      string
	LeadMessage    string
	Source         string
	History        []Turn
	Tone           string
	Questions      []tenancy.QualificationQuestion
	// Nudge marks a scheduler-driven re-engagement turn with no new inbound
	// message.
	Nudge bool
}

// Reply is a usable outbound message plus the qualification signal.
type Reply struct {
	Text       string            `json:"text"`
	Qualified  bool              `json:"qualified"`
	Answers    map[string]string `json:"answers,omitempty"`
	Escalate   bool              `json:"escalate,omitempty"`
	Fallback   bool              `json:"fallback"`
	Confidence float64           `json:"confidence,omitempty"`
	Elapsed    time.Duration     `json:"-"`
}

// Client produces a reply for a conversation turn.
type Client interface {
	Generate(ctx context.Context, req Request) (Reply, error)
}
