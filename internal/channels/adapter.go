// Package channels delivers outbound replies across the tenant's configured
// contact channels and records every delivery attempt.
package channels

import (
	"context"
	"errors"
)

// Channel names. They match the tenant configuration values.
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
	ChannelVoice = "voice"
)

// ErrDeliveryFailure wraps provider-level send failures.
var ErrDeliveryFailure = errors.New("channels: delivery failed")

// Outbound is a single message to deliver on one channel.
type Outbound struct {
	OrgID          string
	ConversationID string
	To             string
	From           string
	Subject        string
	Body           string
}

// Receipt is the provider acknowledgment for an accepted send.
type Receipt struct {
	ProviderMessageID string
}

// Adapter sends one message on one channel. Implementations make a single
// attempt; retry policy lives in the Dispatcher.
type Adapter interface {
	Name() string
	Send(ctx context.Context, msg Outbound) (Receipt, error)
}
