package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

// SendGridEmail delivers lead-facing email replies via SendGrid.
type SendGridEmail struct {
	client   *sendgrid.Client
	fromName string
	logger   *logging.Logger
}

// NewSendGridEmail creates the email adapter. Returns nil when no API key is
// configured so callers can treat the channel as absent.
func NewSendGridEmail(apiKey, fromName string, logger *logging.Logger) *SendGridEmail {
	if apiKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if fromName == "" {
		fromName = "Boltcall"
	}
	return &SendGridEmail{
		client:   sendgrid.NewSendClient(apiKey),
		fromName: fromName,
		logger:   logger,
	}
}

var _ Adapter = (*SendGridEmail)(nil)

func (s *SendGridEmail) Name() string { return ChannelEmail }

// Send delivers one email reply.
func (s *SendGridEmail) Send(ctx context.Context, msg Outbound) (Receipt, error) {
	if msg.To == "" {
		return Receipt{}, errors.New("channels: recipient email required")
	}
	if msg.From == "" {
		return Receipt{}, errors.New("channels: sender email required")
	}
	subject := msg.Subject
	if subject == "" {
		subject = "Thanks for reaching out"
	}

	from := mail.NewEmail(s.fromName, msg.From)
	to := mail.NewEmail("", msg.To)
	message := mail.NewSingleEmail(from, subject, to, msg.Body, msg.Body)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: email: %v", ErrDeliveryFailure, err)
	}
	if response.StatusCode >= 400 {
		return Receipt{}, fmt.Errorf("%w: email: sendgrid status %d", ErrDeliveryFailure, response.StatusCode)
	}

	// SendGrid returns the message id in a response header.
	var providerID string
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		providerID = strings.TrimSpace(ids[0])
	}
	return Receipt{ProviderMessageID: providerID}, nil
}
