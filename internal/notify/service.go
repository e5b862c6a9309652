package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NJ44/Boltcall-sub001/internal/leads"
	"github.com/NJ44/Boltcall-sub001/internal/tenancy"
	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

// Event kinds emitted by the pipeline.
const (
	EventLeadCaptured   = "lead.captured"
	EventBooked         = "conversation.booked"
	EventEscalated      = "conversation.escalated"
	EventDeliveryFailed = "delivery.failed"
)

// Event is a notification-worthy milestone.
type Event struct {
	Kind           string
	OrgID          string
	LeadID         string
	ConversationID string
	Channel        string
	Detail         string
	OccurredAt     time.Time
}

// TenantSource retrieves tenant configuration.
type TenantSource interface {
	Get(ctx context.Context, orgID string) (*tenancy.Tenant, error)
}

// Service sends operator notifications according to tenant preferences.
type Service struct {
	email     EmailSender
	tenants   TenantSource
	leadsRepo leads.Repository
	logger    *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, tenants TenantSource, leadsRepo leads.Repository, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:     email,
		tenants:   tenants,
		leadsRepo: leadsRepo,
		logger:    logger,
	}
}

// Emit sends the notification for an event when the tenant opted in. Failures
// are logged, never propagated into the pipeline.
func (s *Service) Emit(ctx context.Context, evt Event) error {
	if s.email == nil || s.tenants == nil {
		return nil
	}
	tenant, err := s.tenants.Get(ctx, evt.OrgID)
	if err != nil {
		s.logger.Error("notify: tenant lookup failed", "error", err, "org_id", evt.OrgID)
		return fmt.Errorf("notify: get tenant: %w", err)
	}
	if tenant == nil || !tenant.Notifications.EmailEnabled {
		return nil
	}
	if !s.wanted(tenant, evt.Kind) {
		return nil
	}

	subject, body := s.compose(ctx, tenant, evt)

	var errs []error
	for _, recipient := range tenant.Notifications.EmailRecipients {
		if err := s.email.Send(ctx, EmailMessage{
			To:      recipient,
			Subject: subject,
			Body:    body,
		}); err != nil {
			s.logger.Error("notify: email failed", "error", err, "org_id", evt.OrgID, "to", recipient)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) wanted(tenant *tenancy.Tenant, kind string) bool {
	switch kind {
	case EventLeadCaptured:
		return tenant.Notifications.NotifyOnNewLead
	case EventBooked:
		return tenant.Notifications.NotifyOnBooked
	case EventEscalated:
		return tenant.Notifications.NotifyOnEscalated
	case EventDeliveryFailed:
		return true
	default:
		return false
	}
}

func (s *Service) compose(ctx context.Context, tenant *tenancy.Tenant, evt Event) (subject, body string) {
	leadLine := ""
	if s.leadsRepo != nil && evt.LeadID != "" {
		if lead, err := s.leadsRepo.GetByID(ctx, evt.OrgID, evt.LeadID); err == nil && lead != nil {
			parts := []string{}
			if lead.Name != "" {
				parts = append(parts, lead.Name)
			}
			if lead.Phone != "" {
				parts = append(parts, lead.Phone)
			}
			if lead.Email != "" {
				parts = append(parts, lead.Email)
			}
			leadLine = strings.Join(parts, " / ")
		}
	}
	if leadLine == "" {
		leadLine = "A lead"
	}

	when := evt.OccurredAt
	if when.IsZero() {
		when = time.Now()
	}
	stamp := when.Format("January 2, 2006 at 3:04 PM")

	switch evt.Kind {
	case EventLeadCaptured:
		subject = "New lead captured"
		body = fmt.Sprintf("%s reached out on %s.\nWe replied within seconds and are working the conversation.", leadLine, stamp)
	case EventBooked:
		subject = "Appointment booked"
		body = fmt.Sprintf("%s booked an appointment on %s.\nConversation: %s", leadLine, stamp, evt.ConversationID)
	case EventEscalated:
		subject = "Lead asked for a human"
		body = fmt.Sprintf("%s asked to speak with your team on %s.\nPlease follow up directly.\nConversation: %s", leadLine, stamp, evt.ConversationID)
	case EventDeliveryFailed:
		subject = "Message delivery failed"
		body = fmt.Sprintf("A reply to %s could not be delivered on the %s channel (%s).\nOther channels were unaffected.", leadLine, evt.Channel, evt.Detail)
	default:
		subject = "Boltcall notification"
		body = evt.Detail
	}
	return subject, body
}
