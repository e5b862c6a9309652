package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/NJ44/Boltcall-sub001/internal/archive"
	"github.com/NJ44/Boltcall-sub001/internal/booking"
	"github.com/NJ44/Boltcall-sub001/internal/channels"
	"github.com/NJ44/Boltcall-sub001/internal/followup"
	"github.com/NJ44/Boltcall-sub001/internal/leads"
	"github.com/NJ44/Boltcall-sub001/internal/notify"
	obsmetrics "github.com/NJ44/Boltcall-sub001/internal/observability/metrics"
	"github.com/NJ44/Boltcall-sub001/internal/responder"
	"github.com/NJ44/Boltcall-sub001/internal/tenancy"
	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

type conversationStore interface {
	Create(ctx context.Context, id, orgID, leadID string) error
	Get(ctx context.Context, orgID, id string) (*Conversation, error)
	Transition(ctx context.Context, orgID, id string, to Status) (*Conversation, bool, error)
	SetBooking(ctx context.Context, orgID, id, bookingID string) error
	TouchInbound(ctx context.Context, orgID, id string, at time.Time) error
	TouchOutbound(ctx context.Context, orgID, id string, at time.Time) error
}

type transcriptStore interface {
	History(ctx context.Context, orgID, conversationID string, limit int) ([]channels.Message, error)
	RecordInbound(ctx context.Context, msg *channels.Message) (string, error)
}

type replyDispatcher interface {
	Supports(channel string) bool
	Dispatch(ctx context.Context, req channels.Request) []channels.Result
}

type followUpScheduler interface {
	Arm(ctx context.Context, task followup.Task, quiet followup.QuietHours) error
	Cancel(ctx context.Context, conversationID string) error
}

type eventNotifier interface {
	Emit(ctx context.Context, evt notify.Event) error
}

type trainingArchiver interface {
	Archive(ctx context.Context, input archive.TrainingArchiveInput)
}

type bookingService interface {
	CheckAvailability(ctx context.Context, req booking.AvailabilityRequest) ([]booking.Slot, error)
	CreateBooking(ctx context.Context, req booking.CreateRequest) (*booking.Booking, error)
}

type tenantSource interface {
	Get(ctx context.Context, orgID string) (*tenancy.Tenant, error)
	Suppress(ctx context.Context, orgID, recipient string) error
	IsSuppressed(ctx context.Context, orgID, recipient string) (bool, error)
}

// Service runs the conversation pipeline: generate a reply, fan it out, move
// the state machine, arm the follow-up safety net, and emit notifications.
// All jobs for one conversation are serialized through a per-id lock so state
// never races.
type Service struct {
	store         conversationStore
	transcript    transcriptStore
	leadsRepo     leads.Repository
	tenants       tenantSource
	responder     responder.Client
	dispatcher    replyDispatcher
	followups     followUpScheduler
	notifier      eventNotifier
	bookings      bookingService
	archiver      trainingArchiver
	metrics       *obsmetrics.ConversationMetrics
	ingestMetrics *obsmetrics.IngestMetrics
	logger        *logging.Logger
	historyWindow int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// ServiceConfig wires the pipeline.
type ServiceConfig struct {
	Store         conversationStore
	Transcript    transcriptStore
	Leads         leads.Repository
	Tenants       tenantSource
	Responder     responder.Client
	Dispatcher    replyDispatcher
	FollowUps     followUpScheduler
	Notifier      eventNotifier
	Bookings      bookingService
	Archiver      trainingArchiver
	Metrics       *obsmetrics.ConversationMetrics
	IngestMetrics *obsmetrics.IngestMetrics
	Logger        *logging.Logger
	HistoryWindow int
}

// NewService creates the conversation pipeline service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Store == nil {
		panic("conversation: store required")
	}
	if cfg.Transcript == nil {
		panic("conversation: transcript required")
	}
	if cfg.Leads == nil {
		panic("conversation: lead repository required")
	}
	if cfg.Tenants == nil {
		panic("conversation: tenant source required")
	}
	if cfg.Responder == nil {
		panic("conversation: responder required")
	}
	if cfg.Dispatcher == nil {
		panic("conversation: dispatcher required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 12
	}
	return &Service{
		store:         cfg.Store,
		transcript:    cfg.Transcript,
		leadsRepo:     cfg.Leads,
		tenants:       cfg.Tenants,
		responder:     cfg.Responder,
		dispatcher:    cfg.Dispatcher,
		followups:     cfg.FollowUps,
		notifier:      cfg.Notifier,
		bookings:      cfg.Bookings,
		archiver:      cfg.Archiver,
		metrics:       cfg.Metrics,
		ingestMetrics: cfg.IngestMetrics,
		logger:        cfg.Logger,
		historyWindow: cfg.HistoryWindow,
		locks:         make(map[string]*sync.Mutex),
	}
}

// ProcessStart opens a conversation for a new lead and sends the first reply.
func (s *Service) ProcessStart(ctx context.Context, req StartRequest) (*Response, error) {
	unlock := s.lock(req.ConversationID)
	defer unlock()

	log := s.logger.WithOrg(req.OrgID)

	tenant, err := s.tenants.Get(ctx, req.OrgID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load tenant: %w", err)
	}
	if tenant == nil {
		tenant = tenancy.DefaultTenant(req.OrgID)
	}

	lead, err := s.leadsRepo.GetByID(ctx, req.OrgID, req.LeadID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load lead: %w", err)
	}

	if err := s.store.Create(ctx, req.ConversationID, req.OrgID, req.LeadID); err != nil {
		return nil, err
	}

	reply, err := s.responder.Generate(ctx, responder.Request{
		OrgID:          req.OrgID,
		ConversationID: req.ConversationID,
		LeadName:       lead.Name,
		LeadPhone:      lead.Phone,
		LeadEmail:      lead.Email,
		LeadMessage:    lead.Message,
		Source:         lead.Source,
		Tone:           tenant.ToneTemplate,
		Questions:      tenant.Questions,
	})
	if err != nil {
		// The guarded responder never errors; an unguarded one failing
		// still must not stall the reply.
		log.Warn("generation failed at start, using template", "error", err)
		reply = responder.TemplateReply(responder.Request{LeadName: lead.Name})
	}
	if reply.Fallback {
		s.metrics.ObserveFallback()
	}

	conv := &Conversation{
		ID:     req.ConversationID,
		OrgID:  req.OrgID,
		LeadID: req.LeadID,
		Status: StatusNew,
	}

	results := s.dispatchReply(ctx, tenant, lead, req.ConversationID, reply.Text, "")
	if anySent(results) {
		if s.ingestMetrics != nil && !req.ReceivedAt.IsZero() {
			s.ingestMetrics.ObserveTimeToFirstDispatch(time.Since(req.ReceivedAt).Seconds())
		}
		if err := s.store.TouchOutbound(ctx, req.OrgID, req.ConversationID, time.Now()); err != nil {
			log.Warn("outbound stamp failed", "error", err)
		}
		// The first reply landing on any channel is what moves the
		// conversation out of new. A fully failed dispatch leaves it
		// there, so the abandon timer cannot bury an unanswered lead.
		conv = s.transition(ctx, conv, StatusReplied)
	}
	s.reportFailures(ctx, req.OrgID, req.LeadID, req.ConversationID, results)

	s.armFollowUps(ctx, tenant, req.ConversationID, followup.KindReminder, followup.KindAbandon)

	s.emit(ctx, notify.Event{
		Kind:           notify.EventLeadCaptured,
		OrgID:          req.OrgID,
		LeadID:         req.LeadID,
		ConversationID: req.ConversationID,
		OccurredAt:     req.ReceivedAt,
	})

	return &Response{
		ConversationID: req.ConversationID,
		Status:         conv.Status,
		ReplyText:      reply.Text,
		Fallback:       reply.Fallback,
	}, nil
}

// ProcessInbound handles a lead's reply arriving on any channel.
func (s *Service) ProcessInbound(ctx context.Context, req MessageRequest) (*Response, error) {
	unlock := s.lock(req.ConversationID)
	defer unlock()

	log := s.logger.WithOrg(req.OrgID)

	conv, err := s.store.Get(ctx, req.OrgID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	tenant, err := s.tenants.Get(ctx, req.OrgID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load tenant: %w", err)
	}
	if tenant == nil {
		tenant = tenancy.DefaultTenant(req.OrgID)
	}

	// Provider webhooks persist the inbound row before enqueueing; only
	// messages injected without one still need a transcript entry.
	if req.ProviderMessageID == "" {
		if _, err := s.transcript.RecordInbound(ctx, &channels.Message{
			OrgID:          req.OrgID,
			ConversationID: req.ConversationID,
			Channel:        req.Channel,
			Recipient:      req.From,
			Body:           req.Body,
		}); err != nil {
			log.Warn("inbound not recorded", "error", err)
		}
	}

	if conv.Status.IsTerminal() {
		// Late replies after a terminal state are kept in the transcript
		// but drive nothing.
		log.Info("inbound after terminal state dropped",
			"conversation_id", req.ConversationID, "status", conv.Status)
		return &Response{ConversationID: conv.ID, Status: conv.Status}, nil
	}

	if err := s.store.TouchInbound(ctx, req.OrgID, req.ConversationID, req.ReceivedAt); err != nil {
		log.Warn("inbound stamp failed", "error", err)
	}
	s.cancelFollowUps(ctx, req.ConversationID)

	if handled, resp := s.handleKeywords(ctx, tenant, conv, req); handled {
		return resp, nil
	}

	// Any inbound from the lead deepens the conversation to engaged.
	conv = s.transition(ctx, conv, StatusEngaged)

	lead, err := s.leadsRepo.GetByID(ctx, req.OrgID, conv.LeadID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load lead: %w", err)
	}

	if responder.WantsHuman(req.Body) {
		return s.escalate(ctx, tenant, conv, lead, req.Channel)
	}

	history, err := s.transcript.History(ctx, req.OrgID, req.ConversationID, s.historyWindow)
	if err != nil {
		log.Warn("history unavailable", "error", err)
	}

	reply, err := s.responder.Generate(ctx, responder.Request{
		OrgID:          req.OrgID,
		ConversationID: req.ConversationID,
		LeadName:       lead.Name,
		LeadPhone:      lead.Phone,
		LeadEmail:      lead.Email,
		LeadMessage:    req.Body,
		Source:         lead.Source,
		History:        toTurns(history),
		Tone:           tenant.ToneTemplate,
		Questions:      tenant.Questions,
	})
	if err != nil {
		log.Warn("generation failed on inbound, using template", "error", err)
		reply = responder.TemplateReply(responder.Request{LeadName: lead.Name})
	}
	if reply.Fallback {
		s.metrics.ObserveFallback()
	}

	if reply.Escalate {
		resp, err := s.escalate(ctx, tenant, conv, lead, req.Channel)
		if err != nil {
			return nil, err
		}
		// Still deliver the handoff text the model produced.
		s.dispatchReply(ctx, tenant, lead, conv.ID, reply.Text, req.Channel)
		return resp, err
	}

	replyText := reply.Text
	if reply.Qualified {
		conv = s.transition(ctx, conv, StatusQualified)
		if booked, text := s.tryBook(ctx, tenant, conv, lead); booked {
			conv = s.transition(ctx, conv, StatusBooked)
			s.cancelFollowUps(ctx, conv.ID)
			s.emit(ctx, notify.Event{
				Kind:           notify.EventBooked,
				OrgID:          conv.OrgID,
				LeadID:         conv.LeadID,
				ConversationID: conv.ID,
			})
			replyText = text
		} else if text != "" {
			replyText = text
		}
	}

	results := s.dispatchReply(ctx, tenant, lead, conv.ID, replyText, req.Channel)
	if anySent(results) {
		if err := s.store.TouchOutbound(ctx, req.OrgID, conv.ID, time.Now()); err != nil {
			log.Warn("outbound stamp failed", "error", err)
		}
	}
	s.reportFailures(ctx, conv.OrgID, conv.LeadID, conv.ID, results)

	if !conv.Status.IsTerminal() {
		s.armFollowUps(ctx, tenant, conv.ID, followup.KindReengage, followup.KindAbandon)
	}

	return &Response{
		ConversationID: conv.ID,
		Status:         conv.Status,
		ReplyText:      replyText,
		Fallback:       reply.Fallback,
	}, nil
}

// ProcessTimer handles a follow-up firing.
func (s *Service) ProcessTimer(ctx context.Context, req TimerRequest) (*Response, error) {
	unlock := s.lock(req.ConversationID)
	defer unlock()

	log := s.logger.WithOrg(req.OrgID)

	conv, err := s.store.Get(ctx, req.OrgID, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status.IsTerminal() {
		return &Response{ConversationID: conv.ID, Status: conv.Status}, nil
	}

	// A reply since arming makes this timer stale.
	if conv.LastInboundAt != nil && conv.LastInboundAt.After(req.ArmedAt) {
		log.Debug("stale follow-up skipped",
			"conversation_id", conv.ID, "kind", req.Kind)
		return &Response{ConversationID: conv.ID, Status: conv.Status}, nil
	}

	if req.Kind == followup.KindAbandon {
		conv = s.transition(ctx, conv, StatusAbandoned)
		return &Response{ConversationID: conv.ID, Status: conv.Status}, nil
	}

	tenant, err := s.tenants.Get(ctx, req.OrgID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load tenant: %w", err)
	}
	if tenant == nil {
		tenant = tenancy.DefaultTenant(req.OrgID)
	}
	if !tenant.FollowUps.NudgeOnFire {
		return &Response{ConversationID: conv.ID, Status: conv.Status}, nil
	}

	lead, err := s.leadsRepo.GetByID(ctx, req.OrgID, conv.LeadID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load lead: %w", err)
	}

	history, err := s.transcript.History(ctx, req.OrgID, conv.ID, s.historyWindow)
	if err != nil {
		log.Warn("history unavailable", "error", err)
	}

	reply, err := s.responder.Generate(ctx, responder.Request{
		OrgID:          req.OrgID,
		ConversationID: conv.ID,
		LeadName:       lead.Name,
		LeadPhone:      lead.Phone,
		LeadEmail:      lead.Email,
		Source:         lead.Source,
		History:        toTurns(history),
		Tone:           tenant.ToneTemplate,
		Questions:      tenant.Questions,
		Nudge:          true,
	})
	if err != nil {
		log.Warn("nudge generation failed, skipping", "error", err)
		return &Response{ConversationID: conv.ID, Status: conv.Status}, nil
	}

	results := s.dispatchReply(ctx, tenant, lead, conv.ID, reply.Text, "")
	s.reportFailures(ctx, conv.OrgID, conv.LeadID, conv.ID, results)

	// After a reminder fires, the next escalation step takes over.
	if req.Kind == followup.KindReminder {
		s.armFollowUps(ctx, tenant, conv.ID, followup.KindReengage)
	}

	return &Response{
		ConversationID: conv.ID,
		Status:         conv.Status,
		ReplyText:      reply.Text,
		Fallback:       reply.Fallback,
	}, nil
}

// HandleFollowUp adapts the asynq payload to ProcessTimer.
func (s *Service) HandleFollowUp(ctx context.Context, payload followup.Payload) error {
	_, err := s.ProcessTimer(ctx, TimerRequest{
		OrgID:          payload.OrgID,
		ConversationID: payload.ConversationID,
		Kind:           payload.Kind,
		ArmedAt:        payload.ArmedAt,
	})
	if errors.Is(err, ErrConversationNotFound) {
		return nil
	}
	return err
}

// handleKeywords intercepts STOP/HELP on messaging channels.
func (s *Service) handleKeywords(ctx context.Context, tenant *tenancy.Tenant, conv *Conversation, req MessageRequest) (bool, *Response) {
	if req.Channel != channels.ChannelSMS {
		return false, nil
	}
	body := strings.ToUpper(strings.TrimSpace(req.Body))
	log := s.logger.WithOrg(req.OrgID)

	switch body {
	case "STOP", "STOPALL", "UNSUBSCRIBE", "CANCEL", "QUIT":
		if err := s.tenants.Suppress(ctx, req.OrgID, req.From); err != nil {
			log.Error("opt-out not recorded", "error", err, "conversation_id", conv.ID)
		}
		conv = s.transition(ctx, conv, StatusUnqualified)
		s.cancelFollowUps(ctx, conv.ID)
		log.Info("lead opted out", "conversation_id", conv.ID)
		return true, &Response{ConversationID: conv.ID, Status: conv.Status}
	case "HELP", "INFO":
		lead, err := s.leadsRepo.GetByID(ctx, req.OrgID, conv.LeadID)
		if err == nil {
			s.dispatchReply(ctx, tenant, lead, conv.ID,
				"Reply STOP to opt out. Msg&data rates may apply.", req.Channel)
		}
		return true, &Response{ConversationID: conv.ID, Status: conv.Status}
	}
	return false, nil
}

func (s *Service) escalate(ctx context.Context, tenant *tenancy.Tenant, conv *Conversation, lead *leads.Lead, channel string) (*Response, error) {
	conv = s.transition(ctx, conv, StatusEscalated)
	s.cancelFollowUps(ctx, conv.ID)
	s.emit(ctx, notify.Event{
		Kind:           notify.EventEscalated,
		OrgID:          conv.OrgID,
		LeadID:         conv.LeadID,
		ConversationID: conv.ID,
	})
	text := fmt.Sprintf("Of course! Someone from %s will reach out to you directly.", tenant.Name)
	s.dispatchReply(ctx, tenant, lead, conv.ID, text, channel)
	return &Response{ConversationID: conv.ID, Status: conv.Status, ReplyText: text}, nil
}

// tryBook checks availability and books the first open slot. Returns whether
// a booking was made and the reply text to send.
func (s *Service) tryBook(ctx context.Context, tenant *tenancy.Tenant, conv *Conversation, lead *leads.Lead) (bool, string) {
	if s.bookings == nil {
		return false, ""
	}
	log := s.logger.WithOrg(conv.OrgID)

	now := time.Now()
	slots, err := s.bookings.CheckAvailability(ctx, booking.AvailabilityRequest{
		OrgID: conv.OrgID,
		From:  now,
		To:    now.Add(7 * 24 * time.Hour),
	})
	if err != nil {
		log.Warn("availability check failed", "error", err, "conversation_id", conv.ID)
		return false, ""
	}
	if len(slots) == 0 {
		return false, "We're fully booked this week, but the team will reach out to find a time that works."
	}

	slot := slots[0]
	booked, err := s.bookings.CreateBooking(ctx, booking.CreateRequest{
		OrgID:          conv.OrgID,
		ConversationID: conv.ID,
		LeadName:       lead.Name,
		LeadPhone:      lead.Phone,
		LeadEmail:      lead.Email,
		Start:          slot.Start,
		IdempotencyKey: "bk:" + conv.ID,
	})
	if errors.Is(err, booking.ErrBookingConflict) {
		// Slot got taken; ask for another time instead of failing.
		return false, "That time was just taken. What other day or time works for you?"
	}
	if err != nil {
		log.Warn("booking failed", "error", err, "conversation_id", conv.ID)
		return false, ""
	}

	if err := s.store.SetBooking(ctx, conv.OrgID, conv.ID, booked.ID); err != nil {
		log.Warn("booking id not recorded", "error", err, "booking_id", booked.ID)
	}
	return true, fmt.Sprintf("You're all set for %s. See you then!",
		booked.Start.Format("Monday, January 2 at 3:04 PM"))
}

// dispatchReply fans text out to the tenant's channels. A non-empty
// preferredChannel restricts the send to where the lead is talking.
func (s *Service) dispatchReply(ctx context.Context, tenant *tenancy.Tenant, lead *leads.Lead, conversationID, text, preferredChannel string) []channels.Result {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	log := s.logger.WithOrg(tenant.OrgID)

	var targets []channels.Target
	for _, ch := range tenant.Channels {
		name := string(ch)
		if preferredChannel != "" && name != preferredChannel {
			continue
		}
		if !s.dispatcher.Supports(name) {
			continue
		}
		target := channels.Target{Channel: name}
		switch ch {
		case tenancy.ChannelSMS:
			target.To, target.From = lead.Phone, tenant.FromNumber
		case tenancy.ChannelEmail:
			target.To, target.From = lead.Email, tenant.FromEmail
		case tenancy.ChannelVoice:
			target.To, target.From = lead.Phone, tenant.VoiceNumber
		}
		if target.To == "" || target.From == "" {
			continue
		}
		if suppressed, err := s.tenants.IsSuppressed(ctx, tenant.OrgID, target.To); err != nil {
			log.Warn("suppression check failed", "error", err, "channel", name)
		} else if suppressed {
			log.Info("send suppressed by opt-out", "channel", name, "conversation_id", conversationID)
			continue
		}
		targets = append(targets, target)
	}
	if len(targets) == 0 {
		log.Warn("no reachable channels for reply", "conversation_id", conversationID)
		return nil
	}

	return s.dispatcher.Dispatch(ctx, channels.Request{
		OrgID:          tenant.OrgID,
		ConversationID: conversationID,
		Body:           text,
		Targets:        targets,
	})
}

func (s *Service) reportFailures(ctx context.Context, orgID, leadID, conversationID string, results []channels.Result) {
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		s.emit(ctx, notify.Event{
			Kind:           notify.EventDeliveryFailed,
			OrgID:          orgID,
			LeadID:         leadID,
			ConversationID: conversationID,
			Channel:        r.Channel,
			Detail:         r.Err.Error(),
		})
	}
}

func (s *Service) transition(ctx context.Context, conv *Conversation, to Status) *Conversation {
	from := conv.Status
	next, applied, err := s.store.Transition(ctx, conv.OrgID, conv.ID, to)
	if err != nil {
		s.logger.Error("transition failed", "error", err,
			"conversation_id", conv.ID, "from", from, "to", to)
		return conv
	}
	if applied {
		s.metrics.ObserveTransition(string(from), string(to))
		if next.Status.IsTerminal() {
			s.archiveTerminal(ctx, next)
		}
	}
	return next
}

// archiveTerminal snapshots a finished conversation for the training store.
// Best effort only, a failed archive never affects the pipeline.
func (s *Service) archiveTerminal(ctx context.Context, conv *Conversation) {
	if s.archiver == nil {
		return
	}
	log := s.logger.WithOrg(conv.OrgID)

	lead, err := s.leadsRepo.GetByID(ctx, conv.OrgID, conv.LeadID)
	if err != nil {
		log.Warn("archive skipped, lead unavailable", "error", err, "conversation_id", conv.ID)
		return
	}
	history, err := s.transcript.History(ctx, conv.OrgID, conv.ID, 200)
	if err != nil {
		log.Warn("archive skipped, history unavailable", "error", err, "conversation_id", conv.ID)
		return
	}

	msgs := make([]archive.Message, 0, len(history))
	channel := ""
	for _, m := range history {
		role := "assistant"
		if m.Direction == channels.DirectionInbound {
			role = "user"
		}
		msgs = append(msgs, archive.Message{
			Role:      role,
			Content:   m.Body,
			Channel:   m.Channel,
			Timestamp: m.CreatedAt,
		})
		channel = m.Channel
	}

	s.archiver.Archive(ctx, archive.TrainingArchiveInput{
		ConversationID: conv.ID,
		OrgID:          conv.OrgID,
		Phone:          lead.Phone,
		Messages:       msgs,
		Outcome:        string(conv.Status),
		Source:         lead.Source,
		Channel:        channel,
		Booked:         conv.Status == StatusBooked,
		Escalated:      conv.Status == StatusEscalated,
	})
}

func (s *Service) armFollowUps(ctx context.Context, tenant *tenancy.Tenant, conversationID string, kinds ...string) {
	if s.followups == nil {
		return
	}
	log := s.logger.WithOrg(tenant.OrgID)

	quiet, err := followup.ParseQuietHours(
		tenant.QuietHours.Start, tenant.QuietHours.End, tenant.QuietHours.Timezone)
	if err != nil {
		log.Warn("quiet hours ignored", "error", err)
	}

	for _, kind := range kinds {
		var delay time.Duration
		switch kind {
		case followup.KindReminder:
			delay = tenant.FollowUps.ReminderDelay
		case followup.KindReengage:
			delay = tenant.FollowUps.ReengageDelay
		case followup.KindAbandon:
			delay = tenant.FollowUps.AbandonDelay
		}
		if delay <= 0 {
			continue
		}
		err := s.followups.Arm(ctx, followup.Task{
			OrgID:          tenant.OrgID,
			ConversationID: conversationID,
			Kind:           kind,
			Delay:          delay,
		}, quiet)
		if err != nil {
			// The safety net degrades; the primary reply already went out.
			log.Warn("follow-up not armed", "error", err, "kind", kind,
				"conversation_id", conversationID)
		}
	}
}

func (s *Service) cancelFollowUps(ctx context.Context, conversationID string) {
	if s.followups == nil {
		return
	}
	if err := s.followups.Cancel(ctx, conversationID); err != nil {
		s.logger.Warn("follow-ups not cancelled", "error", err, "conversation_id", conversationID)
	}
}

func (s *Service) emit(ctx context.Context, evt notify.Event) {
	if s.notifier == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now()
	}
	if err := s.notifier.Emit(ctx, evt); err != nil {
		s.logger.Warn("notification not sent", "error", err, "kind", evt.Kind)
	}
}

func (s *Service) lock(conversationID string) func() {
	s.mu.Lock()
	m, ok := s.locks[conversationID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[conversationID] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func toTurns(history []channels.Message) []responder.Turn {
	turns := make([]responder.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, responder.Turn{
			Direction: m.Direction,
			Content:   m.Body,
		})
	}
	return turns
}

func anySent(results []channels.Result) bool {
	for _, r := range results {
		if r.Err == nil {
			return true
		}
	}
	return false
}
