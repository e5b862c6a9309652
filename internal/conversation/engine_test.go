package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NJ44/Boltcall-sub001/internal/archive"
	"github.com/NJ44/Boltcall-sub001/internal/booking"
	"github.com/NJ44/Boltcall-sub001/internal/channels"
	"github.com/NJ44/Boltcall-sub001/internal/followup"
	"github.com/NJ44/Boltcall-sub001/internal/leads"
	"github.com/NJ44/Boltcall-sub001/internal/notify"
	"github.com/NJ44/Boltcall-sub001/internal/responder"
	"github.com/NJ44/Boltcall-sub001/internal/tenancy"
	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

type memoryConvStore struct {
	mu    sync.Mutex
	convs map[string]*Conversation
}

func newMemoryConvStore() *memoryConvStore {
	return &memoryConvStore{convs: make(map[string]*Conversation)}
}

func (s *memoryConvStore) Create(ctx context.Context, id, orgID, leadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[id]; ok {
		return nil
	}
	s.convs[id] = &Conversation{ID: id, OrgID: orgID, LeadID: leadID, Status: StatusNew, CreatedAt: time.Now()}
	return nil
}

func (s *memoryConvStore) Get(ctx context.Context, orgID, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok || c.OrgID != orgID {
		return nil, ErrConversationNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *memoryConvStore) Transition(ctx context.Context, orgID, id string, to Status) (*Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, false, ErrConversationNotFound
	}
	next, applied := Advance(c.Status, to)
	c.Status = next
	clone := *c
	return &clone, applied, nil
}

func (s *memoryConvStore) SetBooking(ctx context.Context, orgID, id, bookingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		c.BookingID = bookingID
	}
	return nil
}

func (s *memoryConvStore) TouchInbound(ctx context.Context, orgID, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		c.LastInboundAt = &at
	}
	return nil
}

func (s *memoryConvStore) TouchOutbound(ctx context.Context, orgID, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		c.LastOutboundAt = &at
	}
	return nil
}

type fakeTranscript struct {
	mu      sync.Mutex
	inbound []channels.Message
}

func (f *fakeTranscript) History(ctx context.Context, orgID, conversationID string, limit int) ([]channels.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]channels.Message(nil), f.inbound...), nil
}

func (f *fakeTranscript) RecordInbound(ctx context.Context, msg *channels.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound = append(f.inbound, *msg)
	return "msg-in", nil
}

type fakeDispatcher struct {
	mu       sync.Mutex
	requests []channels.Request
	fail     map[string]error
}

func (f *fakeDispatcher) Supports(channel string) bool { return channel != channels.ChannelVoice }

func (f *fakeDispatcher) Dispatch(ctx context.Context, req channels.Request) []channels.Result {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	results := make([]channels.Result, 0, len(req.Targets))
	for _, target := range req.Targets {
		r := channels.Result{Channel: target.Channel, MessageID: "m-" + target.Channel, Attempts: 1}
		if err, ok := f.fail[target.Channel]; ok {
			r.Err = err
		}
		results = append(results, r)
	}
	return results
}

func (f *fakeDispatcher) bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.Body)
	}
	return out
}

type fakeFollowUps struct {
	mu        sync.Mutex
	armed     []followup.Task
	cancelled []string
}

func (f *fakeFollowUps) Arm(ctx context.Context, task followup.Task, quiet followup.QuietHours) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = append(f.armed, task)
	return nil
}

func (f *fakeFollowUps) Cancel(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, conversationID)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (f *fakeNotifier) Emit(ctx context.Context, evt notify.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeNotifier) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Kind)
	}
	return out
}

type fakeArchiver struct {
	mu     sync.Mutex
	inputs []archive.TrainingArchiveInput
}

func (f *fakeArchiver) Archive(ctx context.Context, input archive.TrainingArchiveInput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
}

type fakeBookings struct {
	slots      []booking.Slot
	createErr  error
	created    []booking.CreateRequest
	checkCalls int
}

func (f *fakeBookings) CheckAvailability(ctx context.Context, req booking.AvailabilityRequest) ([]booking.Slot, error) {
	f.checkCalls++
	return f.slots, nil
}

func (f *fakeBookings) CreateBooking(ctx context.Context, req booking.CreateRequest) (*booking.Booking, error) {
	f.created = append(f.created, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &booking.Booking{ID: "bkg-1", Start: req.Start}, nil
}

type fakeTenants struct {
	tenant     *tenancy.Tenant
	suppressed map[string]bool
}

func (f *fakeTenants) Get(ctx context.Context, orgID string) (*tenancy.Tenant, error) {
	return f.tenant, nil
}

func (f *fakeTenants) Suppress(ctx context.Context, orgID, recipient string) error {
	if f.suppressed == nil {
		f.suppressed = make(map[string]bool)
	}
	f.suppressed[recipient] = true
	return nil
}

func (f *fakeTenants) IsSuppressed(ctx context.Context, orgID, recipient string) (bool, error) {
	return f.suppressed[recipient], nil
}

type scriptedResponder struct {
	reply responder.Reply
	err   error
	calls int
	last  responder.Request
}

func (s *scriptedResponder) Generate(ctx context.Context, req responder.Request) (responder.Reply, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return responder.Reply{}, s.err
	}
	return s.reply, nil
}

type engineFixture struct {
	svc        *Service
	store      *memoryConvStore
	transcript *fakeTranscript
	dispatcher *fakeDispatcher
	followups  *fakeFollowUps
	notifier   *fakeNotifier
	bookings   *fakeBookings
	archiver   *fakeArchiver
	tenants    *fakeTenants
	responder  *scriptedResponder
	lead       *leads.Lead
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	repo := leads.NewInMemoryRepository()
	lead, err := repo.Create(context.Background(), &leads.CreateLeadRequest{
		OrgID:          "org-1",
		Name:           "Jordan",
		Phone:          "+15555550100",
		Email:          "jordan@example.com",
		Message:        "Interested in a quote",
		Source:         leads.SourceWebForm,
		IdempotencyKey: "web_form:evt-1",
	})
	if err != nil {
		t.Fatalf("seed lead: %v", err)
	}

	tenant := tenancy.DefaultTenant("org-1")
	tenant.FromNumber = "+15555550001"
	tenant.QuietHours = tenancy.QuietHoursConfig{}

	f := &engineFixture{
		store:      newMemoryConvStore(),
		transcript: &fakeTranscript{},
		dispatcher: &fakeDispatcher{},
		followups:  &fakeFollowUps{},
		notifier:   &fakeNotifier{},
		bookings:   &fakeBookings{},
		archiver:   &fakeArchiver{},
		tenants:    &fakeTenants{tenant: tenant},
		responder:  &scriptedResponder{reply: responder.Reply{Text: "Hi Jordan! How can we help?"}},
		lead:       lead,
	}
	f.svc = NewService(ServiceConfig{
		Store:      f.store,
		Transcript: f.transcript,
		Leads:      repo,
		Tenants:    f.tenants,
		Responder:  f.responder,
		Dispatcher: f.dispatcher,
		FollowUps:  f.followups,
		Notifier:   f.notifier,
		Bookings:   f.bookings,
		Archiver:   f.archiver,
		Logger:     logging.Default(),
	})
	return f
}

func (f *engineFixture) start(t *testing.T) *Response {
	t.Helper()
	resp, err := f.svc.ProcessStart(context.Background(), StartRequest{
		OrgID:          "org-1",
		LeadID:         f.lead.ID,
		ConversationID: f.lead.ConversationID,
		EventID:        "evt-1",
		ReceivedAt:     time.Now().Add(-time.Second),
	})
	if err != nil {
		t.Fatalf("ProcessStart: %v", err)
	}
	return resp
}

func (f *engineFixture) inbound(t *testing.T, body string) *Response {
	t.Helper()
	resp, err := f.svc.ProcessInbound(context.Background(), MessageRequest{
		OrgID:          "org-1",
		ConversationID: f.lead.ConversationID,
		Channel:        channels.ChannelSMS,
		From:           "+15555550100",
		Body:           body,
		ReceivedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("ProcessInbound(%q): %v", body, err)
	}
	return resp
}

func TestProcessStart_SendsFirstReplyAndArmsFollowUps(t *testing.T) {
	f := newEngineFixture(t)

	resp := f.start(t)

	if resp.Status != StatusReplied {
		t.Fatalf("status = %s, want replied", resp.Status)
	}
	conv, err := f.store.Get(context.Background(), "org-1", f.lead.ConversationID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conv.Status != StatusReplied {
		t.Fatalf("stored status after first dispatch = %s, want replied", conv.Status)
	}
	if resp.ReplyText != "Hi Jordan! How can we help?" {
		t.Fatalf("reply text = %q", resp.ReplyText)
	}
	if len(f.dispatcher.requests) != 1 {
		t.Fatalf("dispatch calls = %d, want 1", len(f.dispatcher.requests))
	}
	target := f.dispatcher.requests[0].Targets[0]
	if target.Channel != channels.ChannelSMS || target.To != "+15555550100" {
		t.Fatalf("unexpected target %+v", target)
	}

	kinds := make([]string, 0, len(f.followups.armed))
	for _, task := range f.followups.armed {
		kinds = append(kinds, task.Kind)
	}
	if len(kinds) != 2 || kinds[0] != followup.KindReminder || kinds[1] != followup.KindAbandon {
		t.Fatalf("armed follow-ups = %v", kinds)
	}

	if got := f.notifier.kinds(); len(got) != 1 || got[0] != notify.EventLeadCaptured {
		t.Fatalf("notifications = %v", got)
	}
}

func TestProcessStart_FailedDispatchStaysNew(t *testing.T) {
	f := newEngineFixture(t)
	f.dispatcher.fail = map[string]error{channels.ChannelSMS: errors.New("provider 500")}

	resp := f.start(t)
	if resp.Status != StatusNew {
		t.Fatalf("status = %s, want new", resp.Status)
	}

	// A lead that never got a first reply is an outage victim, not an
	// abandoner; the timer leaves it in new for operators to see.
	timerResp, err := f.svc.ProcessTimer(context.Background(), TimerRequest{
		OrgID:          "org-1",
		ConversationID: f.lead.ConversationID,
		Kind:           followup.KindAbandon,
		ArmedAt:        time.Now().Add(-48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("ProcessTimer: %v", err)
	}
	if timerResp.Status != StatusNew {
		t.Fatalf("status after abandon timer = %s, want new", timerResp.Status)
	}
}

func TestProcessStart_ReplayDoesNotResetState(t *testing.T) {
	f := newEngineFixture(t)

	f.start(t)
	f.inbound(t, "Yes, tell me more")

	// Retried start job for the same conversation.
	f.start(t)

	conv, err := f.store.Get(context.Background(), "org-1", f.lead.ConversationID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conv.Status != StatusEngaged {
		t.Fatalf("status after replayed start = %s, want engaged", conv.Status)
	}
}

func TestProcessInbound_AdvancesAndCancelsFollowUps(t *testing.T) {
	f := newEngineFixture(t)
	f.start(t)

	resp := f.inbound(t, "Sounds good")
	if resp.Status != StatusEngaged {
		t.Fatalf("first inbound status = %s, want engaged", resp.Status)
	}

	resp = f.inbound(t, "What are your hours?")
	if resp.Status != StatusEngaged {
		t.Fatalf("second inbound status = %s, want engaged", resp.Status)
	}

	if len(f.followups.cancelled) < 2 {
		t.Fatalf("cancel calls = %d, want at least 2", len(f.followups.cancelled))
	}
	if len(f.transcript.inbound) != 2 {
		t.Fatalf("recorded inbound = %d, want 2", len(f.transcript.inbound))
	}
}

func TestProcessInbound_EscalatesOnHumanRequest(t *testing.T) {
	f := newEngineFixture(t)
	f.start(t)

	resp := f.inbound(t, "Can I talk to a real person please?")
	if resp.Status != StatusEscalated {
		t.Fatalf("status = %s, want escalated", resp.Status)
	}
	if got := f.notifier.kinds(); len(got) != 2 || got[1] != notify.EventEscalated {
		t.Fatalf("notifications = %v", got)
	}

	// Escalated is terminal; later inbound drives nothing.
	resp = f.inbound(t, "hello?")
	if resp.Status != StatusEscalated {
		t.Fatalf("post-terminal status = %s", resp.Status)
	}
	if f.responder.calls != 1 {
		t.Fatalf("responder calls = %d, want 1 (start only; escalation skips generation)", f.responder.calls)
	}
}

func TestProcessInbound_QualifiedBooksFirstSlot(t *testing.T) {
	f := newEngineFixture(t)
	slotStart := time.Date(2026, 9, 3, 15, 0, 0, 0, time.UTC)
	f.bookings.slots = []booking.Slot{{Start: slotStart, End: slotStart.Add(30 * time.Minute)}}
	f.start(t)

	f.responder.reply = responder.Reply{Text: "Great, you're qualified!", Qualified: true}
	resp := f.inbound(t, "Budget is 5k and I need it this month")

	if resp.Status != StatusBooked {
		t.Fatalf("status = %s, want booked", resp.Status)
	}
	if len(f.bookings.created) != 1 {
		t.Fatalf("create booking calls = %d", len(f.bookings.created))
	}
	if key := f.bookings.created[0].IdempotencyKey; key != "bk:"+f.lead.ConversationID {
		t.Fatalf("idempotency key = %q", key)
	}

	conv, _ := f.store.Get(context.Background(), "org-1", f.lead.ConversationID)
	if conv.BookingID != "bkg-1" {
		t.Fatalf("booking id = %q", conv.BookingID)
	}
	if got := f.notifier.kinds(); got[len(got)-1] != notify.EventBooked {
		t.Fatalf("notifications = %v", got)
	}
}

func TestProcessInbound_TerminalStateArchivesTranscript(t *testing.T) {
	f := newEngineFixture(t)
	slotStart := time.Date(2026, 9, 3, 15, 0, 0, 0, time.UTC)
	f.bookings.slots = []booking.Slot{{Start: slotStart, End: slotStart.Add(30 * time.Minute)}}
	f.start(t)

	f.responder.reply = responder.Reply{Text: "Great, you're qualified!", Qualified: true}
	f.inbound(t, "Budget is 5k and I need it this month")

	if len(f.archiver.inputs) != 1 {
		t.Fatalf("archive calls = %d, want 1", len(f.archiver.inputs))
	}
	in := f.archiver.inputs[0]
	if in.Outcome != string(StatusBooked) || !in.Booked || in.Escalated {
		t.Fatalf("archived outcome = %q booked=%v escalated=%v", in.Outcome, in.Booked, in.Escalated)
	}
	if in.OrgID != "org-1" || in.Phone != "+15555550100" {
		t.Fatalf("archived identity = %q / %q", in.OrgID, in.Phone)
	}
	if in.Source != leads.SourceWebForm {
		t.Fatalf("archived source = %q", in.Source)
	}
	if len(in.Messages) != 1 || in.Messages[0].Content != "Budget is 5k and I need it this month" {
		t.Fatalf("archived messages = %+v", in.Messages)
	}
}

func TestProcessInbound_BookingConflictRePrompts(t *testing.T) {
	f := newEngineFixture(t)
	slotStart := time.Date(2026, 9, 3, 15, 0, 0, 0, time.UTC)
	f.bookings.slots = []booking.Slot{{Start: slotStart}}
	f.bookings.createErr = booking.ErrBookingConflict
	f.start(t)

	f.responder.reply = responder.Reply{Text: "You're in!", Qualified: true}
	resp := f.inbound(t, "Ready to book")

	if resp.Status != StatusQualified {
		t.Fatalf("status = %s, want qualified (conflict must not book)", resp.Status)
	}
	if !strings.Contains(resp.ReplyText, "other day or time") {
		t.Fatalf("conflict reply = %q, want re-prompt", resp.ReplyText)
	}
}

func TestProcessInbound_StopSuppressesAndCloses(t *testing.T) {
	f := newEngineFixture(t)
	f.start(t)

	resp := f.inbound(t, "STOP")
	if resp.Status != StatusUnqualified {
		t.Fatalf("status = %s, want unqualified", resp.Status)
	}
	if !f.tenants.suppressed["+15555550100"] {
		t.Fatal("recipient not suppressed")
	}

	// Suppressed recipients get nothing further even on a fresh dispatch.
	before := len(f.dispatcher.requests)
	f.svc.dispatchReply(context.Background(), f.tenants.tenant, f.lead, f.lead.ConversationID, "follow up", "")
	if len(f.dispatcher.requests) != before {
		t.Fatal("dispatched to suppressed recipient")
	}
}

func TestProcessInbound_DeliveryFailureNotifiesOperator(t *testing.T) {
	f := newEngineFixture(t)
	f.dispatcher.fail = map[string]error{channels.ChannelSMS: errors.New("provider 500")}

	f.start(t)

	kinds := f.notifier.kinds()
	var sawFailure bool
	for _, k := range kinds {
		if k == notify.EventDeliveryFailed {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Fatalf("notifications = %v, want delivery failure", kinds)
	}
}

func TestProcessInbound_FallbackReplyOnResponderError(t *testing.T) {
	f := newEngineFixture(t)
	f.start(t)

	f.responder.err = responder.ErrGenerationFailure
	resp := f.inbound(t, "hello")

	if !resp.Fallback {
		t.Fatal("expected fallback reply")
	}
	if resp.ReplyText == "" {
		t.Fatal("fallback reply must carry text")
	}
	if resp.Status != StatusEngaged {
		t.Fatalf("status = %s, want engaged", resp.Status)
	}
}

func TestProcessTimer_AbandonAfterSilence(t *testing.T) {
	f := newEngineFixture(t)
	f.start(t)

	resp, err := f.svc.ProcessTimer(context.Background(), TimerRequest{
		OrgID:          "org-1",
		ConversationID: f.lead.ConversationID,
		Kind:           followup.KindAbandon,
		ArmedAt:        time.Now().Add(-48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("ProcessTimer: %v", err)
	}
	if resp.Status != StatusAbandoned {
		t.Fatalf("status = %s, want abandoned", resp.Status)
	}
}

func TestProcessTimer_StaleAfterReply(t *testing.T) {
	f := newEngineFixture(t)
	f.start(t)
	armedAt := time.Now().Add(-time.Hour)
	f.inbound(t, "Still here")

	resp, err := f.svc.ProcessTimer(context.Background(), TimerRequest{
		OrgID:          "org-1",
		ConversationID: f.lead.ConversationID,
		Kind:           followup.KindReminder,
		ArmedAt:        armedAt,
	})
	if err != nil {
		t.Fatalf("ProcessTimer: %v", err)
	}
	if resp.Status != StatusEngaged {
		t.Fatalf("status = %s, want engaged", resp.Status)
	}
	if resp.ReplyText != "" {
		t.Fatalf("stale timer produced a nudge: %q", resp.ReplyText)
	}
}

func TestProcessTimer_ReminderNudges(t *testing.T) {
	f := newEngineFixture(t)
	f.start(t)
	sentBefore := len(f.dispatcher.bodies())

	f.responder.reply = responder.Reply{Text: "Just checking in, still interested?"}
	resp, err := f.svc.ProcessTimer(context.Background(), TimerRequest{
		OrgID:          "org-1",
		ConversationID: f.lead.ConversationID,
		Kind:           followup.KindReminder,
		ArmedAt:        time.Now().Add(-15 * time.Minute),
	})
	if err != nil {
		t.Fatalf("ProcessTimer: %v", err)
	}
	if resp.ReplyText == "" {
		t.Fatal("reminder produced no nudge")
	}
	if !f.responder.last.Nudge {
		t.Fatal("nudge flag not set on generation request")
	}
	if len(f.dispatcher.bodies()) != sentBefore+1 {
		t.Fatal("nudge was not dispatched")
	}

	last := f.followups.armed[len(f.followups.armed)-1]
	if last.Kind != followup.KindReengage {
		t.Fatalf("re-armed kind = %s, want reengage", last.Kind)
	}
}

func TestHandleFollowUp_MissingConversationIsNotAnError(t *testing.T) {
	f := newEngineFixture(t)

	err := f.svc.HandleFollowUp(context.Background(), followup.Payload{
		OrgID:          "org-1",
		ConversationID: "gone",
		Kind:           followup.KindReminder,
		ArmedAt:        time.Now(),
	})
	if err != nil {
		t.Fatalf("HandleFollowUp: %v", err)
	}
}
