package ingest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/NJ44/Boltcall-sub001/internal/channels"
	"github.com/NJ44/Boltcall-sub001/internal/conversation"
	"github.com/NJ44/Boltcall-sub001/internal/leads"
	obsmetrics "github.com/NJ44/Boltcall-sub001/internal/observability/metrics"
	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

type routeResolver interface {
	LookupRoute(ctx context.Context, contact string) (string, error)
}

type conversationPublisher interface {
	EnqueueInbound(ctx context.Context, jobID string, req conversation.MessageRequest) error
	EnqueueTimer(ctx context.Context, jobID string, req conversation.TimerRequest) error
}

type transcriptWriter interface {
	RecordInbound(ctx context.Context, msg *channels.Message) (string, error)
	ResolveByProviderID(ctx context.Context, providerMessageID string) (*channels.Message, error)
	MarkFailed(ctx context.Context, id, reason string, attempts int) error
}

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// WebhookVerifier checks a provider's HMAC webhook signature.
type WebhookVerifier struct {
	secret  string
	maxSkew time.Duration
}

// NewWebhookVerifier builds a verifier. An empty secret disables verification.
func NewWebhookVerifier(secret string, maxSkew time.Duration) *WebhookVerifier {
	if maxSkew <= 0 {
		maxSkew = 5 * time.Minute
	}
	return &WebhookVerifier{secret: secret, maxSkew: maxSkew}
}

// Verify checks the timestamped HMAC-SHA256 signature over the raw body.
func (v *WebhookVerifier) Verify(timestamp, signature string, payload []byte) error {
	if v == nil || v.secret == "" {
		return nil
	}
	ts := strings.TrimSpace(timestamp)
	if ts == "" {
		return errors.New("ingest: missing signature timestamp")
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("ingest: invalid signature timestamp: %w", err)
	}
	sentAt := time.Unix(sec, 0)
	if diff := time.Since(sentAt); diff > v.maxSkew || diff < -v.maxSkew {
		return fmt.Errorf("ingest: signature timestamp skew %s exceeds limit", diff)
	}
	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(ts + "." + string(payload)))
	expected := hex.EncodeToString(mac.Sum(nil))
	actual := strings.ToLower(strings.TrimSpace(signature))
	if actual == "" {
		return errors.New("ingest: missing signature header")
	}
	if !hmac.Equal([]byte(expected), []byte(actual)) {
		return errors.New("ingest: signature mismatch")
	}
	return nil
}

// InboundHandler accepts channel provider webhooks: inbound SMS and voice
// events from Telnyx, inbound email from the SendGrid parse hook, and
// delivery receipts. Accepted replies are routed to their conversation by the
// receiving contact point.
type InboundHandler struct {
	routes    routeResolver
	leadsRepo leads.Repository
	messages  transcriptWriter
	publisher conversationPublisher
	processed processedTracker
	verifier  *WebhookVerifier
	metrics   *obsmetrics.IngestMetrics
	logger    *logging.Logger
}

type InboundConfig struct {
	Routes    routeResolver
	Leads     leads.Repository
	Messages  transcriptWriter
	Publisher conversationPublisher
	Processed processedTracker
	Verifier  *WebhookVerifier
	Metrics   *obsmetrics.IngestMetrics
	Logger    *logging.Logger
}

func NewInboundHandler(cfg InboundConfig) *InboundHandler {
	if cfg.Routes == nil {
		panic("ingest: route resolver required")
	}
	if cfg.Leads == nil {
		panic("ingest: lead repository required")
	}
	if cfg.Messages == nil {
		panic("ingest: message store required")
	}
	if cfg.Publisher == nil {
		panic("ingest: conversation publisher required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &InboundHandler{
		routes:    cfg.Routes,
		leadsRepo: cfg.Leads,
		messages:  cfg.Messages,
		publisher: cfg.Publisher,
		processed: cfg.Processed,
		verifier:  cfg.Verifier,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

// HandleSMS serves POST /webhooks/sms (Telnyx message events).
func (h *InboundHandler) HandleSMS(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.verifier.Verify(r.Header.Get("Telnyx-Timestamp"), r.Header.Get("Telnyx-Signature"), body); err != nil {
		h.logger.Warn("invalid sms webhook signature", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	evt, err := parseProviderEvent(body)
	if err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if h.replayed(r.Context(), w, "telnyx", evt.ID) {
		return
	}

	switch evt.EventType {
	case "message.received":
		var payload smsPayload
		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		err = h.acceptReply(r.Context(), inboundReply{
			Channel:           channels.ChannelSMS,
			From:              NormalizePhone(payload.FromNumber(), "US"),
			To:                NormalizePhone(payload.ToNumber(), "US"),
			Body:              payload.Text,
			ProviderMessageID: payload.ID,
			ReceivedAt:        evt.OccurredAt,
		})
	case "message.delivery_status":
		err = h.applyReceipt(r.Context(), evt)
	default:
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.finish(r.Context(), w, "telnyx", evt.ID, evt.EventType, err)
}

// HandleVoice serves POST /webhooks/voice (Telnyx call events). Completed
// call transcriptions feed the conversation like any other reply.
func (h *InboundHandler) HandleVoice(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.verifier.Verify(r.Header.Get("Telnyx-Timestamp"), r.Header.Get("Telnyx-Signature"), body); err != nil {
		h.logger.Warn("invalid voice webhook signature", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	evt, err := parseProviderEvent(body)
	if err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if h.replayed(r.Context(), w, "telnyx", evt.ID) {
		return
	}

	switch evt.EventType {
	case "call.transcription":
		var payload voicePayload
		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(payload.TranscriptionText()) == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		err = h.acceptReply(r.Context(), inboundReply{
			Channel:           channels.ChannelVoice,
			From:              NormalizePhone(payload.From, "US"),
			To:                NormalizePhone(payload.To, "US"),
			Body:              payload.TranscriptionText(),
			ProviderMessageID: payload.CallControlID,
			ReceivedAt:        evt.OccurredAt,
		})
	case "call.hangup", "call.answered", "call.initiated":
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.finish(r.Context(), w, "telnyx", evt.ID, evt.EventType, err)
}

// HandleEmail serves POST /webhooks/email (SendGrid inbound parse). The parse
// hook posts multipart form data with from, to, subject, and text fields.
func (h *InboundHandler) HandleEmail(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
	}

	from := extractEmailAddress(r.FormValue("from"))
	to := extractEmailAddress(r.FormValue("to"))
	text := strings.TrimSpace(r.FormValue("text"))
	messageID := strings.Trim(r.FormValue("message_id"), "<> ")
	if messageID == "" {
		messageID = r.FormValue("smtp_id")
	}
	if from == "" || to == "" || text == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if messageID != "" && h.replayed(r.Context(), w, "sendgrid", messageID) {
		return
	}

	err := h.acceptReply(r.Context(), inboundReply{
		Channel:           channels.ChannelEmail,
		From:              strings.ToLower(from),
		To:                strings.ToLower(to),
		Body:              firstEmailParagraphs(text),
		ProviderMessageID: messageID,
		ReceivedAt:        time.Now().UTC(),
	})
	h.finish(r.Context(), w, "sendgrid", messageID, "email.received", err)
}

type inboundReply struct {
	Channel           string
	From              string
	To                string
	Body              string
	ProviderMessageID string
	ReceivedAt        time.Time
}

var errUnknownRoute = errors.New("ingest: no tenant owns the receiving contact")

// acceptReply routes a provider reply to its conversation: resolve the org by
// the receiving contact, find the lead by the sender, persist the transcript
// row, and enqueue the conversation job.
func (h *InboundHandler) acceptReply(ctx context.Context, reply inboundReply) error {
	if reply.From == "" || reply.To == "" || strings.TrimSpace(reply.Body) == "" {
		return errors.New("ingest: reply missing sender, recipient, or body")
	}

	orgID, err := h.routes.LookupRoute(ctx, reply.To)
	if err != nil {
		return err
	}
	if orgID == "" {
		return fmt.Errorf("%w: %s", errUnknownRoute, reply.To)
	}
	log := h.logger.WithOrg(orgID)

	lead, err := h.leadsRepo.FindByContact(ctx, orgID, reply.From)
	if errors.Is(err, leads.ErrLeadNotFound) {
		// A reply from a number we never messaged; nothing to attach it to.
		log.Info("inbound reply from unknown contact dropped", "channel", reply.Channel)
		return nil
	}
	if err != nil {
		return fmt.Errorf("ingest: lead lookup: %w", err)
	}

	if _, err := h.messages.RecordInbound(ctx, &channels.Message{
		OrgID:             orgID,
		ConversationID:    lead.ConversationID,
		Channel:           reply.Channel,
		Recipient:         reply.From,
		Body:              reply.Body,
		ProviderMessageID: reply.ProviderMessageID,
	}); err != nil {
		return err
	}

	jobID := fmt.Sprintf("%s:%s", reply.Channel, reply.ProviderMessageID)
	req := conversation.MessageRequest{
		OrgID:             orgID,
		ConversationID:    lead.ConversationID,
		Channel:           reply.Channel,
		From:              reply.From,
		Body:              reply.Body,
		ProviderMessageID: reply.ProviderMessageID,
		ReceivedAt:        reply.ReceivedAt,
	}
	publishCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := h.publisher.EnqueueInbound(publishCtx, jobID, req); err != nil {
		return fmt.Errorf("ingest: enqueue inbound: %w", err)
	}

	log.Info("inbound reply accepted",
		"channel", reply.Channel, "conversation_id", lead.ConversationID,
		"provider_message_id", reply.ProviderMessageID)
	return nil
}

// applyReceipt reconciles a delivery receipt against the outbound message row.
func (h *InboundHandler) applyReceipt(ctx context.Context, evt providerEvent) error {
	var payload receiptPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return fmt.Errorf("ingest: decode receipt: %w", err)
	}
	providerID := firstNonEmpty(payload.MessageID, payload.ID)
	if providerID == "" {
		return nil
	}

	status := strings.ToLower(payload.Status)
	if status != "undelivered" && status != "failed" {
		return nil
	}

	msg, err := h.messages.ResolveByProviderID(ctx, providerID)
	if errors.Is(err, channels.ErrMessageNotFound) {
		h.logger.Warn("receipt for unknown message", "provider_message_id", providerID)
		return nil
	}
	if err != nil {
		return err
	}
	if err := h.messages.MarkFailed(ctx, msg.ID, "provider receipt: "+status, msg.Attempts); err != nil {
		return err
	}
	h.logger.WithOrg(msg.OrgID).Warn("delivery receipt reported failure",
		"channel", msg.Channel, "conversation_id", msg.ConversationID, "status", status)
	return nil
}

// replayed short-circuits events already handled, acknowledging them again.
func (h *InboundHandler) replayed(ctx context.Context, w http.ResponseWriter, provider, eventID string) bool {
	if h.processed == nil || eventID == "" {
		return false
	}
	done, err := h.processed.AlreadyProcessed(ctx, provider, eventID)
	if err != nil {
		h.logger.Error("processed lookup failed", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return true
	}
	if done {
		w.WriteHeader(http.StatusOK)
		return true
	}
	return false
}

func (h *InboundHandler) finish(ctx context.Context, w http.ResponseWriter, provider, eventID, eventType string, err error) {
	if err != nil {
		if errors.Is(err, errUnknownRoute) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("inbound webhook handling failed", "error", err, "event_type", eventType)
		http.Error(w, "processing error", http.StatusInternalServerError)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveEvent(eventType, "accepted")
	}
	if h.processed != nil && eventID != "" {
		if _, err := h.processed.MarkProcessed(ctx, provider, eventID); err != nil {
			h.logger.Error("failed to mark event processed", "error", err, "event_id", eventID)
		}
	}
	w.WriteHeader(http.StatusOK)
}

type providerEvent struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// parseProviderEvent accepts both the enveloped event format and a bare
// message record.
func parseProviderEvent(body []byte) (providerEvent, error) {
	var wrapper struct {
		Data providerEvent `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Data.ID != "" {
		return wrapper.Data, nil
	}

	var record struct {
		ID         string    `json:"id"`
		RecordType string    `json:"record_type"`
		ReceivedAt time.Time `json:"received_at"`
		Direction  string    `json:"direction"`
	}
	if err := json.Unmarshal(body, &record); err != nil {
		return providerEvent{}, err
	}

	eventType := ""
	if record.RecordType == "message" {
		if record.Direction == "inbound" {
			eventType = "message.received"
		} else {
			eventType = "message.delivery_status"
		}
	}
	return providerEvent{
		ID:         record.ID,
		EventType:  eventType,
		OccurredAt: record.ReceivedAt,
		Payload:    body,
	}, nil
}

type smsPayload struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	From struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"from"`
	To []struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"to"`
	FromNumberRaw string `json:"from_number"`
	ToNumberRaw   string `json:"to_number"`
}

func (p smsPayload) FromNumber() string {
	if v := strings.TrimSpace(p.From.PhoneNumber); v != "" {
		return v
	}
	return strings.TrimSpace(p.FromNumberRaw)
}

func (p smsPayload) ToNumber() string {
	if len(p.To) > 0 {
		if v := strings.TrimSpace(p.To[0].PhoneNumber); v != "" {
			return v
		}
	}
	return strings.TrimSpace(p.ToNumberRaw)
}

type receiptPayload struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

type voicePayload struct {
	CallControlID     string `json:"call_control_id"`
	From              string `json:"from"`
	To                string `json:"to"`
	ClientState       string `json:"client_state"`
	TranscriptionData struct {
		Transcript string `json:"transcript"`
	} `json:"transcription_data"`
}

func (p voicePayload) TranscriptionText() string {
	return p.TranscriptionData.Transcript
}

// DecodeClientState unpacks the base64 JSON state attached when the call was
// placed.
func DecodeClientState(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("ingest: decode client state: %w", err)
	}
	var state map[string]string
	if err := json.Unmarshal(decoded, &state); err != nil {
		return nil, fmt.Errorf("ingest: unmarshal client state: %w", err)
	}
	return state, nil
}

// extractEmailAddress pulls the bare address out of "Name <addr@host>".
func extractEmailAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if start := strings.LastIndex(raw, "<"); start >= 0 {
		if end := strings.Index(raw[start:], ">"); end > 0 {
			return strings.TrimSpace(raw[start+1 : start+end])
		}
	}
	return raw
}

// firstEmailParagraphs strips quoted reply history from an email body.
func firstEmailParagraphs(text string) string {
	lines := strings.Split(text, "\n")
	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") {
			break
		}
		if strings.HasPrefix(trimmed, "On ") && strings.HasSuffix(trimmed, "wrote:") {
			break
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
