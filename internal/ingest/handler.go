package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NJ44/Boltcall-sub001/internal/conversation"
	"github.com/NJ44/Boltcall-sub001/internal/dedup"
	"github.com/NJ44/Boltcall-sub001/internal/leads"
	obsmetrics "github.com/NJ44/Boltcall-sub001/internal/observability/metrics"
	"github.com/NJ44/Boltcall-sub001/internal/tenancy"
	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

const maxBodyBytes = 1 << 20

type credentialResolver interface {
	Resolve(ctx context.Context, clientID, secret string, testPath bool) (tenancy.Grant, error)
}

type dedupStore interface {
	Claim(ctx context.Context, orgID, key string) error
	Release(ctx context.Context, orgID, key string) error
}

type eventRecorder interface {
	Record(ctx context.Context, evt *leads.Event) error
}

type conversationStarter interface {
	EnqueueStart(ctx context.Context, jobID string, req conversation.StartRequest) error
}

type rawArchiver interface {
	Archive(ctx context.Context, evt *leads.Event) error
}

// WebhookHandler accepts lead events on the per-tenant live and test
// endpoints, authenticates them, and hands accepted events to the
// conversation pipeline.
type WebhookHandler struct {
	resolver credentialResolver
	dedup    dedupStore
	leads    leads.Repository
	events   eventRecorder
	starter  conversationStarter
	archiver rawArchiver
	metrics  *obsmetrics.IngestMetrics
	logger   *logging.Logger
}

type WebhookConfig struct {
	Resolver credentialResolver
	Dedup    dedupStore
	Leads    leads.Repository
	Events   eventRecorder
	Starter  conversationStarter
	Archiver rawArchiver
	Metrics  *obsmetrics.IngestMetrics
	Logger   *logging.Logger
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Resolver == nil {
		panic("ingest: credential resolver required")
	}
	if cfg.Dedup == nil {
		panic("ingest: dedup store required")
	}
	if cfg.Leads == nil {
		panic("ingest: lead repository required")
	}
	if cfg.Starter == nil {
		panic("ingest: conversation starter required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{
		resolver: cfg.Resolver,
		dedup:    cfg.Dedup,
		leads:    cfg.Leads,
		events:   cfg.Events,
		starter:  cfg.Starter,
		archiver: cfg.Archiver,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// HandleLive serves POST /hooks/lead.
func (h *WebhookHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, false)
}

// HandleTest serves POST /hooks/lead/test. It runs the full auth and
// normalization path but short-circuits every side effect.
func (h *WebhookHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, true)
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request, testPath bool) {
	start := time.Now()
	q := r.URL.Query()
	source := leadSource(q.Get("source"))

	grant, err := h.resolver.Resolve(r.Context(), q.Get("client_id"), q.Get("secret"), testPath)
	if errors.Is(err, tenancy.ErrBadCredentials) {
		h.metrics.ObserveEvent(source, "unauthorized")
		writeJSONError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if err != nil {
		// A tenant-store outage is not the caller's fault; a 5xx keeps
		// the source platform retrying instead of dropping the lead.
		h.logger.Error("credential resolution unavailable", "error", err, "source", source)
		h.metrics.ObserveEvent(source, "error")
		writeJSONError(w, http.StatusInternalServerError, "server_error")
		return
	}
	tenant := grant.Tenant
	ctx := tenancy.WithMode(tenancy.WithOrgID(r.Context(), tenant.OrgID), grant.Mode)
	log := h.logger.WithOrg(tenant.OrgID)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "unreadable_body")
		return
	}

	ov := Overrides{
		Phone: firstNonEmpty(q.Get("map_phone"), tenant.FieldOverrides["phone"]),
		Name:  firstNonEmpty(q.Get("map_name"), tenant.FieldOverrides["name"]),
		Email: firstNonEmpty(q.Get("map_email"), tenant.FieldOverrides["email"]),
	}

	lead, err := Normalize(body, r.Header.Get("Content-Type"), ov, tenant.DefaultRegion)
	switch {
	case errors.Is(err, ErrInsufficientLeadData):
		log.Warn("lead event has no contact info", "source", source)
		h.metrics.ObserveEvent(source, "insufficient_data")
		writeJSONError(w, http.StatusUnprocessableEntity, "insufficient_lead_data")
		return
	case errors.Is(err, ErrUnparsableBody):
		h.metrics.ObserveEvent(source, "unparsable")
		writeJSONError(w, http.StatusBadRequest, "unparsable_body")
		return
	case err != nil:
		h.metrics.ObserveEvent(source, "error")
		writeJSONError(w, http.StatusInternalServerError, "normalization_failed")
		return
	}

	idemKey := IdempotencyKey(source, lead.Fields)

	if grant.Mode == tenancy.ModeTest {
		log.Info("test-mode lead accepted, side effects skipped",
			"source", source, "idempotency_key", idemKey,
			"name", lead.Name, "phone", lead.Phone, "email", lead.Email)
		h.metrics.ObserveEvent(source, "test")
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"mode":   "test",
			"lead": map[string]string{
				"name":    lead.Name,
				"phone":   lead.Phone,
				"email":   lead.Email,
				"message": lead.Message,
			},
		})
		return
	}

	if err := h.dedup.Claim(ctx, tenant.OrgID, idemKey); err != nil {
		if errors.Is(err, dedup.ErrDuplicateEvent) {
			log.Info("duplicate lead event acknowledged", "source", source, "idempotency_key", idemKey)
			h.metrics.ObserveEvent(source, "duplicate")
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
		log.Error("dedup claim failed", "error", err, "idempotency_key", idemKey)
		writeJSONError(w, http.StatusInternalServerError, "server_error")
		return
	}

	evt := &leads.Event{
		ID:             uuid.NewString(),
		OrgID:          tenant.OrgID,
		Source:         source,
		Payload:        body,
		ContentType:    r.Header.Get("Content-Type"),
		Mode:           string(grant.Mode),
		IdempotencyKey: idemKey,
		ReceivedAt:     start.UTC(),
	}
	if h.events != nil {
		if err := h.events.Record(ctx, evt); err != nil {
			log.Error("raw event store failed", "error", err, "event_id", evt.ID)
			h.releaseClaim(tenant.OrgID, idemKey)
			writeJSONError(w, http.StatusInternalServerError, "server_error")
			return
		}
	}
	if h.archiver != nil {
		if err := h.archiver.Archive(ctx, evt); err != nil {
			// Archival is best effort; the event row is the durable copy.
			log.Warn("raw event archive failed", "event_id", evt.ID, "error", err)
		}
	}

	created, err := h.leads.Create(ctx, &leads.CreateLeadRequest{
		OrgID:          tenant.OrgID,
		Name:           lead.Name,
		Email:          lead.Email,
		Phone:          lead.Phone,
		Message:        lead.Message,
		Source:         source,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		log.Error("lead create failed", "error", err, "idempotency_key", idemKey)
		h.releaseClaim(tenant.OrgID, idemKey)
		writeJSONError(w, http.StatusInternalServerError, "server_error")
		return
	}

	startReq := conversation.StartRequest{
		OrgID:          tenant.OrgID,
		LeadID:         created.ID,
		ConversationID: created.ConversationID,
		EventID:        evt.ID,
		ReceivedAt:     evt.ReceivedAt,
	}
	if err := h.starter.EnqueueStart(ctx, evt.ID, startReq); err != nil {
		log.Error("conversation enqueue failed", "error", err, "lead_id", created.ID)
		h.releaseClaim(tenant.OrgID, idemKey)
		writeJSONError(w, http.StatusInternalServerError, "server_error")
		return
	}

	log.Info("lead event accepted",
		"source", source, "lead_id", created.ID,
		"conversation_id", created.ConversationID,
		"elapsed", time.Since(start))
	h.metrics.ObserveEvent(source, "accepted")
	h.metrics.ObserveWebhookLatency(source, time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "accepted",
		"lead_id":         created.ID,
		"conversation_id": created.ConversationID,
	})
}

// releaseClaim frees the idempotency slot after a failed ingest so the
// source platform's retry is not swallowed as a duplicate.
func (h *WebhookHandler) releaseClaim(orgID, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.dedup.Release(ctx, orgID, key); err != nil {
		h.logger.Warn("dedup release failed", "org_id", orgID, "idempotency_key", key, "error", err)
	}
}

func leadSource(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case leads.SourceAdPlatform, "ads", "ad":
		return leads.SourceAdPlatform
	case leads.SourceCall, "phone", "voice":
		return leads.SourceCall
	default:
		return leads.SourceWebForm
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": reason})
}
