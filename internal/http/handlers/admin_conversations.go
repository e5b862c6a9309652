package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/NJ44/Boltcall-sub001/internal/channels"
	"github.com/NJ44/Boltcall-sub001/internal/conversation"
	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

type conversationGetter interface {
	Get(ctx context.Context, orgID, conversationID string) (*conversation.Conversation, error)
}

type transcriptSource interface {
	History(ctx context.Context, orgID, conversationID string, limit int) ([]channels.Message, error)
}

type jobGetter interface {
	GetJob(ctx context.Context, jobID string) (*conversation.JobRecord, error)
}

// AdminConversationsHandler serves conversation detail and job status.
type AdminConversationsHandler struct {
	convs       conversationGetter
	transcripts transcriptSource
	jobs        jobGetter
	logger      *logging.Logger
}

// NewAdminConversationsHandler creates a new admin conversations handler.
func NewAdminConversationsHandler(convs conversationGetter, transcripts transcriptSource, jobs jobGetter, logger *logging.Logger) *AdminConversationsHandler {
	if convs == nil || transcripts == nil {
		panic("handlers: conversation and transcript stores required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{
		convs:       convs,
		transcripts: transcripts,
		jobs:        jobs,
		logger:      logger,
	}
}

// TranscriptMessage is one transcript row in API responses.
type TranscriptMessage struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
	Channel   string `json:"channel"`
	Body      string `json:"body"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// ConversationDetailResponse is the conversation plus its transcript.
type ConversationDetailResponse struct {
	ID             string              `json:"id"`
	OrgID          string              `json:"org_id"`
	LeadID         string              `json:"lead_id"`
	Status         string              `json:"status"`
	BookingID      string              `json:"booking_id,omitempty"`
	LastInboundAt  *string             `json:"last_inbound_at,omitempty"`
	LastOutboundAt *string             `json:"last_outbound_at,omitempty"`
	CreatedAt      string              `json:"created_at"`
	Transcript     []TranscriptMessage `json:"transcript"`
}

// GetConversation returns a conversation with its transcript.
// GET /admin/orgs/{orgID}/conversations/{conversationID}
func (h *AdminConversationsHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	conversationID := chi.URLParam(r, "conversationID")
	if orgID == "" || conversationID == "" {
		http.Error(w, "missing orgID or conversationID", http.StatusBadRequest)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	conv, err := h.convs.Get(r.Context(), orgID, conversationID)
	if errors.Is(err, conversation.ErrConversationNotFound) {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to get conversation", "error", err, "conversation_id", conversationID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	history, err := h.transcripts.History(r.Context(), orgID, conversationID, limit)
	if err != nil {
		h.logger.Error("failed to load transcript", "error", err, "conversation_id", conversationID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := ConversationDetailResponse{
		ID:         conv.ID,
		OrgID:      conv.OrgID,
		LeadID:     conv.LeadID,
		Status:     string(conv.Status),
		BookingID:  conv.BookingID,
		CreatedAt:  conv.CreatedAt.Format(time.RFC3339),
		Transcript: make([]TranscriptMessage, 0, len(history)),
	}
	if conv.LastInboundAt != nil {
		s := conv.LastInboundAt.Format(time.RFC3339)
		resp.LastInboundAt = &s
	}
	if conv.LastOutboundAt != nil {
		s := conv.LastOutboundAt.Format(time.RFC3339)
		resp.LastOutboundAt = &s
	}
	for _, msg := range history {
		resp.Transcript = append(resp.Transcript, TranscriptMessage{
			ID:        msg.ID,
			Direction: msg.Direction,
			Channel:   msg.Channel,
			Body:      msg.Body,
			Status:    msg.Status,
			CreatedAt: msg.CreatedAt.Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// JobStatus reports the processing state of an enqueued conversation job.
// GET /admin/orgs/{orgID}/jobs/{jobID}
func (h *AdminConversationsHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "job tracking disabled", http.StatusNotFound)
		return
	}
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		http.Error(w, "missing jobID", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		h.logger.Error("failed to get job", "error", err, "job_id", jobID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if orgID := chi.URLParam(r, "orgID"); orgID != "" && job.OrgID != orgID {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}
