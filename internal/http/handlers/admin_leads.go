package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/NJ44/Boltcall-sub001/internal/leads"
	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

// AdminLeadsHandler serves the operator-facing lead endpoints.
type AdminLeadsHandler struct {
	repo   leads.Repository
	logger *logging.Logger
}

// NewAdminLeadsHandler creates a new admin leads handler.
func NewAdminLeadsHandler(repo leads.Repository, logger *logging.Logger) *AdminLeadsHandler {
	if repo == nil {
		panic("handlers: leads repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminLeadsHandler{repo: repo, logger: logger}
}

// LeadResponse represents a lead in API responses.
type LeadResponse struct {
	ID             string `json:"id"`
	OrgID          string `json:"org_id"`
	Name           string `json:"name,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Email          string `json:"email,omitempty"`
	Message        string `json:"message,omitempty"`
	Source         string `json:"source"`
	ConversationID string `json:"conversation_id,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// LeadsListResponse represents a paginated list of leads.
type LeadsListResponse struct {
	Leads    []LeadResponse `json:"leads"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

func toLeadResponse(lead *leads.Lead) LeadResponse {
	return LeadResponse{
		ID:             lead.ID,
		OrgID:          lead.OrgID,
		Name:           lead.Name,
		Phone:          lead.Phone,
		Email:          lead.Email,
		Message:        lead.Message,
		Source:         lead.Source,
		ConversationID: lead.ConversationID,
		CreatedAt:      lead.CreatedAt.Format(time.RFC3339),
	}
}

// ListLeads returns a paginated list of leads for an organization.
// GET /admin/orgs/{orgID}/leads
func (h *AdminLeadsHandler) ListLeads(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	if orgID == "" {
		http.Error(w, "missing orgID", http.StatusBadRequest)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	list, err := h.repo.ListByOrg(r.Context(), orgID, leads.ListFilter{
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		h.logger.Error("failed to list leads", "error", err, "org_id", orgID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := LeadsListResponse{
		Leads:    make([]LeadResponse, 0, len(list)),
		Page:     page,
		PageSize: pageSize,
	}
	for _, lead := range list {
		resp.Leads = append(resp.Leads, toLeadResponse(lead))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetLead returns a single lead.
// GET /admin/orgs/{orgID}/leads/{leadID}
func (h *AdminLeadsHandler) GetLead(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	leadID := chi.URLParam(r, "leadID")
	if orgID == "" || leadID == "" {
		http.Error(w, "missing orgID or leadID", http.StatusBadRequest)
		return
	}

	lead, err := h.repo.GetByID(r.Context(), orgID, leadID)
	if errors.Is(err, leads.ErrLeadNotFound) {
		http.Error(w, "lead not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to get lead", "error", err, "lead_id", leadID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toLeadResponse(lead))
}
