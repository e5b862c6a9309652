package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/NJ44/Boltcall-sub001/internal/http/middleware"
	"github.com/NJ44/Boltcall-sub001/internal/tenancy"
	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

type tenantConfigStore interface {
	Get(ctx context.Context, orgID string) (*tenancy.Tenant, error)
	Set(ctx context.Context, t *tenancy.Tenant) error
}

// AdminTenantsHandler manages per-org configuration.
type AdminTenantsHandler struct {
	store  tenantConfigStore
	logger *logging.Logger
}

// NewAdminTenantsHandler creates a new tenant config handler.
func NewAdminTenantsHandler(store tenantConfigStore, logger *logging.Logger) *AdminTenantsHandler {
	if store == nil {
		panic("handlers: tenant store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminTenantsHandler{store: store, logger: logger}
}

// GetConfig returns the tenant configuration.
// GET /admin/orgs/{orgID}/config
func (h *AdminTenantsHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	if orgID == "" {
		http.Error(w, "missing orgID", http.StatusBadRequest)
		return
	}

	tenant, err := h.store.Get(r.Context(), orgID)
	if err != nil {
		h.logger.Error("failed to get tenant config", "error", err, "org_id", orgID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if tenant == nil {
		http.Error(w, "tenant not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tenant)
}

// PutConfig replaces the tenant configuration. The org id in the path wins
// over any org id in the body, and the version is bumped server-side.
// PUT /admin/orgs/{orgID}/config
func (h *AdminTenantsHandler) PutConfig(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	if orgID == "" {
		http.Error(w, "missing orgID", http.StatusBadRequest)
		return
	}

	var tenant tenancy.Tenant
	if err := json.NewDecoder(r.Body).Decode(&tenant); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	tenant.OrgID = orgID
	if tenant.DefaultRegion == "" {
		tenant.DefaultRegion = "US"
	}

	if err := h.store.Set(r.Context(), &tenant); err != nil {
		h.logger.Error("failed to save tenant config", "error", err, "org_id", orgID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.logger.Info("tenant config updated", "org_id", orgID, "admin", middleware.AdminSubject(r.Context()))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tenant)
}
