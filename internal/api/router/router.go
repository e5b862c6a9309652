package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/NJ44/Boltcall-sub001/internal/http/handlers"
	httpmiddleware "github.com/NJ44/Boltcall-sub001/internal/http/middleware"
	"github.com/NJ44/Boltcall-sub001/internal/ingest"
	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger *logging.Logger

	// Lead capture webhooks (source platforms).
	Webhooks *ingest.WebhookHandler
	// Provider webhooks carrying lead replies and delivery receipts.
	Inbound *ingest.InboundHandler

	// Admin API handlers (all optional; admin routes mount only when
	// AdminAuthSecret is set).
	AdminLeads         *handlers.AdminLeadsHandler
	AdminConversations *handlers.AdminConversationsHandler
	AdminTenants       *handlers.AdminTenantsHandler
	AdminAuthSecret    string

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Webhook rate limit, requests per second per source IP. Zero disables.
	WebhookRatePerSecond float64
	WebhookBurst         int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", handleHealth)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Webhook endpoints. Rate limited per source IP; every other failure mode
	// surfaces as success or a retryable 5xx so source platforms keep sending.
	r.Group(func(hooks chi.Router) {
		if cfg.WebhookRatePerSecond > 0 {
			burst := cfg.WebhookBurst
			if burst <= 0 {
				burst = 20
			}
			hooks.Use(httpmiddleware.RateLimit(cfg.WebhookRatePerSecond, burst))
		}

		if cfg.Webhooks != nil {
			hooks.Post("/hooks/lead", cfg.Webhooks.HandleLive)
			hooks.Post("/hooks/lead/test", cfg.Webhooks.HandleTest)
		}
		if cfg.Inbound != nil {
			hooks.Route("/webhooks", func(r chi.Router) {
				r.Post("/sms", cfg.Inbound.HandleSMS)
				r.Post("/voice", cfg.Inbound.HandleVoice)
				r.Post("/email", cfg.Inbound.HandleEmail)
			})
		}
	})

	// Admin routes, protected by an HMAC-signed JWT.
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))

			admin.Route("/orgs/{orgID}", func(org chi.Router) {
				if cfg.AdminLeads != nil {
					org.Get("/leads", cfg.AdminLeads.ListLeads)
					org.Get("/leads/{leadID}", cfg.AdminLeads.GetLead)
				}
				if cfg.AdminConversations != nil {
					org.Get("/conversations/{conversationID}", cfg.AdminConversations.GetConversation)
					org.Get("/jobs/{jobID}", cfg.AdminConversations.JobStatus)
				}
				if cfg.AdminTenants != nil {
					org.Get("/config", cfg.AdminTenants.GetConfig)
					org.Put("/config", cfg.AdminTenants.PutConfig)
				}
			})
		})
	}

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
