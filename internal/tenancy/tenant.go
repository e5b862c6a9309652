// Package tenancy owns per-tenant configuration and request credentials.
package tenancy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mode distinguishes live ingestion from integration testing.
type Mode string

const (
	// ModeLive allows side effects: dedup writes, delivery, scheduling.
	ModeLive Mode = "live"
	// ModeTest short-circuits side effects while still normalizing payloads.
	ModeTest Mode = "test"
)

// Channel identifies a delivery mechanism for reaching a lead.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelVoice Channel = "voice"
)

// QualificationQuestion is one tenant-authored question the conversation must
// answer before a lead counts as qualified. Patterns are lowercase substrings
// matched against AI-extracted answers; the match is deterministic so the
// qualified transition is testable.
type QualificationQuestion struct {
	Key      string   `json:"key"`
	Prompt   string   `json:"prompt"`
	Patterns []string `json:"patterns,omitempty"`
}

// QuietHoursConfig is a daily local-time window during which outbound
// follow-ups are deferred to the window's end.
type QuietHoursConfig struct {
	Start    string `json:"start"` // "21:00"
	End      string `json:"end"`   // "08:00"
	Timezone string `json:"timezone"`
}

// FollowUpConfig controls the delayed safety-net actions per conversation.
type FollowUpConfig struct {
	ReminderDelay time.Duration `json:"reminder_delay"`
	ReengageDelay time.Duration `json:"reengage_delay"`
	AbandonDelay  time.Duration `json:"abandon_delay"`
	// NudgeOnFire enables an AI-generated nudge when reminder/reengage fire;
	// when false the firing only drives abandonment.
	NudgeOnFire bool `json:"nudge_on_fire"`
}

// NotificationPrefs holds tenant alerting preferences.
type NotificationPrefs struct {
	EmailEnabled      bool     `json:"email_enabled"`
	EmailRecipients   []string `json:"email_recipients,omitempty"`
	NotifyOnNewLead   bool     `json:"notify_on_new_lead"`
	NotifyOnBooked    bool     `json:"notify_on_booked"`
	NotifyOnEscalated bool     `json:"notify_on_escalated"`
}

// Tenant is the versioned per-org configuration record. It is fetched per
// request rather than held as process state so concurrent tenants stay
// isolated and config changes are observable.
type Tenant struct {
	OrgID         string `json:"org_id"`
	Name          string `json:"name"`
	WebhookSecret string `json:"webhook_secret"`

	// DefaultRegion is the ISO 3166-1 alpha-2 country assumed when an inbound
	// phone number carries no country code.
	DefaultRegion string `json:"default_region"`

	Channels    []Channel `json:"channels"`
	FromNumber  string    `json:"from_number,omitempty"`
	FromEmail   string    `json:"from_email,omitempty"`
	VoiceNumber string    `json:"voice_number,omitempty"`

	ToneTemplate   string                  `json:"tone_template,omitempty"`
	Questions      []QualificationQuestion `json:"questions,omitempty"`
	FieldOverrides map[string]string       `json:"field_overrides,omitempty"`

	QuietHours    QuietHoursConfig  `json:"quiet_hours"`
	FollowUps     FollowUpConfig    `json:"follow_ups"`
	Notifications NotificationPrefs `json:"notifications"`

	// Version increments on every Set so stale in-flight config is detectable.
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasChannel reports whether the tenant has the given channel configured.
func (t *Tenant) HasChannel(ch Channel) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// DefaultTenant returns a minimal config for orgs that have not been set up.
func DefaultTenant(orgID string) *Tenant {
	return &Tenant{
		OrgID:         orgID,
		Name:          "Boltcall",
		DefaultRegion: "US",
		Channels:      []Channel{ChannelSMS},
		QuietHours: QuietHoursConfig{
			Start:    "21:00",
			End:      "08:00",
			Timezone: "America/New_York",
		},
		FollowUps: FollowUpConfig{
			ReminderDelay: 15 * time.Minute,
			ReengageDelay: 4 * time.Hour,
			AbandonDelay:  48 * time.Hour,
			NudgeOnFire:   true,
		},
		Notifications: NotificationPrefs{
			NotifyOnNewLead:   true,
			NotifyOnBooked:    true,
			NotifyOnEscalated: true,
		},
	}
}

// Store provides persistence for tenant configurations.
type Store struct {
	redis *redis.Client
}

// NewStore creates a new tenant config store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) key(orgID string) string {
	return fmt.Sprintf("tenant:cfg:%s", orgID)
}

func (s *Store) suppressKey(orgID, phone string) string {
	return fmt.Sprintf("tenant:optout:%s:%s", orgID, phone)
}

func (s *Store) routeKey(contact string) string {
	return fmt.Sprintf("tenant:route:%s", contact)
}

// Get retrieves the tenant config. Unknown orgs return nil without error so
// the resolver can reject without disclosing existence.
func (s *Store) Get(ctx context.Context, orgID string) (*Tenant, error) {
	data, err := s.redis.Get(ctx, s.key(orgID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tenancy: get config: %w", err)
	}

	var t Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("tenancy: unmarshal config: %w", err)
	}
	return &t, nil
}

// Set saves the tenant config, bumping its version.
func (s *Store) Set(ctx context.Context, t *Tenant) error {
	t.Version++
	t.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("tenancy: marshal config: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(t.OrgID), data, 0).Err(); err != nil {
		return fmt.Errorf("tenancy: set config: %w", err)
	}

	// Index provisioned contact points so inbound provider webhooks can route
	// by the receiving number or address.
	for _, contact := range []string{t.FromNumber, t.VoiceNumber, t.FromEmail} {
		if contact == "" {
			continue
		}
		if err := s.redis.Set(ctx, s.routeKey(contact), t.OrgID, 0).Err(); err != nil {
			return fmt.Errorf("tenancy: index contact route: %w", err)
		}
	}
	return nil
}

// LookupRoute resolves the org that owns a provisioned phone number or email
// address. Unknown contacts return an empty org without error.
func (s *Store) LookupRoute(ctx context.Context, contact string) (string, error) {
	orgID, err := s.redis.Get(ctx, s.routeKey(contact)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("tenancy: lookup route: %w", err)
	}
	return orgID, nil
}

// Suppress records an opt-out for the phone number (STOP keyword).
func (s *Store) Suppress(ctx context.Context, orgID, phone string) error {
	if err := s.redis.Set(ctx, s.suppressKey(orgID, phone), "1", 0).Err(); err != nil {
		return fmt.Errorf("tenancy: suppress: %w", err)
	}
	return nil
}

// IsSuppressed reports whether outbound contact to the phone is blocked.
func (s *Store) IsSuppressed(ctx context.Context, orgID, phone string) (bool, error) {
	err := s.redis.Get(ctx, s.suppressKey(orgID, phone)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("tenancy: check suppression: %w", err)
	}
	return true, nil
}
