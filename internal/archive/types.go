package archive

import "time"

// ConversationRecord is the top-level structure archived to S3 for response
// quality review and model tuning.
type ConversationRecord struct {
	Version         string              `json:"version"` // "1.0"
	ConversationID  string              `json:"conversation_id"`
	OrgID           string              `json:"org_id"`
	PhoneHash       string              `json:"phone_hash"` // sha256 of phone
	ArchivedAt      time.Time           `json:"archived_at"`
	DurationSeconds int                 `json:"duration_seconds"`
	MessageCount    int                 `json:"message_count"`
	Outcome         string              `json:"outcome"`
	Labels          Labels              `json:"labels"`
	Context         ConversationContext `json:"context"`
	Messages        []Message           `json:"messages"`
}

// Labels holds auto-classification results for training data curation.
type Labels struct {
	PromptInjectionDetected bool   `json:"prompt_injection_detected"`
	PromptInjectionType     string `json:"prompt_injection_type"` // none|jailbreak|data_exfil|role_override|social_engineering
	ConversationCategory    string `json:"conversation_category"` // booked|engaged|abandoned|unqualified|escalation|opt_out|prompt_injection|abusive_hostile|test_internal
	Sentiment               string `json:"sentiment"`             // positive|neutral|negative|hostile
	ContainsPII             bool   `json:"contains_pii"`
	AutoLabeled             bool   `json:"auto_labeled"`
	LabelModel              string `json:"label_model"`
	HumanReviewed           bool   `json:"human_reviewed"`
}

// ConversationContext captures pipeline context for training.
type ConversationContext struct {
	Source         string `json:"source,omitempty"`
	Channel        string `json:"channel,omitempty"`
	Booked         bool   `json:"booked"`
	Escalated      bool   `json:"escalated"`
	FallbackUsed   bool   `json:"fallback_used"`
	FollowUpsFired int    `json:"follow_ups_fired,omitempty"`
}

// Message is a single conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Channel   string    `json:"channel,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	ConversationID    string `json:"conversation_id"`
	S3Key             string `json:"s3_key"`
	Category          string `json:"category"`
	InjectionDetected bool   `json:"injection_detected"`
	ArchivedAt        string `json:"archived_at"`
	MessageCount      int    `json:"message_count"`
	Outcome           string `json:"outcome"`
}
