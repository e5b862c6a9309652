package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Ingestion pipeline
	DedupRetention   time.Duration
	GenerateDeadline time.Duration
	HistoryWindow    int
	UseMemoryQueue   bool
	WorkerCount      int

	// Responder (AI gateway)
	ResponderURL        string
	ResponderAPIKey     string
	ResponderBreakerTrips    int
	ResponderBreakerCooldown time.Duration
	BedrockModelID      string
	GeminiAPIKey        string
	GeminiModelID       string

	// Channels
	SMSAPIKey        string
	SMSProfileID     string
	SMSWebhookSecret string
	VoiceAPIKey      string
	VoiceAppID       string
	SendGridAPIKey   string
	SendGridFromEmail string
	SendGridFromName  string
	DispatchMaxAttempts int
	DispatchBaseDelay   time.Duration

	// Booking
	BookingBaseURL string
	BookingAPIKey  string

	// Follow-ups
	FollowUpQueue    string
	ReminderDelay    time.Duration
	ReengageDelay    time.Duration
	AbandonDelay     time.Duration

	// Notifications
	NotifyEmailProvider string
	NotifyFromEmail     string
	NotifyFromName      string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	ReplyQueueURL       string
	IngestJobsTable     string
	RawEventBucket      string

	// Training archive
	TrainingBucket    string
	ClassifierModelID string

	AdminJWTSecret string

	CORSAllowedOrigins   []string
	WebhookRatePerSecond float64
	WebhookBurst         int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		DedupRetention:   getEnvAsDuration("DEDUP_RETENTION", 60*24*time.Hour),
		GenerateDeadline: getEnvAsDuration("GENERATE_DEADLINE", 2500*time.Millisecond),
		HistoryWindow:    getEnvAsInt("HISTORY_WINDOW", 12),
		UseMemoryQueue:   getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:      getEnvAsInt("WORKER_COUNT", 2),

		ResponderURL:             getEnv("RESPONDER_URL", ""),
		ResponderAPIKey:          getEnv("RESPONDER_API_KEY", ""),
		ResponderBreakerTrips:    getEnvAsInt("RESPONDER_BREAKER_TRIPS", 3),
		ResponderBreakerCooldown: getEnvAsDuration("RESPONDER_BREAKER_COOLDOWN", 30*time.Second),
		BedrockModelID:           getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:             getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:            getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		SMSAPIKey:           getEnv("SMS_API_KEY", ""),
		SMSProfileID:        getEnv("SMS_MESSAGING_PROFILE_ID", ""),
		SMSWebhookSecret:    getEnv("SMS_WEBHOOK_SECRET", ""),
		VoiceAPIKey:         getEnv("VOICE_API_KEY", ""),
		VoiceAppID:          getEnv("VOICE_APP_ID", ""),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:   getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:    getEnv("SENDGRID_FROM_NAME", "Boltcall"),
		DispatchMaxAttempts: getEnvAsInt("DISPATCH_MAX_ATTEMPTS", 3),
		DispatchBaseDelay:   getEnvAsDuration("DISPATCH_BASE_DELAY", 250*time.Millisecond),

		BookingBaseURL: getEnv("BOOKING_BASE_URL", ""),
		BookingAPIKey:  getEnv("BOOKING_API_KEY", ""),

		FollowUpQueue: getEnv("FOLLOWUP_QUEUE", "followups"),
		ReminderDelay: getEnvAsDuration("FOLLOWUP_REMINDER_DELAY", 15*time.Minute),
		ReengageDelay: getEnvAsDuration("FOLLOWUP_REENGAGE_DELAY", 4*time.Hour),
		AbandonDelay:  getEnvAsDuration("FOLLOWUP_ABANDON_DELAY", 48*time.Hour),

		NotifyEmailProvider: strings.ToLower(strings.TrimSpace(getEnv("NOTIFY_EMAIL_PROVIDER", "ses"))),
		NotifyFromEmail:     getEnv("NOTIFY_FROM_EMAIL", ""),
		NotifyFromName:      getEnv("NOTIFY_FROM_NAME", "Boltcall"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ReplyQueueURL:       getEnv("REPLY_QUEUE_URL", ""),
		IngestJobsTable:     getEnv("INGEST_JOBS_TABLE", "ingest_jobs"),
		RawEventBucket:      getEnv("RAW_EVENT_BUCKET", ""),

		TrainingBucket:    getEnv("TRAINING_BUCKET", ""),
		ClassifierModelID: getEnv("CLASSIFIER_MODEL_ID", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		CORSAllowedOrigins:   getEnvAsSlice("CORS_ALLOWED_ORIGINS", nil),
		WebhookRatePerSecond: getEnvAsFloat("WEBHOOK_RATE_PER_SECOND", 10),
		WebhookBurst:         getEnvAsInt("WEBHOOK_BURST", 20),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
