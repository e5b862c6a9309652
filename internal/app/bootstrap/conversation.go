package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/NJ44/Boltcall-sub001/internal/archive"
	"github.com/NJ44/Boltcall-sub001/internal/booking"
	"github.com/NJ44/Boltcall-sub001/internal/channels"
	appconfig "github.com/NJ44/Boltcall-sub001/internal/config"
	"github.com/NJ44/Boltcall-sub001/internal/conversation"
	"github.com/NJ44/Boltcall-sub001/internal/events"
	"github.com/NJ44/Boltcall-sub001/internal/followup"
	"github.com/NJ44/Boltcall-sub001/internal/leads"
	"github.com/NJ44/Boltcall-sub001/internal/notify"
	obsmetrics "github.com/NJ44/Boltcall-sub001/internal/observability/metrics"
	"github.com/NJ44/Boltcall-sub001/internal/tenancy"
	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

// ConversationDeps carries the shared infrastructure the conversation
// pipeline is built on.
type ConversationDeps struct {
	Pool    *pgxpool.Pool
	DB      *sql.DB
	AWS     aws.Config
	Leads   leads.Repository
	Tenants *tenancy.Store

	Registry prometheus.Registerer
	// IngestMetrics is shared with the webhook handler when both live in the
	// same process; registering the collectors twice would panic.
	IngestMetrics *obsmetrics.IngestMetrics
}

// BuildConversationService assembles the full reply pipeline: transcript and
// state stores, channel dispatch, follow-up scheduling, the outbox notifier,
// booking, and the training archiver.
func BuildConversationService(ctx context.Context, cfg *appconfig.Config, deps ConversationDeps, logger *logging.Logger) (*conversation.Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("bootstrap: database is required for the conversation pipeline")
	}
	if deps.Pool == nil {
		return nil, fmt.Errorf("bootstrap: pgx pool is required for the conversation pipeline")
	}
	if deps.Leads == nil {
		return nil, fmt.Errorf("bootstrap: lead repository is required")
	}
	if deps.Tenants == nil {
		return nil, fmt.Errorf("bootstrap: tenant store is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	msgStore := channels.NewStore(deps.DB)
	dispatcher := channels.NewDispatcher(channels.DispatcherConfig{
		Adapters:    buildAdapters(cfg, logger),
		Store:       msgStore,
		Metrics:     obsmetrics.NewDispatchMetrics(deps.Registry),
		Logger:      logger,
		MaxAttempts: cfg.DispatchMaxAttempts,
		BaseDelay:   cfg.DispatchBaseDelay,
	})

	rsp, err := BuildResponder(ctx, cfg, deps.AWS, logger)
	if err != nil {
		return nil, err
	}

	ingestMetrics := deps.IngestMetrics
	if ingestMetrics == nil {
		ingestMetrics = obsmetrics.NewIngestMetrics(deps.Registry)
	}

	svcCfg := conversation.ServiceConfig{
		Store:         conversation.NewStore(deps.DB),
		Transcript:    msgStore,
		Leads:         deps.Leads,
		Tenants:       deps.Tenants,
		Responder:     rsp,
		Dispatcher:    dispatcher,
		Notifier:      notify.NewOutboxSink(events.NewOutboxStore(deps.Pool)),
		Metrics:       obsmetrics.NewConversationMetrics(deps.Registry),
		IngestMetrics: ingestMetrics,
		Logger:        logger,
		HistoryWindow: cfg.HistoryWindow,
	}

	svcCfg.FollowUps = followup.NewScheduler(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}, cfg.FollowUpQueue, logger)

	if cfg.BookingBaseURL != "" {
		svcCfg.Bookings = booking.NewClient(cfg.BookingBaseURL, cfg.BookingAPIKey, logger)
	}

	if archiver := buildTrainingArchiver(cfg, deps.AWS, logger); archiver != nil {
		svcCfg.Archiver = archiver
	}

	return conversation.NewService(svcCfg), nil
}

func buildAdapters(cfg *appconfig.Config, logger *logging.Logger) []channels.Adapter {
	var adapters []channels.Adapter
	if cfg.SMSAPIKey != "" {
		adapters = append(adapters, channels.NewTelnyxSMS(cfg.SMSAPIKey, cfg.SMSProfileID, logger))
	}
	if cfg.SendGridAPIKey != "" {
		adapters = append(adapters, channels.NewSendGridEmail(cfg.SendGridAPIKey, cfg.SendGridFromName, logger))
	}
	if cfg.VoiceAPIKey != "" {
		adapters = append(adapters, channels.NewTelnyxVoice(cfg.VoiceAPIKey, cfg.VoiceAppID, logger))
	}
	if len(adapters) == 0 {
		logger.Warn("no channel providers configured, outbound replies will not be delivered")
	}
	return adapters
}

func buildTrainingArchiver(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) *archive.TrainingArchiver {
	if cfg.TrainingBucket == "" {
		return nil
	}
	store := archive.NewStore(s3.NewFromConfig(awsCfg), cfg.TrainingBucket, logger)

	var classifier *archive.Classifier
	if cfg.ClassifierModelID != "" {
		classifier = archive.NewClassifier(bedrockruntime.NewFromConfig(awsCfg), cfg.ClassifierModelID, logger)
	}
	return archive.NewTrainingArchiver(store, classifier, logger)
}
