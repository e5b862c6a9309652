package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NJ44/Boltcall-sub001/internal/api/router"
	"github.com/NJ44/Boltcall-sub001/internal/app/bootstrap"
	"github.com/NJ44/Boltcall-sub001/internal/archive"
	"github.com/NJ44/Boltcall-sub001/internal/channels"
	appconfig "github.com/NJ44/Boltcall-sub001/internal/config"
	"github.com/NJ44/Boltcall-sub001/internal/conversation"
	"github.com/NJ44/Boltcall-sub001/internal/dedup"
	"github.com/NJ44/Boltcall-sub001/internal/events"
	"github.com/NJ44/Boltcall-sub001/internal/http/handlers"
	"github.com/NJ44/Boltcall-sub001/internal/ingest"
	"github.com/NJ44/Boltcall-sub001/internal/leads"
	obsmetrics "github.com/NJ44/Boltcall-sub001/internal/observability/metrics"
	"github.com/NJ44/Boltcall-sub001/internal/tenancy"
	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

func main() {
	// Local development convenience. In deployed environments the file
	// does not exist and env vars come from the task definition.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting boltcall API server", "env", cfg.Env, "port", cfg.Port)

	ctx := context.Background()

	pool, err := bootstrap.BuildPgxPool(ctx, cfg)
	if err != nil {
		logger.Error("postgres pool init failed", "error", err)
		os.Exit(1)
	}
	if pool == nil {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	defer pool.Close()

	db, err := bootstrap.BuildSQLDB(cfg)
	if err != nil {
		logger.Error("postgres open failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("redis is required for tenant config and dedup")
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	awsCfg, err := bootstrap.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("aws config load failed", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	ingestMetrics := obsmetrics.NewIngestMetrics(registry)

	leadsRepo := leads.NewPostgresRepository(pool)
	eventStore := leads.NewEventStore(pool)
	processedStore := events.NewProcessedStore(pool)
	msgStore := channels.NewStore(db)

	tenantStore := tenancy.NewStore(redisClient)
	resolver := tenancy.NewResolver(tenantStore, logger)
	dedupStore := dedup.NewStore(redisClient, cfg.DedupRetention)

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	jobStore := conversation.NewJobStore(dynamoClient, cfg.IngestJobsTable, logger)

	var rawArchiver *archive.Archiver
	if cfg.RawEventBucket != "" {
		rawArchiver = archive.NewArchiver(s3.NewFromConfig(awsCfg), cfg.RawEventBucket, logger)
	}

	// The conversation queue decouples webhook acceptance from reply
	// generation. In-memory mode runs the pipeline inside this process for
	// local development; otherwise jobs go to SQS for the worker fleet.
	var (
		publisher *conversation.Publisher
		runWorker func(context.Context)
	)
	if cfg.UseMemoryQueue {
		logger.Warn("using in-memory conversation queue, single-process mode")
		queue := conversation.NewMemoryQueue(256)
		publisher = conversation.NewPublisher(queue, logger)

		svc, err := bootstrap.BuildConversationService(ctx, cfg, bootstrap.ConversationDeps{
			Pool:          pool,
			DB:            db,
			AWS:           awsCfg,
			Leads:         leadsRepo,
			Tenants:       tenantStore,
			Registry:      registry,
			IngestMetrics: ingestMetrics,
		}, logger)
		if err != nil {
			logger.Error("conversation service init failed", "error", err)
			os.Exit(1)
		}
		worker := conversation.NewWorker(svc, queue, jobStore, logger,
			conversation.WithWorkerCount(cfg.WorkerCount),
			conversation.WithProviderMessageChecker(msgStore),
		)
		runWorker = worker.Start
	} else {
		queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ReplyQueueURL)
		publisher = conversation.NewPublisher(queue, logger)
	}

	webhooks := ingest.NewWebhookHandler(ingest.WebhookConfig{
		Resolver: resolver,
		Dedup:    dedupStore,
		Leads:    leadsRepo,
		Events:   eventStore,
		Starter:  publisher,
		Archiver: rawArchiver,
		Metrics:  ingestMetrics,
		Logger:   logger,
	})

	inbound := ingest.NewInboundHandler(ingest.InboundConfig{
		Routes:    tenantStore,
		Leads:     leadsRepo,
		Messages:  msgStore,
		Publisher: publisher,
		Processed: processedStore,
		Verifier:  ingest.NewWebhookVerifier(cfg.SMSWebhookSecret, 5*time.Minute),
		Metrics:   ingestMetrics,
		Logger:    logger,
	})

	r := router.New(&router.Config{
		Logger:   logger,
		Webhooks: webhooks,
		Inbound:  inbound,
		AdminLeads: handlers.NewAdminLeadsHandler(leadsRepo, logger),
		AdminConversations: handlers.NewAdminConversationsHandler(
			conversation.NewStore(db), msgStore, jobStore, logger),
		AdminTenants:         handlers.NewAdminTenantsHandler(tenantStore, logger),
		AdminAuthSecret:      cfg.AdminJWTSecret,
		MetricsHandler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		WebhookRatePerSecond: cfg.WebhookRatePerSecond,
		WebhookBurst:         cfg.WebhookBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if runWorker != nil {
		runWorker(workerCtx)
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
