package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/NJ44/Boltcall-sub001/internal/app/bootstrap"
	"github.com/NJ44/Boltcall-sub001/internal/channels"
	appconfig "github.com/NJ44/Boltcall-sub001/internal/config"
	"github.com/NJ44/Boltcall-sub001/internal/conversation"
	"github.com/NJ44/Boltcall-sub001/internal/events"
	"github.com/NJ44/Boltcall-sub001/internal/followup"
	"github.com/NJ44/Boltcall-sub001/internal/leads"
	"github.com/NJ44/Boltcall-sub001/internal/notify"
	"github.com/NJ44/Boltcall-sub001/internal/tenancy"
	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

// The worker runs the three consumers behind the API: the conversation job
// worker (SQS), the follow-up timer worker (asynq), and the outbox deliverer
// that turns recorded milestones into operator notifications.
func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting boltcall worker", "env", cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := bootstrap.BuildPgxPool(ctx, cfg)
	if err != nil || pool == nil {
		logger.Error("postgres pool init failed", "error", err)
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
		logger.Error("redis is required for tenant config and follow-ups")
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	awsCfg, err := bootstrap.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("aws config load failed", "error", err)
		os.Exit(1)
	}

	leadsRepo := leads.NewPostgresRepository(pool)
	tenantStore := tenancy.NewStore(redisClient)

	svc, err := bootstrap.BuildConversationService(ctx, cfg, bootstrap.ConversationDeps{
		Pool:    pool,
		DB:      db,
		AWS:     awsCfg,
		Leads:   leadsRepo,
		Tenants: tenantStore,
	}, logger)
	if err != nil {
		logger.Error("conversation service init failed", "error", err)
		os.Exit(1)
	}

	// Conversation jobs from SQS.
	queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ReplyQueueURL)
	jobStore := conversation.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.IngestJobsTable, logger)
	convWorker := conversation.NewWorker(svc, queue, jobStore, logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithProviderMessageChecker(channels.NewStore(db)),
	)
	convWorker.Start(ctx)

	// Follow-up timers from Redis.
	followupWorker := followup.NewWorker(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}, cfg.FollowUpQueue, cfg.WorkerCount, svc, logger)
	if err := followupWorker.Start(); err != nil {
		logger.Error("follow-up worker start failed", "error", err)
		os.Exit(1)
	}

	// Outbox milestones to operator email.
	notifyService := notify.NewService(buildEmailSender(cfg, awsCfg, logger), tenantStore, leadsRepo, logger)
	deliverer := events.NewDeliverer(
		events.NewOutboxStore(pool),
		notify.NewHandler(notifyService, logger),
		logger,
	)
	go deliverer.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down worker...")
	cancel()
	followupWorker.Shutdown()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		convWorker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("worker stopped")
	case <-doneCtx.Done():
		logger.Error("worker shutdown timed out", "error", doneCtx.Err())
	}
}

func buildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.NotifyEmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.NotifyFromEmail,
			FromName:  cfg.NotifyFromName,
		}, logger); sender != nil {
			return sender
		}
	case "ses":
		if sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.NotifyFromEmail,
			FromName:  cfg.NotifyFromName,
		}, logger); sender != nil {
			return sender
		}
	}
	logger.Warn("no email provider configured, notifications are log-only",
		"provider", cfg.NotifyEmailProvider)
	return notify.NewStubEmailSender(logger)
}
