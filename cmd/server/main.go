package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"mailroom/internal/api"
	"mailroom/internal/cache"
	"mailroom/internal/config"
	"mailroom/internal/db"
	"mailroom/internal/httpserver"
	"mailroom/internal/mailer"
	"mailroom/internal/repository"
	"mailroom/internal/scheduler"
	"mailroom/internal/service"
	"mailroom/pkg/logger"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Init Redis
	rdb, err := cache.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	if err := os.MkdirAll(cfg.Mail.AttachmentDir, 0o755); err != nil {
		log.Fatal("Failed to create attachment directory", zap.Error(err))
	}

	// Init Repositories
	senderRepo := repository.NewSenderAccountRepository(dbConn)
	groupRepo := repository.NewGroupRepository(dbConn)
	deliveryRepo := repository.NewDeliveryRepository(dbConn)
	scheduledRepo := repository.NewScheduledEmailRepository(dbConn)
	templateRepo := repository.NewTemplateRepository(dbConn)
	clientRepo := repository.NewServiceClientRepository(dbConn)
	userRepo := repository.NewUserRepository(dbConn)

	// Init Services
	senderCache := cache.NewSenderCache(rdb, 5*time.Minute)
	transport := mailer.NewSMTPTransport(cfg.SMTP.Host, cfg.SMTP.Port, log)
	resolver := service.NewRecipientResolver(groupRepo, log)
	variables := service.NewVariableResolver(groupRepo, log)
	templates := service.NewTemplateService(templateRepo, log)
	binder := service.NewContentBinder(variables, templates, log)
	delivery := service.NewDeliveryService(transport, deliveryRepo, senderRepo, log, cfg.Mail.TrackingBaseURL)
	dispatch := service.NewDispatchService(senderRepo, senderCache, resolver, binder, delivery, log)
	tracking := service.NewTrackingService(deliveryRepo, log)
	auth := service.NewAuthService(userRepo, cfg.JWT.Secret)

	// Deferred-send scheduler
	sched := scheduler.New(scheduledRepo, dispatch, log).
		WithInterval(time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second)
	sched.Start(ctx)

	// Init Handlers
	authHandler := api.NewAuthHandler(auth)
	sendHandler := api.NewSendHandler(clientRepo, dispatch, templates, scheduledRepo, cfg.Mail.AttachmentDir, log)
	trackingHandler := api.NewTrackingHandler(tracking, log)
	reportHandler := api.NewReportHandler(deliveryRepo)

	// Router
	router := httpserver.NewRouter(authHandler, sendHandler, trackingHandler, reportHandler, cfg.JWT.Secret)

	if err := router.Run(cfg.Server.Port); err != nil {
		log.Fatal("server start failed", zap.Error(err))
	}
}
