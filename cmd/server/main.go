package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/audit"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/cache"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/config"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/directory"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/evidence"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/handlers"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/notifications"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/reports"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/repositories/postgres"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/services"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/utils"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/validator"
	"github.com/OrbitXSolutions/exam-integrity-service/pkg"
	"github.com/gin-gonic/gin"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := postgres.AutoMigrate(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	repo := postgres.NewRepository(db)

	redisClient, err := pkg.NewRedisClient(cfg)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	publisher, err := cfg.Events.CreateEventPublisher(logger)
	if err != nil {
		logger.Error("failed to create event publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	cacheService := cache.NewRedisCache(redisClient, logger)
	ruleCache := cache.NewRuleCache(cacheService, time.Duration(cfg.RuleCacheTTLSeconds)*time.Second, logger)
	auditSink := audit.NewSink(publisher, logger)
	notifier := notifications.NewRedisChannel(redisClient, cfg.NotificationChannelPrefix, logger)

	var candidateDirectory services.CandidateDirectory
	if cfg.CasdoorEndpoint != "" {
		candidateDirectory = directory.NewCasdoorDirectory(directory.CasdoorConfig{
			Endpoint:     cfg.CasdoorEndpoint,
			ClientID:     cfg.CasdoorClientID,
			ClientSecret: cfg.CasdoorClientSecret,
			Certificate:  cfg.CasdoorCertificate,
			Organization: cfg.CasdoorOrganization,
			Application:  cfg.CasdoorApplication,
		})
	} else {
		logger.Warn("casdoor not configured, using pass-through directory")
		candidateDirectory = &directory.StaticDirectory{}
	}

	v := validator.New()
	serviceManager := services.NewServiceManager(repo, services.ManagerConfig{
		RiskHighThreshold: cfg.RiskHighThreshold,
		HeartbeatTimeout:  time.Duration(cfg.HeartbeatTimeoutSeconds) * time.Second,
		Audit:             auditSink,
		Notifier:          notifier,
		Directory:         candidateDirectory,
		RuleCache:         ruleCache,
	}, logger, v)

	appLogger := utils.NewSlogLogger(logger)
	exporter := reports.NewCaseExporter(repo, evidence.NewStaticResolver(cfg.EvidenceBaseURL))
	handlerManager := handlers.NewHandlerManager(serviceManager, exporter, appLogger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.LoggerMiddleware(appLogger))
	router.Use(handlers.IdentityMiddleware())
	handlerManager.SetupRoutes(router)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Scheduled sweeps: expire overdue attempts and cancel sessions that
	// stopped heartbeating. Remaining time itself is computed on read; the
	// sweep only makes the terminal state durable.
	go runSweeps(ctx, serviceManager, time.Duration(cfg.SweepIntervalSeconds)*time.Second, logger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func runSweeps(ctx context.Context, sm services.ServiceManager, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := sm.AttemptTimer().ExpireOverdue(ctx)
			if err != nil {
				logger.Error("expiry sweep failed", "error", err)
			} else if expired > 0 {
				logger.Info("expiry sweep completed", "expired", expired)
			}

			swept, err := sm.ProctorSession().SweepStaleSessions(ctx)
			if err != nil {
				logger.Error("stale session sweep failed", "error", err)
			} else if swept > 0 {
				logger.Info("stale session sweep completed", "swept", swept)
			}
		}
	}
}
