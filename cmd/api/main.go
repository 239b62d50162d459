package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/plantops/defect-triage/internal/ai"
	httptransport "github.com/plantops/defect-triage/internal/api/http"
	"github.com/plantops/defect-triage/internal/api/http/handlers"
	"github.com/plantops/defect-triage/internal/config"
	"github.com/plantops/defect-triage/internal/events"
	"github.com/plantops/defect-triage/internal/observability"
	"github.com/plantops/defect-triage/internal/persistence"
	"github.com/plantops/defect-triage/internal/repository"
	"github.com/plantops/defect-triage/internal/service"
	"github.com/plantops/defect-triage/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	pool := pg.PoolHandle()
	defectRepo := repository.NewDefectRepository(pool)
	historyRepo := repository.NewHistoryRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	teamRepo := repository.NewTeamRepository(pool)

	generator := ai.NewAnthropicGenerator(cfg.Anthropic)
	embedder := ai.NewVoyageEmbedder(cfg.Voyage)
	index := ai.NewPineconeIndex(cfg.Pinecone)
	retriever := ai.NewRetriever(embedder, index)
	classifier := ai.NewClassifier(generator, retriever, logger, metrics)

	dispatcher := events.NewInMemoryDispatcher()

	defectService := service.NewDefectService(service.DefectDependencies{
		DefectRepo:       defectRepo,
		HistoryRepo:      historyRepo,
		NotificationRepo: notificationRepo,
		TeamRepo:         teamRepo,
		Classifier:       classifier,
		Dispatcher:       dispatcher,
		Cache:            redis,
		Logger:           logger,
	})
	notificationService := service.NewNotificationService(dispatcher, defectRepo, teamRepo, retriever, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	defectsHandler := handlers.NewDefectsHandler(defectService)
	teamsHandler := handlers.NewTeamsHandler(defectService)
	analyticsHandler := handlers.NewAnalyticsHandler(defectService)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:    healthHandler,
		Defects:   defectsHandler,
		Teams:     teamsHandler,
		Analytics: analyticsHandler,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
