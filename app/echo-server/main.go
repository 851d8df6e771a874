package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"omnisearch/app/echo-server/router"
	"omnisearch/business/analytics"
	"omnisearch/business/experiment"
	"omnisearch/business/ranking"
	"omnisearch/business/search"
	"omnisearch/business/tracking"
	"omnisearch/internal/middleware"
	psqlRepo "omnisearch/internal/repository/postgres"
	redisRepo "omnisearch/internal/repository/redis"
	weaviateRepo "omnisearch/internal/repository/weaviate"
	"omnisearch/internal/rest"
	"omnisearch/pkg/config"
	"omnisearch/pkg/database"
	redisConn "omnisearch/pkg/database/redis"
	"omnisearch/pkg/logger"
	"omnisearch/pkg/metrics"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

const retentionSweepInterval = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.App.Environment)
	logger.Info("Starting OmniSearch", "version", cfg.App.Version)

	metrics.Init()

	db, err := database.InitPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	logger.Info("Database connected successfully")

	redisClient, err := redisConn.NewRedisClient(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", "error", err)
	}
	defer func() {
		if err := redisConn.CloseRedisClient(redisClient); err != nil {
			logger.Error("Failed to close Redis client", "error", err)
		}
	}()

	weaviateClient, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.Weaviate.Host,
		Scheme: cfg.Weaviate.Scheme,
	})
	if err != nil {
		logger.Fatal("Failed to create Weaviate client", "error", err)
	}

	// Init repo
	eventRepo := psqlRepo.NewEventRepository(db)
	if err := eventRepo.AutoMigrate(); err != nil {
		logger.Fatal("Failed to migrate event tables", "error", err)
	}
	assignmentRepo := redisRepo.NewAssignmentRepository(redisClient)
	candidateRepo := weaviateRepo.NewCandidateRepository(weaviateClient, cfg.Weaviate.ClassName)

	// Init service
	weights := ranking.Weights{
		Vector:   cfg.Ranking.WVector,
		Color:    cfg.Ranking.WColor,
		Category: cfg.Ranking.WCategory,
		Text:     cfg.Ranking.WText,
	}
	if err := weights.Validate(); err != nil {
		logger.Fatal("Invalid ranking weights", "error", err)
	}

	trackingService := tracking.NewService(eventRepo, cfg.Tracking.BufferCapacity)
	analyticsService := analytics.NewService(trackingService, cfg.Tracking.QueryTimeout)
	assignmentService := experiment.NewAssignmentService(assignmentRepo, experiment.Config{
		ExperimentID: cfg.Experiment.ExperimentID,
		Epoch:        cfg.Experiment.Epoch,
		SplitRatio:   cfg.Experiment.SplitRatio,
		Enabled:      cfg.Experiment.Enabled,
	})
	comparator := experiment.NewComparator(analyticsService, cfg.Experiment.MinSampleSize)
	searchService := search.NewService(assignmentService, candidateRepo, trackingService, weights)

	// Init handler
	searchHandler := rest.NewSearchHandler(searchService)
	trackingHandler := rest.NewTrackingHandler(trackingService)
	analyticsHandler := rest.NewAnalyticsHandler(analyticsService, comparator)
	experimentHandler := rest.NewExperimentHandler(assignmentService)

	// Init echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// HTTP error handler
	e.HTTPErrorHandler = middleware.ErrorHandler

	// Global middleware
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"http://localhost:3000", "http://localhost:8080"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Setup routes
	opsOnly := middleware.OpsAuth(cfg.JWT.SecretKey)
	api := e.Group("/api/v1")
	router.SetupSearchRoutes(api, searchHandler)
	router.SetupTrackingRoutes(api, trackingHandler, opsOnly)
	router.SetupAnalyticsRoutes(api, analyticsHandler)
	router.SetupExperimentRoutes(api, experimentHandler)

	// Retention sweep
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go runRetentionSweep(sweepCtx, eventRepo, cfg.Tracking.RetentionDays)

	// Goroutine server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server starting", "address", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}

// runRetentionSweep drops events older than the retention window, once at
// startup and then daily.
func runRetentionSweep(ctx context.Context, repo *psqlRepo.EventRepository, retentionDays int) {
	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()

	for {
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		purged, err := repo.PurgeBefore(ctx, cutoff)
		if err != nil {
			logger.Error("Retention sweep failed", "error", err)
		} else if purged > 0 {
			logger.Info("Retention sweep completed", "purged", purged, "cutoff", cutoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
