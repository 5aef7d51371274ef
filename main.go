package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AnTengye/contractrisk/analysis"
	"github.com/AnTengye/contractrisk/config"
	"github.com/AnTengye/contractrisk/extract"
	"github.com/AnTengye/contractrisk/handler"
	"github.com/AnTengye/contractrisk/middleware"
	"github.com/AnTengye/contractrisk/model"
	"github.com/AnTengye/contractrisk/pkg/logger"
	"github.com/AnTengye/contractrisk/repository/postgres"
	"github.com/AnTengye/contractrisk/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded successfully", "store", cfg.Store.Driver, "storage", cfg.Storage.Driver, "ai_provider", cfg.AI.Provider)

	ctx := context.Background()

	files, err := newFileStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize file storage", "error", err)
		os.Exit(1)
	}

	repo, closeRepo, err := newRepository(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize contract store", "error", err)
		os.Exit(1)
	}
	defer closeRepo()

	client, err := analysis.NewClient(&cfg.AI)
	if err != nil {
		slog.Error("failed to initialize AI client", "error", err)
		os.Exit(1)
	}
	analyzer := analysis.NewAnalyzer(repo, client)

	// Analysis workers stop when queueCtx is cancelled on shutdown
	queueCtx, stopQueue := context.WithCancel(ctx)
	defer stopQueue()
	queueDone := make(chan struct{})

	var scheduler analysis.Scheduler
	if cfg.Analysis.Async {
		queue := analysis.NewQueue(analyzer, &cfg.Analysis)
		go func() {
			defer close(queueDone)
			queue.Run(queueCtx)
		}()
		scheduler = queue
		slog.Info("analysis queue started", "workers", cfg.Analysis.Workers, "queue_size", cfg.Analysis.QueueSize)
	} else {
		close(queueDone)
		scheduler = analysis.NewInline(analyzer)
	}

	contracts := service.NewUploadService(repo, files, newExtractor(cfg, files), scheduler, cfg.MaxUploadBytes())
	if store, ok := repo.(*service.ContractStore); ok {
		store.OnEvict(func(c *model.Contract) {
			contracts.RemoveFile(context.Background(), c.FileKey)
		})
	}

	// Contracts left unfinished by the previous run
	go func() {
		if _, err := analysis.Resume(queueCtx, scheduler, repo); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("failed to resume analyses", "error", err)
		}
	}()

	router := setupRouter(cfg, contracts, repo)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      corsHandler(cfg, router),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.AI.Timeout + 60*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	stopQueue()
	select {
	case <-queueDone:
	case <-shutdownCtx.Done():
		slog.Warn("analysis workers did not stop in time")
	}

	slog.Info("server exited gracefully")
}

func newFileStorage(ctx context.Context, cfg *config.Config) (service.FileStorage, error) {
	if cfg.Storage.Driver != "minio" {
		slog.Info("storing files on local disk", "dir", cfg.Storage.LocalDir)
		return service.NewLocalStorage(cfg.Storage.LocalDir)
	}

	minioSvc, err := service.NewMinioService(&cfg.Minio)
	if err != nil {
		return nil, err
	}
	if err := minioSvc.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	slog.Info("storing files in minio", "endpoint", cfg.Minio.Endpoint, "bucket", cfg.Minio.Bucket)
	return minioSvc, nil
}

// newRepository returns the contract store and a function releasing it
func newRepository(ctx context.Context, cfg *config.Config) (service.ContractRepository, func(), error) {
	if cfg.Store.Driver != "postgres" {
		return service.NewContractStore(&cfg.Store), func() {}, nil
	}

	if err := postgres.Migrate(cfg.Store.DatabaseURL); err != nil {
		return nil, nil, err
	}
	pool, err := postgres.Connect(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewContractRepo(pool), pool.Close, nil
}

func newExtractor(cfg *config.Config, files service.FileStorage) *extract.Extractor {
	if !cfg.Mineru.Enabled {
		return extract.New(files)
	}
	slog.Info("PDF extraction delegated to MinerU", "api_url", cfg.Mineru.APIURL)
	mineru := service.NewMineruService(&cfg.Mineru, files)
	return extract.New(files, extract.WithBackend(extract.FormatPDF, mineru))
}

func setupRouter(cfg *config.Config, contracts *service.UploadService, repo service.ContractRepository) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics())
	router.Use(middleware.RateLimit(100, time.Minute))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handler.NewAuthHandler(cfg)
	contractHandler := handler.NewContractHandler(contracts, repo, cfg.MaxUploadBytes())

	api := router.Group("/api")
	api.Use(middleware.NoCache())
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		// Upload and reanalysis call the AI provider
		costly := middleware.TenantRateLimit(cfg.Upload.RatePerMinute, time.Minute)

		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.POST("/contracts/upload", costly, contractHandler.Upload)
		protected.GET("/contracts", contractHandler.List)
		protected.GET("/contracts/:id", contractHandler.Get)
		protected.GET("/contracts/:id/status", contractHandler.GetStatus)
		protected.POST("/contracts/:id/reanalyze", costly, contractHandler.Reanalyze)
		protected.GET("/contracts/:id/reanalyze", contractHandler.ReanalyzeNotAllowed)
		protected.DELETE("/contracts/:id", contractHandler.Delete)
		protected.GET("/stats", contractHandler.Stats)
	}

	return router
}

func corsHandler(cfg *config.Config, h http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
	}).Handler(h)
}
