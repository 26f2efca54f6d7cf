package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/liliang-cn/ragmentor/internal/api"
	"github.com/liliang-cn/ragmentor/internal/auth"
	"github.com/liliang-cn/ragmentor/internal/classifier"
	"github.com/liliang-cn/ragmentor/internal/config"
	"github.com/liliang-cn/ragmentor/internal/embedding"
	"github.com/liliang-cn/ragmentor/internal/ingest"
	"github.com/liliang-cn/ragmentor/internal/llm"
	"github.com/liliang-cn/ragmentor/internal/lock"
	"github.com/liliang-cn/ragmentor/internal/metrics"
	"github.com/liliang-cn/ragmentor/internal/repository"
	"github.com/liliang-cn/ragmentor/internal/service"
	"github.com/liliang-cn/ragmentor/internal/storage"
	"github.com/liliang-cn/ragmentor/internal/vectorstore"
)

var (
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := newLogger(cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	printBanner()
	ctx := context.Background()

	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	topics, err := loadTopics(cfg.Topics.File, logger)
	if err != nil {
		logger.Fatal("Failed to load topic table", zap.Error(err))
	}

	// Retrieval: embedder, vector store and ingestion pipeline
	embedder, err := embedding.New(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		BatchSize: cfg.Embedding.BatchSize,
	})
	if err != nil {
		logger.Fatal("Failed to create embedder", zap.Error(err))
	}
	index, err := vectorstore.New(cfg.RAG.DBPath, cfg.RAG.Collection, embedding.NewCache(embedder), logger)
	if err != nil {
		logger.Fatal("Failed to open vector store", zap.Error(err))
	}
	pipeline := ingest.NewPipeline(index, cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, logger)

	files, err := storage.New(ctx, storage.Options{
		Backend:              cfg.Storage.Backend,
		LocalDir:             cfg.Storage.LocalDir,
		DriveCredentialsFile: cfg.Storage.Drive.CredentialsFile,
		DriveFolderName:      cfg.Storage.Drive.FolderName,
		DriveShareDomain:     cfg.Storage.Drive.ShareDomain,
		GCSBucket:            cfg.Storage.GCS.Bucket,
		GCSPrefix:            cfg.Storage.GCS.Prefix,
		GCSCredentialsFile:   cfg.Storage.GCS.CredentialsFile,
	})
	if err != nil {
		logger.Fatal("Failed to open document store", zap.Error(err))
	}
	defer closeIfCloser(files, logger)

	verifier, err := auth.New(cfg.Auth.Mode, cfg.Auth.GoogleClientID, cfg.Auth.JWTSecret)
	if err != nil {
		logger.Fatal("Failed to create credential verifier", zap.Error(err))
	}

	locker, err := lock.New(ctx, lock.Options{
		Backend:       cfg.Lock.Backend,
		RedisAddr:     cfg.Lock.RedisAddr,
		RedisPassword: cfg.Lock.RedisPassword,
		TTL:           cfg.Lock.TTL,
	})
	if err != nil {
		logger.Fatal("Failed to create conversation locker", zap.Error(err))
	}

	streamer, err := llm.New(ctx, cfg.LLM.Settings())
	if err != nil {
		logger.Fatal("Failed to create LLM provider", zap.Error(err))
	}
	defer closeIfCloser(streamer, logger)

	chatMetrics := metrics.NewChat()

	// Initialize services
	users := service.NewUserService(repository.NewUserRepository(db), cfg.Auth.AutoProvision, logger).
		WithAdmins(cfg.Auth.AdminEmails)
	questions := service.NewQuestionService(topics, repository.NewQuestionRepository(db), logger)
	stats := service.NewStatisticsService(repository.NewStatisticsRepository(db), topics, cfg.Statistics.Location(), logger)
	documents := service.NewDocumentService(files, pipeline, index, repository.NewDocumentRepository(db), logger)
	chat := service.NewChatService(service.ChatDeps{
		Users:         users,
		Conversations: repository.NewConversationRepository(db),
		Retriever:     index,
		Detector:      questions,
		Recorder:      stats,
		Streamer:      streamer,
		Locker:        locker,
		Metrics:       chatMetrics,
		SystemPrompt:  cfg.LLM.SystemPrompt,
		TopK:          cfg.RAG.TopK,
		Logger:        logger,
	})

	// Setup router
	router := api.SetupRouter(api.Services{
		Verifier:   verifier,
		Users:      users,
		Chat:       chat,
		Documents:  documents,
		Questions:  questions,
		Statistics: stats,
		Topics:     topics,
		Metrics:    chatMetrics,
	}, api.RouterConfig{
		AllowOrigins:     cfg.Server.AllowOrigins,
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RequestsPerHour:  cfg.RateLimit.RequestsPerHour,
	}, logger)

	// No write timeout: answers stream for as long as the provider talks
	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("Starting ragmentor server",
			zap.String("address", cfg.Address()),
			zap.String("llm_provider", streamer.Name()),
			zap.String("storage_backend", cfg.Storage.Backend),
			zap.String("lock_backend", cfg.Lock.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadTopics(path string, logger *zap.Logger) (*classifier.Classifier, error) {
	if path == "" {
		return classifier.Default(logger)
	}
	return classifier.LoadFile(path, logger)
}

func closeIfCloser(v any, logger *zap.Logger) {
	if c, ok := v.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn("Close failed", zap.Error(err))
		}
	}
}

func printBanner() {
	banner := `
    ____  ___   ______                      __
   / __ \/   | / ____/___ ___  ___  ____  / /_____  _____
  / /_/ / /| |/ / __/ __ ` + "`" + `__ \/ _ \/ __ \/ __/ __ \/ ___/
 / _, _/ ___ / /_/ / / / / / /  __/ / / / /_/ /_/ / /
/_/ |_/_/  |_\____/_/ /_/ /_/\___/_/ /_/\__/\____/_/
`

	fmt.Println(banner)
}
