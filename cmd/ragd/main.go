package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/lumenkb/ragd/internal/accesslog"
	"github.com/lumenkb/ragd/internal/config"
	dbredis "github.com/lumenkb/ragd/internal/db/redis"
	"github.com/lumenkb/ragd/internal/domain"
	logpkg "github.com/lumenkb/ragd/internal/logger"
	"github.com/lumenkb/ragd/internal/metrics"
	"github.com/lumenkb/ragd/internal/plugin"
	"github.com/lumenkb/ragd/internal/postprocess"
	"github.com/lumenkb/ragd/internal/repository"
	"github.com/lumenkb/ragd/internal/sensitive"
	chitransport "github.com/lumenkb/ragd/internal/transport/chi"
	openaitransport "github.com/lumenkb/ragd/internal/transport/openai"
	"github.com/lumenkb/ragd/internal/transport/rerank"
	answeruc "github.com/lumenkb/ragd/internal/usecase/answer"
	healthuc "github.com/lumenkb/ragd/internal/usecase/health"
	indexuc "github.com/lumenkb/ragd/internal/usecase/index"
	retrievaluc "github.com/lumenkb/ragd/internal/usecase/retrieval"
	"github.com/lumenkb/ragd/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragd API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	metrics.RegisterRetrievalMetrics()
	metrics.RegisterLLMMetrics()

	store, err := dbredis.NewStore(dbredis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	indexSvc := indexuc.New(store, indexuc.Config{
		ChunkIndex:   cfg.Retrieval.ChunkIndex,
		ChunkPrefix:  cfg.Retrieval.ChunkPrefix,
		QAIndex:      cfg.Retrieval.QAIndex,
		QAPrefix:     cfg.Retrieval.QAPrefix,
		KeywordIndex: cfg.Retrieval.KeywordIndex,
		VectorDim:    cfg.Retrieval.VectorDim,
		HNSWM:        cfg.Retrieval.HNSWM,
		HNSWEFConst:  cfg.Retrieval.HNSWEFConstruct,
	})
	if err := indexSvc.EnsureIndexes(ctx); err != nil {
		logger.Fatal("Failed to ensure indexes", zap.Error(err))
	}
	logger.Info("Indexes ready",
		zap.String("chunk_index", cfg.Retrieval.ChunkIndex),
		zap.String("qa_index", cfg.Retrieval.QAIndex),
		zap.Bool("keyword_enabled", indexSvc.KeywordEnabled(ctx)),
	)

	var embedder domain.Embedder = openaitransport.NewEmbedder(&openaitransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	if cfg.Embedding.QueryInstruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, cfg.Embedding.QueryInstruction)
	}

	chat := openaitransport.NewChat(&openaitransport.ChatConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		VisionModel: cfg.LLM.VisionModel,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Provider:    cfg.LLM.Provider,
		Logger:      logger,
	})

	var rerankScorer postprocess.RerankScorer
	if cfg.Rerank.BaseURL != "" {
		rerankScorer = rerank.New(rerank.Config{
			BaseURL:  cfg.Rerank.BaseURL,
			APIKey:   cfg.Rerank.APIKey,
			Model:    cfg.Rerank.Model,
			Timeout:  time.Duration(cfg.Rerank.TimeoutSec) * time.Second,
			Attempts: uint(cfg.Rerank.Attempts),
		})
		logger.Info("Rerank service configured", zap.String("base_url", cfg.Rerank.BaseURL))
	}

	// Access stream is optional: without NATS the service runs, it just
	// doesn't publish audit entries.
	var (
		accessRecorder retrievaluc.AccessRecorder
		natsConn       *nats.Conn
		recorder       *accesslog.Recorder
	)
	if cfg.NATS.URL != "" {
		natsConn, err = nats.Connect(cfg.NATS.URL, nats.Name("ragd"))
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		queueSize := cfg.NATS.QueueSize
		if queueSize <= 0 {
			queueSize = accesslog.DefaultQueueSize
		}
		recorder = accesslog.New(natsConn, cfg.NATS.Subject, queueSize, logger)
		accessRecorder = recorder
		logger.Info("Access stream connected",
			zap.String("url", cfg.NATS.URL),
			zap.String("subject", cfg.NATS.Subject),
		)
	}

	nodeStore := repository.NewNodeStore(store, cfg.Retrieval.ChunkPrefix)

	vectorRetrievers := []retrievaluc.Retriever{
		repository.NewVectorRetriever("chunk", embedder, store, cfg.Retrieval.ChunkIndex, cfg.Retrieval.ChunkPrefix),
		repository.NewVectorRetriever("qa", embedder, store, cfg.Retrieval.QAIndex, cfg.Retrieval.QAPrefix),
	}
	var keywordRetriever retrievaluc.Retriever
	if indexSvc.KeywordEnabled(ctx) {
		keywordRetriever = repository.NewKeywordRetriever("keyword", store, cfg.Retrieval.KeywordIndex, cfg.Retrieval.ChunkPrefix)
	}

	registry := plugin.NewRegistry(plugin.Deps{
		Nodes:  nodeStore,
		Rerank: rerankScorer,
		Vision: chat,
	})

	retrievalSvc := retrievaluc.New(
		vectorRetrievers,
		keywordRetriever,
		registry,
		accessRecorder,
		cfg.Retrieval.AllowedFilterKeys,
	)
	answerSvc := answeruc.New(retrievalSvc, chat, sensitive.NewScanner(cfg.Sensitive.Words))

	var streamStatus healthuc.StreamStatuser
	if natsConn != nil {
		streamStatus = natsConn
	}
	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(embedder), streamStatus)

	server := chitransport.NewServer(retrievalSvc, answerSvc, healthSvc, cfg.Auth.APIKeys, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	if recorder != nil {
		recorder.Close(5 * time.Second)
	}
	if natsConn != nil {
		natsConn.Close()
	}

	logger.Info("Server stopped gracefully")
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
// The instruction decorator hides the provider's own HealthCheck method.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}
