package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/tkohara/ragchat/internal/auth"
	"github.com/tkohara/ragchat/internal/config"
	"github.com/tkohara/ragchat/internal/embedder"
	"github.com/tkohara/ragchat/internal/guardrails"
	"github.com/tkohara/ragchat/internal/ingestion"
	"github.com/tkohara/ragchat/internal/llm"
	"github.com/tkohara/ragchat/internal/memory"
	"github.com/tkohara/ragchat/internal/observability"
	"github.com/tkohara/ragchat/internal/ratelimit"
	"github.com/tkohara/ragchat/internal/repository"
	"github.com/tkohara/ragchat/internal/repository/postgres"
	"github.com/tkohara/ragchat/internal/reranker"
	"github.com/tkohara/ragchat/internal/server"
	"github.com/tkohara/ragchat/internal/service"
	"github.com/tkohara/ragchat/internal/vectorstore"
)

func main() {
	// Set up structured logging
	logLevel := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting ragchat service",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
	)

	// Initialize PostgreSQL
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	slog.Info("connected to PostgreSQL")

	// Initialize repositories
	userRepo := postgres.NewUserRepo(db)
	collectionRepo := postgres.NewCollectionRepo(db)
	documentRepo := postgres.NewDocumentRepo(db)

	// Initialize Qdrant vector store
	vectorStore, err := vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer vectorStore.Close()
	slog.Info("connected to Qdrant")

	// Conversation memory and rate limiting run in-process unless Redis
	// is configured, in which case both are shared across replicas.
	var (
		conversations memory.ConversationStore
		limiter       ratelimit.Limiter
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer rdb.Close()
		conversations = memory.NewRedisStore(rdb, cfg.ChatHistoryLimit, cfg.ChatHistoryTTL)
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimitRequests, cfg.RateLimitWindow)
		slog.Info("connected to Redis", "addr", cfg.RedisAddr)
	} else {
		conversations = memory.NewStore(cfg.ChatHistoryLimit, cfg.ChatHistoryTTL)
		limiter = ratelimit.NewLocalLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
		slog.Info("using in-process conversation memory and rate limiting")
	}

	// Event sinks: structured log, Prometheus, and in-process counters
	// always, NATS when configured. The Prometheus metrics surface on
	// /metrics, the raw counters on /statz.
	counters := observability.NewCounterSink()
	sinks := observability.MultiSink{
		observability.NewLogSink(slog.Default()),
		observability.NewPromSink(prometheus.DefaultRegisterer),
		counters,
	}
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Close()
		sinks = append(sinks, observability.NewNATSSink(nc))
		slog.Info("connected to NATS", "url", cfg.NATSURL)
	}

	// Initialize embedder
	var embed embedder.Embedder
	switch cfg.EmbedderProvider {
	case "openai":
		embed = embedder.NewOpenAIEmbedder(embedder.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIEmbeddingModel,
		})
	default:
		embed = embedder.NewOllamaEmbedder(embedder.OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.OllamaEmbeddingModel,
		})
	}
	slog.Info("initialized embedder", "provider", cfg.EmbedderProvider, "model", embed.ModelName())

	// Initialize LLM
	var (
		llmClient llm.LLM
		model     string
	)
	switch cfg.LLMProvider {
	case "openai":
		llmClient = llm.NewOpenAIClient(cfg.OpenAIAPIKey, llm.WithOpenAIModel(cfg.OpenAIModel))
		model = cfg.OpenAIModel
	case "anthropic":
		llmClient = llm.NewAnthropicClient(cfg.AnthropicAPIKey, llm.WithAnthropicModel(cfg.AnthropicModel))
		model = cfg.AnthropicModel
	default:
		llmClient = llm.NewOllamaClient(
			llm.WithBaseURL(cfg.OllamaURL),
			llm.WithModel(cfg.OllamaLLMModel),
		)
		model = cfg.OllamaLLMModel
	}
	slog.Info("initialized LLM", "provider", cfg.LLMProvider, "model", model)

	guard := guardrails.NewEngine(guardrails.DefaultRuleset())
	rerank := reranker.NewLLMReranker(reranker.NewRelevanceScorer(llmClient))

	jwtCfg := auth.DefaultJWTConfig(cfg.JWTSecret)
	jwtCfg.Expiry = cfg.JWTExpiry
	tokens := auth.NewJWTManager(jwtCfg)

	// Initialize services
	userSvc := service.NewUserService(userRepo, tokens, sinks)
	collectionSvc := service.NewCollectionService(collectionRepo, vectorStore, embed, sinks)
	documentSvc := service.NewDocumentService(documentRepo, collectionRepo, embed, vectorStore, guard,
		ingestion.ChunkerConfig{
			Method:     cfg.ChunkMethod,
			TargetSize: cfg.ChunkTargetSize,
			MaxSize:    cfg.ChunkMaxSize,
			Overlap:    cfg.ChunkOverlap,
		}, sinks)
	chatSvc := service.NewChatService(collectionRepo, embed, vectorStore, llmClient, guard,
		service.WithReranker(rerank),
		service.WithConversationStore(conversations),
		service.WithSink(sinks),
		service.WithModel(model),
	)

	srv, err := server.New(server.Config{
		Port:           cfg.HTTPPort,
		Logger:         slog.Default(),
		AllowedOrigins: cfg.CORSOrigins,
		Users:          userSvc,
		Collections:    collectionSvc,
		Documents:      documentSvc,
		Chat:           chatSvc,
		UserLookup:     userRepo,
		JWT:            tokens,
		Limiter:        limiter,
		Counters:       counters,
		ReadyChecks: []server.ReadyCheck{
			{Name: "postgres", Check: db.Ping},
			{Name: "qdrant", Check: func(ctx context.Context) error {
				_, err := vectorStore.CollectionExists(ctx, "readyz_probe")
				return err
			}},
		},
		DefaultTopK:     cfg.DefaultTopK,
		DefaultMinScore: cfg.DefaultMinScore,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	// Start server
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server", "port", cfg.HTTPPort)
		if err := srv.Start(); err != nil {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	// Graceful shutdown
	slog.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// Ensure interfaces are satisfied at compile time
var (
	_ repository.UserRepository       = (*postgres.UserRepo)(nil)
	_ repository.CollectionRepository = (*postgres.CollectionRepo)(nil)
	_ repository.DocumentRepository   = (*postgres.DocumentRepo)(nil)
	_ vectorstore.VectorStore         = (*vectorstore.QdrantStore)(nil)
	_ embedder.Embedder               = (*embedder.OllamaEmbedder)(nil)
	_ embedder.Embedder               = (*embedder.OpenAIEmbedder)(nil)
	_ llm.LLM                         = (*llm.OllamaClient)(nil)
	_ reranker.Reranker               = (*reranker.LLMReranker)(nil)
	_ memory.ConversationStore        = (*memory.RedisStore)(nil)
	_ ratelimit.Limiter               = (*ratelimit.RedisLimiter)(nil)
)
