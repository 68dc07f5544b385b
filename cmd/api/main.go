// Package main implements the docsearch HTTP API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/WessleyAI/docsearch/engine/citation"
	"github.com/WessleyAI/docsearch/engine/domain"
	"github.com/WessleyAI/docsearch/engine/graph"
	"github.com/WessleyAI/docsearch/engine/search"
	"github.com/WessleyAI/docsearch/engine/semantic"
	"github.com/WessleyAI/docsearch/pkg/fn"
	"github.com/WessleyAI/docsearch/pkg/metrics"
	"github.com/WessleyAI/docsearch/pkg/mid"
	"github.com/WessleyAI/docsearch/pkg/ollama"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Config holds all environment-based configuration.
type Config struct {
	Port         string
	QdrantURL    string
	Collection   string
	Dims         int
	OllamaURL    string
	EmbedModel   string
	NATSURL      string
	Neo4jURL     string
	Neo4jUser    string
	Neo4jPass    string
	CORSOrigin   string
	CacheLimit   int
	MaxBodyBytes int64
}

func loadConfig() Config {
	return Config{
		Port:         envOr("PORT", "8080"),
		QdrantURL:    envOr("QDRANT_URL", "localhost:6334"),
		Collection:   envOr("QDRANT_COLLECTION", "docsearch"),
		Dims:         envInt("VECTOR_DIMS", 768),
		OllamaURL:    envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:   envOr("EMBED_MODEL", "nomic-embed-text"),
		NATSURL:      os.Getenv("NATS_URL"),
		Neo4jURL:     os.Getenv("NEO4J_URL"),
		Neo4jUser:    envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:    envOr("NEO4J_PASS", "password"),
		CORSOrigin:   envOr("CORS_ORIGIN", "*"),
		CacheLimit:   envInt("SEARCH_CACHE_LIMIT", search.DefaultCacheLimit),
		MaxBodyBytes: int64(envInt("MAX_BODY_BYTES", 1<<20)),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring malformed integer env", "key", key, "value", v)
		return fallback
	}
	return n
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()

	// --- Connect to Qdrant ---
	vectorStore, err := semantic.New(cfg.QdrantURL, cfg.Collection,
		semantic.WithDimensions(cfg.Dims),
		semantic.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	retry := fn.DefaultRetry
	retry.Retryable = func(err error) bool {
		return !errors.Is(err, domain.ErrDimensionMismatch) && !errors.Is(err, domain.ErrInvalidConfig)
	}
	ensured := fn.Retry(ctx, retry, func(ctx context.Context) fn.Result[struct{}] {
		return fn.FromPair(struct{}{}, vectorStore.EnsureCollection(ctx, cfg.Dims))
	})
	if _, err := ensured.Unwrap(); err != nil {
		return fmt.Errorf("qdrant ensure collection: %w", err)
	}
	logger.Info("connected to qdrant", "collection", cfg.Collection, "dims", cfg.Dims)

	// --- Build search engine ---
	embedOpts := ollama.DefaultOptions()
	embedOpts.Dimensions = cfg.Dims
	embedder := ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbedModel, embedOpts, logger)

	engine := search.New(
		embedder,
		vectorStore,
		citation.New(),
		search.NewCache(cfg.CacheLimit, search.DefaultCacheEvict),
		reg,
		search.DefaultOptions(),
		logger,
	)

	srvDeps := &server{search: engine, store: vectorStore, cache: engine.Cache(), log: logger}

	// --- Optional page hierarchy (Neo4j) ---
	if cfg.Neo4jURL != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return fmt.Errorf("neo4j driver: %w", err)
		}
		defer driver.Close(context.Background())
		srvDeps.graph = graph.New(driver, logger)
		logger.Info("page hierarchy enabled", "neo4j", cfg.Neo4jURL)
	}

	// --- Optional NATS search responder ---
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("docsearch-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		if _, err := search.Serve(nc, engine); err != nil {
			return fmt.Errorf("nats serve: %w", err)
		}
		logger.Info("serving searches over nats", "subject", search.Subject)
	}

	// --- Build HTTP server ---
	mux := srvDeps.routes()
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.Metrics(reg),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("docsearch-api"),
		mid.MaxBody(cfg.MaxBodyBytes),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
