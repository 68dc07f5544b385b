// Command indexer chunks, embeds and stores pages. It consumes index and
// delete requests from NATS and can also watch a directory of JSON request
// files.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/WessleyAI/docsearch/engine/chunker"
	"github.com/WessleyAI/docsearch/engine/domain"
	"github.com/WessleyAI/docsearch/engine/graph"
	"github.com/WessleyAI/docsearch/engine/index"
	"github.com/WessleyAI/docsearch/engine/semantic"
	"github.com/WessleyAI/docsearch/pkg/fn"
	"github.com/WessleyAI/docsearch/pkg/lock"
	"github.com/WessleyAI/docsearch/pkg/metrics"
	"github.com/WessleyAI/docsearch/pkg/ollama"
	"github.com/WessleyAI/docsearch/pkg/tokenizer"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
)

var met = metrics.New()

var (
	mFilesProcessed = met.Counter("docsearch_indexer_files_processed_total", "Request files processed")
	mFileErrors     = met.Counter("docsearch_indexer_file_errors_total", "Request files that could not be read or decoded")
	mQueueDepth     = met.Gauge("docsearch_indexer_queue_depth", "Request files waiting to process")
	mLastScan       = met.Gauge("docsearch_indexer_last_scan_timestamp", "Epoch of last directory scan")
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func main() {
	var (
		dataDir     = flag.String("dir", "", "directory to watch for JSON request files (optional)")
		interval    = flag.Duration("interval", 30*time.Second, "directory scan interval")
		stateFile   = flag.String("state", "", "processed files state (default <dir>/.index-state.json)")
		metricsAddr = flag.String("metrics-addr", envOr("METRICS_ADDR", ":9091"), "metrics listen address")
		qdrantAddr  = flag.String("qdrant", envOr("QDRANT_URL", "localhost:6334"), "Qdrant gRPC address")
		collection  = flag.String("collection", envOr("QDRANT_COLLECTION", "docsearch"), "Qdrant collection name")
		dims        = flag.Int("dims", envInt("VECTOR_DIMS", 768), "embedding dimensions")
		ollamaURL   = flag.String("ollama", envOr("OLLAMA_URL", "http://localhost:11434"), "Ollama base URL")
		embedModel  = flag.String("model", envOr("EMBED_MODEL", "nomic-embed-text"), "Ollama embedding model")
		natsURL     = flag.String("nats", os.Getenv("NATS_URL"), "NATS URL (optional)")
		redisURL    = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL for cross-process page locks (optional)")
		neo4jURL    = flag.String("neo4j", os.Getenv("NEO4J_URL"), "Neo4j bolt URL (optional)")
		neo4jUser   = flag.String("neo4j-user", envOr("NEO4J_USER", "neo4j"), "Neo4j username")
		neo4jPass   = flag.String("neo4j-pass", envOr("NEO4J_PASS", "password"), "Neo4j password")
		maxTokens   = flag.Int("max-tokens", envInt("MAX_CHUNK_TOKENS", chunker.DefaultMaxTokens), "maximum tokens per chunk")
		encoding    = flag.String("encoding", envOr("TOKENIZER_ENCODING", tokenizer.DefaultEncoding), "tiktoken encoding")
		workers     = flag.Int("workers", index.DefaultWorkers, "pages indexed concurrently per file")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if *dataDir == "" && *natsURL == "" {
		log.Error("nothing to do: set -dir or -nats")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := met.Serve(ctx, *metricsAddr); err != nil {
			log.Error("metrics server failed", "error", err)
		}
	}()

	// Page locks: in-process unless Redis is configured.
	storeOpts := []semantic.Option{semantic.WithDimensions(*dims), semantic.WithLogger(log)}
	if *redisURL != "" {
		opt, err := redis.ParseURL(*redisURL)
		if err != nil {
			log.Error("redis url invalid", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		locker := lock.NewRedisLocker(rdb)
		storeOpts = append(storeOpts, semantic.WithLocker(locker))
		log.Info("using redis page locks", "owner", locker.OwnerID())
	}

	// Connect Qdrant
	vs, err := semantic.New(*qdrantAddr, *collection, storeOpts...)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer vs.Close()
	retry := fn.DefaultRetry
	retry.Retryable = func(err error) bool {
		return !errors.Is(err, domain.ErrDimensionMismatch) && !errors.Is(err, domain.ErrInvalidConfig)
	}
	ensured := fn.Retry(ctx, retry, func(ctx context.Context) fn.Result[struct{}] {
		return fn.FromPair(struct{}{}, vs.EnsureCollection(ctx, *dims))
	})
	if _, err := ensured.Unwrap(); err != nil {
		log.Error("qdrant ensure collection failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to qdrant", "collection", *collection, "dims", *dims)

	// Tokenizer and chunker
	tok, err := tokenizer.NewTiktoken(*encoding)
	if err != nil {
		log.Error("tokenizer init failed", "encoding", *encoding, "error", err)
		os.Exit(1)
	}
	ch := chunker.New(chunker.WithMaxTokens(*maxTokens), chunker.WithTokenizer(tok))

	// Ollama embedder
	embedOpts := ollama.DefaultOptions()
	embedOpts.Dimensions = *dims
	embedder := ollama.NewEmbedClient(*ollamaURL, *embedModel, embedOpts, log)
	log.Info("using ollama embeddings", "model", *embedModel)

	deps := index.Deps{
		Chunker:  ch,
		Embedder: embedder,
		Store:    vs,
		Metrics:  met,
		Logger:   log,
		Workers:  *workers,
	}

	// Optional page hierarchy
	if *neo4jURL != "" {
		driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
		if err != nil {
			log.Error("neo4j connect failed", "error", err)
			os.Exit(1)
		}
		defer driver.Close(context.Background())
		if err := driver.VerifyConnectivity(ctx); err != nil {
			log.Error("neo4j verify failed", "error", err)
			os.Exit(1)
		}
		deps.Graph = graph.New(driver, log)
		log.Info("connected to neo4j")
	}

	ix := index.New(deps)

	if *natsURL != "" {
		nc, err := nats.Connect(*natsURL, nats.Name("docsearch-indexer"))
		if err != nil {
			log.Error("nats connect failed", "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		consumer, err := index.StartConsumer(nc, ix)
		if err != nil {
			log.Error("nats subscribe failed", "error", err)
			os.Exit(1)
		}
		defer consumer.Stop()
		log.Info("consuming index requests", "subjects", []string{index.IndexSubject, index.DeleteSubject}, "queue", index.QueueGroup)
	}

	if *dataDir == "" {
		<-ctx.Done()
		log.Info("shutting down")
		return
	}

	if *stateFile == "" {
		*stateFile = filepath.Join(*dataDir, ".index-state.json")
	}
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Error("create data dir failed", "error", err)
		os.Exit(1)
	}
	w := &watcher{dir: *dataDir, stateFile: *stateFile, ix: ix, log: log, processed: loadState(*stateFile)}
	log.Info("watching for index requests", "dir", *dataDir, "interval", *interval)

	w.scan(ctx)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

// batchIndexer is the part of the index.Indexer the watcher uses.
type batchIndexer interface {
	IndexBatch(ctx context.Context, reqs []index.Request) []index.Outcome
}

// watcher indexes *.json files holding one or more concatenated
// index.Requests. A file is recorded as done only when every page in it
// indexed or was skipped, so failures are retried on the next scan.
type watcher struct {
	dir       string
	stateFile string
	ix        batchIndexer
	log       *slog.Logger
	processed map[string]bool
}

func (w *watcher) scan(ctx context.Context) {
	mLastScan.Set(float64(time.Now().Unix()))
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		mFileErrors.Inc()
		w.log.Error("readdir failed", "error", err)
		return
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		key := fmt.Sprintf("%s:%d", e.Name(), info.Size())
		if w.processed[key] {
			continue
		}

		mQueueDepth.Inc()
		indexed, failed, err := w.processFile(ctx, filepath.Join(w.dir, e.Name()))
		mQueueDepth.Dec()
		mFilesProcessed.Inc()
		if err != nil {
			mFileErrors.Inc()
			w.log.Error("file unreadable", "file", e.Name(), "error", err)
			continue
		}
		w.log.Info("file done", "file", e.Name(), "indexed", indexed, "failed", failed)

		if failed == 0 {
			w.processed[key] = true
			if err := saveState(w.stateFile, w.processed); err != nil {
				w.log.Warn("save state failed", "error", err)
			}
		} else {
			w.log.Warn("file had failures, will retry on next scan", "file", e.Name(), "failed", failed)
		}
	}
}

// processFile indexes every request in path and counts outcomes.
func (w *watcher) processFile(ctx context.Context, path string) (indexed, failed int, err error) {
	reqs, err := readRequests(path)
	if err != nil {
		return 0, 0, err
	}
	for _, out := range w.ix.IndexBatch(ctx, reqs) {
		if out.Status == index.StatusFailed {
			failed++
		} else {
			indexed++
		}
	}
	return indexed, failed, nil
}

// readRequests decodes a stream of concatenated JSON index requests.
func readRequests(path string) ([]index.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reqs []index.Request
	dec := json.NewDecoder(f)
	for {
		var req index.Request
		err := dec.Decode(&req)
		if errors.Is(err, io.EOF) {
			return reqs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
		reqs = append(reqs, req)
	}
}

func loadState(path string) map[string]bool {
	m := make(map[string]bool)
	data, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	json.Unmarshal(data, &m)
	return m
}

func saveState(path string, m map[string]bool) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
