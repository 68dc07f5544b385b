// Package index turns page revisions into stored chunks: chunk, embed, then
// replace the page's points in the vector store. It also runs the NATS
// consumer the sync orchestrator publishes to.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/docsearch/engine/chunker"
	"github.com/WessleyAI/docsearch/engine/domain"
	"github.com/WessleyAI/docsearch/pkg/fn"
	"github.com/WessleyAI/docsearch/pkg/metrics"
	"github.com/WessleyAI/docsearch/pkg/resilience"
)

// DefaultWorkers bounds concurrent pages in IndexBatch.
const DefaultWorkers = 4

// Embedder produces one embedding per input text, in order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the vector store surface the indexer writes to.
type Store interface {
	UpsertChunks(ctx context.Context, page domain.Page, chunks []domain.ChunkWithEmbedding) (int, error)
	DeletePageChunks(ctx context.Context, pageID string) (int, error)
	GetPageVersion(ctx context.Context, pageID string) (*int, error)
}

// Hierarchy records parent/child links between pages. Optional.
type Hierarchy interface {
	SavePage(ctx context.Context, page domain.Page) error
	DeletePage(ctx context.Context, pageID string) error
}

// Deps holds the external dependencies of an Indexer.
type Deps struct {
	Chunker  *chunker.Chunker
	Embedder Embedder
	Store    Store
	Graph    Hierarchy
	Metrics  *metrics.Registry
	Logger   *slog.Logger
	// Workers bounds IndexBatch concurrency.
	Workers int
	// Breaker configures the breakers guarding vector store writes and
	// hierarchy writes. Zero values take resilience.DefaultBreakerOpts.
	Breaker resilience.BreakerOpts
}

type indexMetrics struct {
	indexed  *metrics.Counter
	skipped  *metrics.Counter
	failed   *metrics.Counter
	deleted  *metrics.Counter
	chunks   *metrics.Counter
	duration *metrics.Histogram
}

func newIndexMetrics(reg *metrics.Registry) *indexMetrics {
	if reg == nil {
		reg = metrics.New()
	}
	const pages = "docsearch_index_pages_total"
	const help = "Pages processed by the indexer."
	return &indexMetrics{
		indexed:  reg.Counter(metrics.WithLabels(pages, "status", string(StatusIndexed)), help),
		skipped:  reg.Counter(metrics.WithLabels(pages, "status", string(StatusSkipped)), help),
		failed:   reg.Counter(metrics.WithLabels(pages, "status", string(StatusFailed)), help),
		deleted:  reg.Counter(metrics.WithLabels(pages, "status", string(StatusDeleted)), help),
		chunks:   reg.Counter("docsearch_index_chunks_total", "Chunks written to the vector store."),
		duration: reg.Histogram("docsearch_index_duration_seconds", "Time to index one page.", nil),
	}
}

// Indexer runs the chunk, embed and upsert pipeline.
type Indexer struct {
	deps         Deps
	pipeline     fn.Stage[Request, int]
	storeBreaker *resilience.Breaker
	graphBreaker *resilience.Breaker
	metrics      *indexMetrics
	log          *slog.Logger
}

// New wires an Indexer. A nil Chunker gets the default chunker.
func New(deps Deps) *Indexer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Chunker == nil {
		deps.Chunker = chunker.New()
	}
	if deps.Workers <= 0 {
		deps.Workers = DefaultWorkers
	}
	ix := &Indexer{
		deps:         deps,
		storeBreaker: newBreaker("vector_store", deps.Breaker, deps.Logger),
		graphBreaker: newBreaker("hierarchy", deps.Breaker, deps.Logger),
		metrics:      newIndexMetrics(deps.Metrics),
		log:          deps.Logger,
	}
	ix.pipeline = newPipeline(deps, ix.storeBreaker)
	return ix
}

func newBreaker(upstream string, opts resilience.BreakerOpts, log *slog.Logger) *resilience.Breaker {
	if opts.IsFailure == nil {
		opts.IsFailure = isUpstreamFailure
	}
	hook := opts.OnStateChange
	opts.OnStateChange = func(from, to resilience.State) {
		log.Warn("index: breaker state change", "upstream", upstream, "from", from.String(), "to", to.String())
		if hook != nil {
			hook(from, to)
		}
	}
	return resilience.NewBreaker(opts)
}

// isUpstreamFailure keeps bad input and caller cancellation from tripping a
// breaker.
func isUpstreamFailure(err error) bool {
	var ve *domain.ValidationError
	return !errors.As(err, &ve) &&
		!errors.Is(err, domain.ErrDimensionMismatch) &&
		!errors.Is(err, context.Canceled)
}

// --- Pipeline Stages ---

// Validate rejects pages that cannot be stored.
var Validate fn.Stage[Request, Request] = func(_ context.Context, req Request) fn.Result[Request] {
	if err := domain.ValidatePage(req.Page); err != nil {
		return fn.Err[Request](err)
	}
	return fn.Ok(req)
}

// NewChunk creates the stage that splits a page into chunks.
func NewChunk(c *chunker.Chunker) fn.Stage[Request, chunkedPage] {
	return func(_ context.Context, req Request) fn.Result[chunkedPage] {
		chunks := c.ChunkPage(req.Page, chunker.ParseNodes(req.Nodes), req.Raw)
		return fn.Ok(chunkedPage{Page: req.Page, Chunks: chunks})
	}
}

// NewEmbed creates the stage that embeds every chunk's content.
func NewEmbed(e Embedder) fn.Stage[chunkedPage, embeddedPage] {
	return func(ctx context.Context, doc chunkedPage) fn.Result[embeddedPage] {
		out := embeddedPage{Page: doc.Page, Chunks: make([]domain.ChunkWithEmbedding, len(doc.Chunks))}
		if len(doc.Chunks) == 0 {
			return fn.Ok(out)
		}
		texts := fn.Map(doc.Chunks, func(c domain.Chunk) string { return c.Content })
		vecs, err := e.EmbedBatch(ctx, texts)
		if err != nil {
			return fn.Err[embeddedPage](fmt.Errorf("embed: %w", err))
		}
		if len(vecs) != len(doc.Chunks) {
			return fn.Err[embeddedPage](fmt.Errorf("%w: got %d embeddings for %d chunks", domain.ErrEmbedding, len(vecs), len(doc.Chunks)))
		}
		for i, c := range doc.Chunks {
			out.Chunks[i] = domain.ChunkWithEmbedding{Chunk: c, Embedding: vecs[i]}
		}
		return fn.Ok(out)
	}
}

// NewUpsert creates the stage that replaces the page's stored chunks.
func NewUpsert(s Store) fn.Stage[embeddedPage, int] {
	return func(ctx context.Context, doc embeddedPage) fn.Result[int] {
		n, err := s.UpsertChunks(ctx, doc.Page, doc.Chunks)
		if err != nil {
			return fn.Err[int](fmt.Errorf("upsert: %w", err))
		}
		return fn.Ok(n)
	}
}

// LoggedTap returns a stage that logs entry at debug level.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return fn.TapStage(func(ctx context.Context, _ T) {
		log.DebugContext(ctx, "stage.enter", "stage", name)
	})
}

// newPipeline composes Validate → Chunk → Embed → Upsert with a span per
// stage. Upserts go through the store breaker.
func newPipeline(deps Deps, store *resilience.Breaker) fn.Stage[Request, int] {
	log := deps.Logger
	validated := fn.TracedStage("index.validate", fn.Then(LoggedTap[Request]("validate", log), Validate))
	chunked := fn.Then(validated, fn.TracedStage("index.chunk", fn.Then(LoggedTap[Request]("chunk", log), NewChunk(deps.Chunker))))
	embedded := fn.Then(chunked, fn.TracedStage("index.embed", fn.Then(LoggedTap[chunkedPage]("embed", log), NewEmbed(deps.Embedder))))
	return fn.Then(embedded, fn.TracedStage("index.upsert", fn.Then(LoggedTap[embeddedPage]("upsert", log), resilience.BreakerStage(store, NewUpsert(deps.Store)))))
}

// IndexPage indexes one page revision. Revisions no newer than the stored
// version are skipped unless req.Force is set. A failed index leaves the
// previous revision's chunks in place.
func (ix *Indexer) IndexPage(ctx context.Context, req Request) (Outcome, error) {
	start := time.Now()
	out := Outcome{PageID: req.Page.PageID}

	if !req.Force && req.Page.PageID != "" {
		stored, err := ix.deps.Store.GetPageVersion(ctx, req.Page.PageID)
		if err != nil {
			ix.log.Warn("index: version lookup failed", "page_id", req.Page.PageID, "error", err)
		} else if stored != nil && *stored >= req.Page.Version {
			out.Status = StatusSkipped
			ix.metrics.skipped.Inc()
			ix.log.Info("index: page skipped", "page_id", req.Page.PageID, "version", req.Page.Version, "stored", *stored)
			return out, nil
		}
	}

	n, err := ix.pipeline(ctx, req).Unwrap()
	if err != nil {
		ix.metrics.failed.Inc()
		out.Status = StatusFailed
		out.Error = err.Error()
		ix.log.Error("index: page failed", "page_id", req.Page.PageID, "error", err)
		return out, fmt.Errorf("index page %s: %w", req.Page.PageID, err)
	}

	if ix.deps.Graph != nil {
		err := ix.graphBreaker.Call(ctx, func(ctx context.Context) error { return ix.deps.Graph.SavePage(ctx, req.Page) })
		if err != nil {
			ix.log.Warn("index: hierarchy save failed", "page_id", req.Page.PageID, "error", err)
		}
	}

	ix.metrics.indexed.Inc()
	ix.metrics.chunks.Add(int64(n))
	ix.metrics.duration.Since(start)
	out.Status = StatusIndexed
	out.Chunks = n
	ix.log.Info("index: page indexed", "page_id", req.Page.PageID, "version", req.Page.Version, "chunks", n, "duration", time.Since(start))
	return out, nil
}

// DeletePage removes every chunk of a page. Deleting an unknown page reports
// zero chunks.
func (ix *Indexer) DeletePage(ctx context.Context, pageID string) (Outcome, error) {
	out := Outcome{PageID: pageID}
	if pageID == "" {
		out.Status = StatusFailed
		err := domain.NewValidationError("page_id", pageID, domain.ErrInvalidPage)
		out.Error = err.Error()
		return out, err
	}
	var n int
	err := ix.storeBreaker.Call(ctx, func(ctx context.Context) error {
		var err error
		n, err = ix.deps.Store.DeletePageChunks(ctx, pageID)
		return err
	})
	if err != nil {
		ix.metrics.failed.Inc()
		out.Status = StatusFailed
		out.Error = err.Error()
		return out, fmt.Errorf("delete page %s: %w", pageID, err)
	}
	if ix.deps.Graph != nil {
		err := ix.graphBreaker.Call(ctx, func(ctx context.Context) error { return ix.deps.Graph.DeletePage(ctx, pageID) })
		if err != nil {
			ix.log.Warn("index: hierarchy delete failed", "page_id", pageID, "error", err)
		}
	}
	ix.metrics.deleted.Inc()
	out.Status = StatusDeleted
	out.Chunks = n
	ix.log.Info("index: page deleted", "page_id", pageID, "chunks", n)
	return out, nil
}

// IndexBatch indexes pages concurrently. One page failing never stops the
// others; outcomes come back in request order.
func (ix *Indexer) IndexBatch(ctx context.Context, reqs []Request) []Outcome {
	results := fn.ParMapResult(reqs, ix.deps.Workers, func(req Request) fn.Result[Outcome] {
		return fn.FromPair(ix.IndexPage(ctx, req))
	})
	outcomes := make([]Outcome, len(results))
	for i, r := range results {
		out, err := r.Unwrap()
		if err != nil && out.PageID == "" {
			out = Outcome{PageID: reqs[i].Page.PageID, Status: StatusFailed, Error: err.Error()}
		}
		outcomes[i] = out
	}
	return outcomes
}
