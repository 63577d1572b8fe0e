package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AquaScanAI/aquascan-mvp/engine/domain"
	"github.com/AquaScanAI/aquascan-mvp/engine/semantic"
	"github.com/AquaScanAI/aquascan-mvp/pkg/metrics"
	"github.com/AquaScanAI/aquascan-mvp/pkg/resilience"
)

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher abstracts the vector store operations the strategies need.
type VectorSearcher interface {
	// Search performs nearest-neighbor search against a named vector field,
	// returning rows in ascending distance order.
	Search(ctx context.Context, field string, vector []float32, limit int) ([]semantic.Row, error)
	// Query scans rows whose address fields match the text, unordered.
	// Empty text matches all rows.
	Query(ctx context.Context, matchText string, limit int) ([]semantic.Row, error)
	// Ready reports whether the store connection is usable, establishing it
	// if needed.
	Ready(ctx context.Context) error
}

// Options configures the retrieval engine.
type Options struct {
	// DefaultLimit is used when a caller passes limit <= 0.
	DefaultLimit int
	// FallbackFactor enlarges the limit for the second fallback stage.
	FallbackFactor int
	// SearchTimeout bounds each store call.
	SearchTimeout time.Duration
	// MaxEmbedChars truncates query text before embedding; the provider
	// bounds input length.
	MaxEmbedChars int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		DefaultLimit:   5,
		FallbackFactor: 2,
		SearchTimeout:  10 * time.Second,
		MaxEmbedChars:  2048,
	}
}

// Context is what the engine hands the generation collaborator: ranked
// records (never nil, possibly empty), the strategy the router picked, the
// strategy that ultimately produced the records, and how many fallback
// stages ran. Empty Records with FallbackDepth == 2 means no data exists
// anywhere; callers treat that as a terminal state, not an error.
type Context struct {
	Records       []domain.RetrievedRecord `json:"records"`
	Routed        Strategy                 `json:"-"`
	Produced      Strategy                 `json:"-"`
	FallbackDepth int                      `json:"fallback_depth"`
}

// Engine composes router, strategies, fallback orchestrator, and
// normalizer behind one retrieval operation. Safe for concurrent use; all
// state apart from the lazily-established store connection is per-call.
type Engine struct {
	store   VectorSearcher
	embed   Embedder
	breaker *resilience.Breaker
	opts    Options
	reg     *metrics.Registry
	logger  *slog.Logger
}

// New creates a retrieval Engine. reg may be nil to disable metrics.
func New(store VectorSearcher, embed Embedder, opts Options, reg *metrics.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultOptions().DefaultLimit
	}
	if opts.FallbackFactor <= 0 {
		opts.FallbackFactor = DefaultOptions().FallbackFactor
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = DefaultOptions().SearchTimeout
	}
	if opts.MaxEmbedChars <= 0 {
		opts.MaxEmbedChars = DefaultOptions().MaxEmbedChars
	}
	return &Engine{
		store:   store,
		embed:   embed,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		opts:    opts,
		reg:     reg,
		logger:  logger,
	}
}

// RetrieveContext is the single entry point consumed by the chat flow:
// route the question, execute via the fallback orchestrator, return ranked
// records. Strategies never raise for empty results, so this never returns
// an error; collaborator failures degrade through the fallback chain.
func (e *Engine) RetrieveContext(ctx context.Context, question string, limit int) Context {
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}
	routed := Classify(question)
	e.logger.Info("retrieval: routed", "strategy", routed.String(), "limit", limit)

	result := e.execute(ctx, routed, question, limit)

	if e.reg != nil {
		e.reg.Counter(metrics.WithLabels("retrieval_queries_total", "strategy", routed.String()),
			"Queries by routed strategy").Inc()
		e.reg.Histogram("retrieval_fallback_depth", "Fallback stages taken per query", []float64{0, 1, 2}).
			Observe(float64(result.FallbackDepth))
	}
	return result
}

// RawSearch is the raw vector-search primitive for callers that already
// know which embedding field they want. It bypasses routing and fallback.
func (e *Engine) RawSearch(ctx context.Context, field, query string, limit int) ([]domain.RetrievedRecord, error) {
	if field != semantic.FieldAddress && field != semantic.FieldCombined {
		return nil, fmt.Errorf("retrieval: unknown vector field %q", field)
	}
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}
	tag := StrategySimilarity
	if field == semantic.FieldAddress {
		tag = StrategyAddress
	}
	return e.similaritySearch(ctx, query, field, limit, tag, true)
}

// embedQuery obtains the query embedding through the circuit breaker.
// A reachable provider returning an empty vector is an embedding failure.
func (e *Engine) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if runes := []rune(text); len(runes) > e.opts.MaxEmbedChars {
		text = string(runes[:e.opts.MaxEmbedChars])
	}

	var vec []float32
	err := e.breaker.Call(ctx, func(ctx context.Context) error {
		v, err := e.embed.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: provider returned empty vector", domain.ErrEmbedding)
	}
	return vec, nil
}
