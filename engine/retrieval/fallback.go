package retrieval

import (
	"context"

	"github.com/AquaScanAI/aquascan-mvp/engine/domain"
	"github.com/AquaScanAI/aquascan-mvp/engine/semantic"
)

// execute runs the three-stage fallback chain. Stage transitions are
// driven purely by result emptiness: a failed strategy logs and counts as
// zero results, so availability degrades gracefully instead of erroring.
//
//	1. the routed strategy
//	2. general similarity in address mode at an enlarged limit
//	3. recency with an empty query, most recent records, unfiltered
//
// Stage 3's output is returned even when empty; "no data at all" is a
// terminal state the caller handles, not an error.
func (e *Engine) execute(ctx context.Context, routed Strategy, query string, limit int) Context {
	recs := e.attempt(ctx, routed, func(ctx context.Context) ([]domain.RetrievedRecord, error) {
		return e.run(ctx, routed, query, limit)
	})
	if len(recs) > 0 {
		return Context{Records: recs, Routed: routed, Produced: routed}
	}

	e.logger.Warn("retrieval: no results from routed strategy, broadening",
		"strategy", routed.String())
	recs = e.attempt(ctx, StrategySimilarity, func(ctx context.Context) ([]domain.RetrievedRecord, error) {
		return e.searchSimilar(ctx, query, semantic.FieldAddress, limit*e.opts.FallbackFactor)
	})
	if len(recs) > 0 {
		return Context{Records: recs, Routed: routed, Produced: StrategySimilarity, FallbackDepth: 1}
	}

	e.logger.Warn("retrieval: broadened search empty, using recent readings")
	recs = e.attempt(ctx, StrategyRecency, func(ctx context.Context) ([]domain.RetrievedRecord, error) {
		return e.searchRecent(ctx, "", limit)
	})
	return Context{Records: orEmpty(recs), Routed: routed, Produced: StrategyRecency, FallbackDepth: 2}
}

// attempt runs one stage, converting collaborator failures into an empty
// result at the strategy boundary so the orchestrator never special-cases
// errors.
func (e *Engine) attempt(ctx context.Context, tag Strategy, f func(context.Context) ([]domain.RetrievedRecord, error)) []domain.RetrievedRecord {
	recs, err := f(ctx)
	if err != nil {
		e.logger.Warn("retrieval: strategy failed, treating as empty",
			"strategy", tag.String(), "err", err)
		return nil
	}
	return recs
}

// orEmpty guarantees the caller never sees a nil record slice.
func orEmpty(recs []domain.RetrievedRecord) []domain.RetrievedRecord {
	if recs == nil {
		return []domain.RetrievedRecord{}
	}
	return recs
}
