package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/AquaScanAI/aquascan-mvp/engine/domain"
	"github.com/AquaScanAI/aquascan-mvp/engine/semantic"
)

// recencyOverFetch compensates for the store's lack of a native
// sort-by-timestamp: fetch extra candidates, sort locally, truncate.
const recencyOverFetch = 2

// Each strategy shares the same contract: a ranked, normalized record
// sequence, where empty is a valid non-error outcome. Errors mean a
// collaborator failed; the fallback orchestrator treats them as empty.

// similaritySearch embeds the query once and runs nearest-neighbor search
// against the given vector field. Result order is the store's native
// ranking, ascending distance.
func (e *Engine) similaritySearch(ctx context.Context, query, field string, limit int, tag Strategy, withAddress bool) ([]domain.RetrievedRecord, error) {
	vec, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	searchCtx, cancel := context.WithTimeout(ctx, e.opts.SearchTimeout)
	defer cancel()

	rows, err := e.store.Search(searchCtx, field, vec, limit)
	if err != nil {
		return nil, err
	}

	recs := make([]domain.RetrievedRecord, len(rows))
	for i, row := range rows {
		recs[i] = fromRow(row, tag, withAddress)
	}
	return assignRanks(recs), nil
}

// searchSimilar is the general similarity strategy; the field parameter
// selects the address or combined embedding. Address component fields are
// not surfaced here.
func (e *Engine) searchSimilar(ctx context.Context, query, field string, limit int) ([]domain.RetrievedRecord, error) {
	return e.similaritySearch(ctx, query, field, limit, StrategySimilarity, false)
}

// searchByAddress always searches the address embedding and surfaces the
// raw address component fields.
func (e *Engine) searchByAddress(ctx context.Context, query string, limit int) ([]domain.RetrievedRecord, error) {
	return e.similaritySearch(ctx, query, semantic.FieldAddress, limit, StrategyAddress, true)
}

// searchByContext always searches the combined embedding.
func (e *Engine) searchByContext(ctx context.Context, query string, limit int) ([]domain.RetrievedRecord, error) {
	return e.similaritySearch(ctx, query, semantic.FieldCombined, limit, StrategyContext, true)
}

// searchRecent fetches candidates by address substring match (or all rows
// when the query is empty), sorts by timestamp descending, and truncates.
// No embedding step. A failed filtered query degrades to the unfiltered
// match-all query rather than surfacing an error.
func (e *Engine) searchRecent(ctx context.Context, query string, limit int) ([]domain.RetrievedRecord, error) {
	match := strings.TrimSpace(query)

	queryCtx, cancel := context.WithTimeout(ctx, e.opts.SearchTimeout)
	defer cancel()

	rows, err := e.store.Query(queryCtx, match, limit*recencyOverFetch)
	if err != nil && match != "" {
		e.logger.Warn("retrieval: filtered recency query failed, fetching all", "err", err)
		// The filtered attempt may have died by deadline; the unfiltered
		// retry gets its own timeout instead of the exhausted one.
		retryCtx, retryCancel := context.WithTimeout(ctx, e.opts.SearchTimeout)
		defer retryCancel()
		rows, err = e.store.Query(retryCtx, "", limit*recencyOverFetch)
	}
	if err != nil {
		return nil, err
	}

	recs := make([]domain.RetrievedRecord, len(rows))
	for i, row := range rows {
		recs[i] = fromRow(row, StrategyRecency, true)
		recs[i].SimilarityScore = 0.0
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Timestamp > recs[j].Timestamp
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return assignRanks(recs), nil
}

// run dispatches a strategy tag to its implementation.
func (e *Engine) run(ctx context.Context, tag Strategy, query string, limit int) ([]domain.RetrievedRecord, error) {
	switch tag {
	case StrategyRecency:
		return e.searchRecent(ctx, query, limit)
	case StrategyContext:
		return e.searchByContext(ctx, query, limit)
	case StrategyAddress:
		return e.searchByAddress(ctx, query, limit)
	default:
		return e.searchSimilar(ctx, query, semantic.FieldCombined, limit)
	}
}
