// Package retrieval implements the query-routing and multi-strategy
// semantic retrieval engine: a keyword router picks one of four search
// strategies, a fallback orchestrator degrades through alternatives when a
// strategy comes back empty, and a normalizer folds store-native rows into
// one canonical ranked record shape.
package retrieval

import "strings"

// Strategy tags the retrieval strategy chosen for a question.
type Strategy int

const (
	// StrategySimilarity is the default: nearest-neighbor search over the
	// combined embedding.
	StrategySimilarity Strategy = iota
	// StrategyRecency orders by timestamp, newest first.
	StrategyRecency
	// StrategyContext searches the combined embedding for usage questions.
	StrategyContext
	// StrategyAddress searches the address embedding for location questions.
	StrategyAddress
)

func (s Strategy) String() string {
	switch s {
	case StrategyRecency:
		return "recency"
	case StrategyContext:
		return "context"
	case StrategyAddress:
		return "address"
	default:
		return "similarity"
	}
}

// rule pairs a strategy with the keywords that trigger it.
type rule struct {
	tag      Strategy
	keywords []string
}

// routingRules is evaluated in order; the first matching rule wins, so a
// question containing both "usage" and "street" routes to Context. The
// order is fixed: Recency > Context > Address > default.
var routingRules = []rule{
	{StrategyRecency, []string{"last", "latest", "recent", "newest", "most recent"}},
	{StrategyContext, []string{"usage", "high", "low", "consumption", "similar", "pattern", "highest", "lowest"}},
	{StrategyAddress, []string{"address", "street", "city", "location", "where", "at"}},
}

// Classify routes a question to a strategy by case-insensitive substring
// matching against the ordered rule table. Pure function, no I/O.
func Classify(question string) Strategy {
	q := strings.ToLower(question)
	for _, r := range routingRules {
		for _, kw := range r.keywords {
			if strings.Contains(q, kw) {
				return r.tag
			}
		}
	}
	return StrategySimilarity
}
