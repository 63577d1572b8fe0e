package retrieval

import (
	"github.com/AquaScanAI/aquascan-mvp/engine/domain"
	"github.com/AquaScanAI/aquascan-mvp/engine/semantic"
)

// Per-kind conversion functions for store payload values. The store is
// treated as possibly-partial: a missing or foreign-typed field coerces to
// its zero value instead of surfacing an error.

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

// fromRow converts one store-native row into the canonical record shape,
// tagged with the strategy that produced it. Rank is assigned later by
// assignRanks. withAddress controls whether the raw address component
// fields are surfaced.
func fromRow(row semantic.Row, tag Strategy, withAddress bool) domain.RetrievedRecord {
	p := row.Payload
	rec := domain.RetrievedRecord{
		ID:              asString(p["id"]),
		MeterValue:      asFloat(p["meter_value"]),
		FullAddress:     asString(p["full_address"]),
		Confidence:      asFloat(p["confidence"]),
		Timestamp:       asInt64(p["timestamp"]),
		SimilarityScore: float64(row.Score),
		SearchType:      tag.String(),
	}
	if rec.ID == "" {
		rec.ID = row.ID
	}
	if withAddress {
		rec.City = asString(p["city"])
		rec.StreetName = asString(p["street_name"])
		rec.StreetNumber = asString(p["street_number"])
	}
	return Normalize(rec)
}

// Normalize applies the canonical field coercions to a record. Idempotent:
// normalizing an already-normalized record returns it unchanged.
func Normalize(rec domain.RetrievedRecord) domain.RetrievedRecord {
	rec.Confidence = domain.ClampConfidence(rec.Confidence)
	if rec.MeterValue < 0 {
		rec.MeterValue = 0
	}
	if rec.SimilarityScore < 0 {
		rec.SimilarityScore = 0
	}
	if rec.Rank < 0 {
		rec.Rank = 0
	}
	return rec
}

// assignRanks stamps 1-based contiguous ranks in sequence order.
func assignRanks(recs []domain.RetrievedRecord) []domain.RetrievedRecord {
	for i := range recs {
		recs[i].Rank = i + 1
	}
	return recs
}
