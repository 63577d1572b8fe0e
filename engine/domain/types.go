// Package domain defines core types, constants, and validation for the
// AquaScan pipeline. It acts as the validation gate at pipeline entry points.
package domain

import "fmt"

// AddressInfo identifies the location a meter reading was taken at.
type AddressInfo struct {
	City         string `json:"city"`
	StreetName   string `json:"street_name"`
	StreetNumber string `json:"street_number"`
}

// FullAddress returns the denormalized address string stored alongside
// each reading: "{street_number} {street_name}, {city}".
func (a AddressInfo) FullAddress() string {
	return fmt.Sprintf("%s %s, %s", a.StreetNumber, a.StreetName, a.City)
}

// StoredReading is one persisted meter observation. Readings are
// append-only: every upload creates a new record and nothing mutates or
// deletes them on the retrieval path.
type StoredReading struct {
	ID           string  `json:"id"`
	City         string  `json:"city"`
	StreetName   string  `json:"street_name"`
	StreetNumber string  `json:"street_number"`
	FullAddress  string  `json:"full_address"`
	MeterValue   float64 `json:"meter_value"`
	Confidence   float64 `json:"confidence"`
	Units        string  `json:"units"`
	MeterType    string  `json:"meter_type"`
	Timestamp    int64   `json:"timestamp"`

	AddressEmbedding  []float32 `json:"-"`
	CombinedEmbedding []float32 `json:"-"`
}

// RetrievedRecord is the canonical shape every retrieval strategy returns.
// SimilarityScore is an L2 distance for similarity strategies (lower is
// more similar) and 0.0 for the recency strategy, where ordering is
// temporal. Rank is the 1-based position in the returned sequence.
type RetrievedRecord struct {
	ID              string  `json:"id"`
	MeterValue      float64 `json:"meter_value"`
	FullAddress     string  `json:"full_address"`
	Confidence      float64 `json:"confidence"`
	Timestamp       int64   `json:"timestamp"`
	City            string  `json:"city,omitempty"`
	StreetName      string  `json:"street_name,omitempty"`
	StreetNumber    string  `json:"street_number,omitempty"`
	SimilarityScore float64 `json:"similarity_score"`
	Rank            int     `json:"rank"`
	SearchType      string  `json:"search_type"`
}

// VisionResult is the structured output of the vision model's meter
// extraction.
type VisionResult struct {
	MeterValue     float64 `json:"meter_value"`
	Confidence     float64 `json:"confidence"`
	MeterType      string  `json:"meter_type"`
	Units          string  `json:"units"`
	Notes          string  `json:"notes"`
	ReadingVisible bool    `json:"reading_visible"`
}

// UploadRequest carries a meter photo and its address through ingestion.
type UploadRequest struct {
	Address     AddressInfo `json:"address"`
	Image       []byte      `json:"-"`
	FileName    string      `json:"file_name,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
}

// Default values applied when the vision model omits a field.
const (
	DefaultUnits     = "cubic_meters"
	DefaultMeterType = "unknown"
)
