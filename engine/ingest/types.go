package ingest

import "github.com/AquaScanAI/aquascan-mvp/engine/domain"

// AnalyzedReading is an upload after vision extraction: the photo's address
// plus whatever the model could read off the dial.
type AnalyzedReading struct {
	Address domain.AddressInfo
	Vision  domain.VisionResult
}

// BackfillReading is one pre-extracted reading arriving over NATS, used to
// replay historical data without re-running the vision model.
type BackfillReading struct {
	City         string  `json:"city"`
	StreetName   string  `json:"street_name"`
	StreetNumber string  `json:"street_number"`
	MeterValue   float64 `json:"meter_value"`
	Confidence   float64 `json:"confidence"`
	Units        string  `json:"units"`
	MeterType    string  `json:"meter_type"`
	Timestamp    int64   `json:"timestamp,omitempty"`
}

// StoredEvent is published after a reading lands in the vector store.
type StoredEvent struct {
	ReadingID   string  `json:"reading_id"`
	FullAddress string  `json:"full_address"`
	MeterValue  float64 `json:"meter_value"`
	Timestamp   int64   `json:"timestamp"`
}
