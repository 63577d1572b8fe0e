package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AquaScanAI/aquascan-mvp/engine/domain"
	"github.com/google/uuid"
)

// visionPrompt instructs the extraction model. The model is told to answer
// with bare JSON; parseVisionJSON tolerates prose around it anyway.
const visionPrompt = `You are reading a utility meter photograph taken at %s.
Respond with only a JSON object with these fields:
  "meter_value": the number shown on the meter dial (0 if unreadable),
  "confidence": your confidence from 0.0 to 1.0,
  "meter_type": "analog", "digital", or "unknown",
  "units": the measurement units if printed on the meter,
  "notes": anything unusual about the meter or photo,
  "reading_visible": whether the dial is legible.`

// parseVisionJSON extracts the JSON object from raw model output. Models
// wrap answers in prose, so it takes the span from the first '{' to the
// last '}'. Anything unparsable yields a zeroed result, never a guess.
func parseVisionJSON(raw string) (domain.VisionResult, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return domain.VisionResult{Notes: "no JSON in model output"}, false
	}

	var v domain.VisionResult
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return domain.VisionResult{Notes: "unparsable model output"}, false
	}
	return v, true
}

// applyVisionDefaults fills fields the model omitted and clamps confidence.
func applyVisionDefaults(v domain.VisionResult) domain.VisionResult {
	if v.Units == "" {
		v.Units = domain.DefaultUnits
	}
	if v.MeterType == "" {
		v.MeterType = domain.DefaultMeterType
	}
	v.Confidence = domain.ClampConfidence(v.Confidence)
	if v.MeterValue < 0 {
		v.MeterValue = 0
	}
	return v
}

// newReadingID generates an ID like "meter_1735689600_a1b2c3d4".
func newReadingID(now time.Time) string {
	return fmt.Sprintf("meter_%d_%s", now.Unix(), uuid.NewString()[:8])
}

// combinedSentence is the natural-language rendering of a reading that
// feeds the combined embedding field.
func combinedSentence(r domain.StoredReading) string {
	return fmt.Sprintf("Water meter at %s reads %.2f %s", r.FullAddress, r.MeterValue, r.Units)
}

// buildReading turns an analyzed upload into a StoredReading, stamping the
// ID and timestamp.
func buildReading(a AnalyzedReading, now time.Time) domain.StoredReading {
	v := applyVisionDefaults(a.Vision)
	return domain.StoredReading{
		ID:           newReadingID(now),
		City:         a.Address.City,
		StreetName:   a.Address.StreetName,
		StreetNumber: a.Address.StreetNumber,
		FullAddress:  a.Address.FullAddress(),
		MeterValue:   v.MeterValue,
		Confidence:   v.Confidence,
		Units:        v.Units,
		MeterType:    v.MeterType,
		Timestamp:    now.Unix(),
	}
}

// readingFromBackfill maps a replayed reading onto a StoredReading,
// preserving its original timestamp when present.
func readingFromBackfill(b BackfillReading, now time.Time) domain.StoredReading {
	addr := domain.AddressInfo{
		City:         b.City,
		StreetName:   b.StreetName,
		StreetNumber: b.StreetNumber,
	}
	ts := b.Timestamp
	if ts == 0 {
		ts = now.Unix()
	}
	v := applyVisionDefaults(domain.VisionResult{
		MeterValue: b.MeterValue,
		Confidence: b.Confidence,
		Units:      b.Units,
		MeterType:  b.MeterType,
	})
	return domain.StoredReading{
		ID:           newReadingID(now),
		City:         addr.City,
		StreetName:   addr.StreetName,
		StreetNumber: addr.StreetNumber,
		FullAddress:  addr.FullAddress(),
		MeterValue:   v.MeterValue,
		Confidence:   v.Confidence,
		Units:        v.Units,
		MeterType:    v.MeterType,
		Timestamp:    ts,
	}
}
