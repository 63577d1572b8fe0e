package graph

import "testing"

func TestMeterFromProps(t *testing.T) {
	props := map[string]any{
		"id":            "Springfield|Main St|42",
		"street_number": "42",
		"street_name":   "Main St",
		"city":          "Springfield",
		"full_address":  "42 Main St, Springfield",
		"meter_type":    "analog",
		"last_value":    123.4,
		"last_seen":     int64(100),
	}
	m := meterFromProps(props)
	if m.ID != "Springfield|Main St|42" {
		t.Errorf("id = %q", m.ID)
	}
	if m.FullAddress != "42 Main St, Springfield" {
		t.Errorf("full address = %q", m.FullAddress)
	}
	if m.LastValue != 123.4 {
		t.Errorf("last value = %v", m.LastValue)
	}
	if m.LastSeen != 100 {
		t.Errorf("last seen = %v", m.LastSeen)
	}
}

func TestMeterRoundTrip(t *testing.T) {
	m := Meter{
		ID:           "Springfield|Main St|42",
		StreetNumber: "42",
		StreetName:   "Main St",
		City:         "Springfield",
		FullAddress:  "42 Main St, Springfield",
		MeterType:    "digital",
		LastValue:    55.5,
		LastSeen:     200,
	}
	got := meterFromProps(meterToMap(m))
	if got != m {
		t.Errorf("round trip changed the meter:\n got %+v\nwant %+v", got, m)
	}
}

func TestPropCoercions(t *testing.T) {
	// Neo4j integers arrive as int64; numbers written by other tools may
	// come back as float64. Both must decode.
	props := map[string]any{
		"last_value": int64(10),
		"last_seen":  float64(99),
	}
	if got := floatProp(props, "last_value"); got != 10 {
		t.Errorf("floatProp int64 = %v", got)
	}
	if got := intProp(props, "last_seen"); got != 99 {
		t.Errorf("intProp float64 = %v", got)
	}
	if got := strProp(props, "missing"); got != "" {
		t.Errorf("missing key = %q", got)
	}
	if got := floatProp(map[string]any{"last_value": "nope"}, "last_value"); got != 0 {
		t.Errorf("foreign type = %v", got)
	}
}

func TestMeterNodeID(t *testing.T) {
	a := meterNodeID("Springfield", "Main St", "42")
	b := meterNodeID("Springfield", "Main St", "42")
	c := meterNodeID("Springfield", "Main St", "43")
	if a != b {
		t.Error("same address must map to the same node ID")
	}
	if a == c {
		t.Error("different addresses must map to different node IDs")
	}
}
