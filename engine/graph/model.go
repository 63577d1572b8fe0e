// Package graph provides Neo4j address topology operations: cities contain
// streets, streets carry metered service points.
package graph

// City is a city node.
type City struct {
	Name string `json:"name"`
}

// Street is a street node within a city.
type Street struct {
	Name string `json:"name"`
	City string `json:"city"`
}

// Meter is a metered service point at a street address. LastValue and
// LastSeen track the most recent reading stored for this address.
type Meter struct {
	ID           string  `json:"id"`
	StreetNumber string  `json:"street_number"`
	StreetName   string  `json:"street_name"`
	City         string  `json:"city"`
	FullAddress  string  `json:"full_address"`
	MeterType    string  `json:"meter_type"`
	LastValue    float64 `json:"last_value"`
	LastSeen     int64   `json:"last_seen"`
}

// StreetSummary aggregates the meters known on one street.
type StreetSummary struct {
	Street     string  `json:"street"`
	City       string  `json:"city"`
	MeterCount int     `json:"meter_count"`
	TotalValue float64 `json:"total_value"`
}
