package graph

import (
	"github.com/AquaScanAI/aquascan-mvp/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// newMeterRepo creates a Neo4j-backed repository for Meter nodes.
func newMeterRepo(driver neo4j.DriverWithContext) *repo.Neo4jRepo[Meter, string] {
	return repo.NewNeo4jRepo[Meter, string](
		driver,
		"Meter",
		meterToMap,
		meterFromRecord,
	)
}

func meterToMap(m Meter) map[string]any {
	return map[string]any{
		"id":            m.ID,
		"street_number": m.StreetNumber,
		"street_name":   m.StreetName,
		"city":          m.City,
		"full_address":  m.FullAddress,
		"meter_type":    m.MeterType,
		"last_value":    m.LastValue,
		"last_seen":     m.LastSeen,
	}
}

func meterFromRecord(rec *neo4j.Record) (Meter, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return Meter{}, err
	}
	return meterFromProps(node.Props), nil
}

func meterFromProps(props map[string]any) Meter {
	return Meter{
		ID:           strProp(props, "id"),
		StreetNumber: strProp(props, "street_number"),
		StreetName:   strProp(props, "street_name"),
		City:         strProp(props, "city"),
		FullAddress:  strProp(props, "full_address"),
		MeterType:    strProp(props, "meter_type"),
		LastValue:    floatProp(props, "last_value"),
		LastSeen:     intProp(props, "last_seen"),
	}
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func floatProp(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func intProp(props map[string]any, key string) int64 {
	switch v := props[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}
