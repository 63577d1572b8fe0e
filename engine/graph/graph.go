package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/AquaScanAI/aquascan-mvp/engine/domain"
	"github.com/AquaScanAI/aquascan-mvp/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// GraphStore provides address topology operations on top of the generic
// Neo4j repository.
type GraphStore struct {
	driver neo4j.DriverWithContext
	meters *repo.Neo4jRepo[Meter, string]
}

// New creates a new GraphStore.
func New(driver neo4j.DriverWithContext) *GraphStore {
	return &GraphStore{
		driver: driver,
		meters: newMeterRepo(driver),
	}
}

// GetMeter returns a meter node by ID.
func (g *GraphStore) GetMeter(ctx context.Context, id string) (Meter, error) {
	return g.meters.Get(ctx, id)
}

// SaveReadingLocation records where a reading was taken. The meter node goes
// through the repository merge, which rolls its last observed value forward;
// the city, street, and containment edges are merged in a second write.
func (g *GraphStore) SaveReadingLocation(ctx context.Context, r domain.StoredReading) error {
	meter := Meter{
		ID:           meterNodeID(r.City, r.StreetName, r.StreetNumber),
		StreetNumber: r.StreetNumber,
		StreetName:   r.StreetName,
		City:         r.City,
		FullAddress:  r.FullAddress,
		MeterType:    r.MeterType,
		LastValue:    r.MeterValue,
		LastSeen:     r.Timestamp,
	}
	if _, err := g.meters.Merge(ctx, meter); err != nil {
		return fmt.Errorf("graph: merge meter: %w", err)
	}

	sess := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cypher := `MERGE (c:City {name: $city})
				   MERGE (s:Street {name: $street, city: $city})
				   MERGE (s)-[:IN_CITY]->(c)
				   WITH s
				   MATCH (m:Meter {id: $id})
				   MERGE (m)-[:ON_STREET]->(s)`
		_, err := tx.Run(ctx, cypher, map[string]any{
			"city":   r.City,
			"street": r.StreetName,
			"id":     meter.ID,
		})
		return nil, err
	})
	return err
}

// MetersOnStreet returns all meters known on a street in a city, ordered by
// street number.
func (g *GraphStore) MetersOnStreet(ctx context.Context, city, street string) ([]Meter, error) {
	meters, err := g.meters.List(ctx, repo.ListOpts{
		Filter: map[string]any{"city": city, "street_name": street},
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(meters, func(i, j int) bool {
		return meters[i].StreetNumber < meters[j].StreetNumber
	})
	return meters, nil
}

// DeleteMeter removes a meter node from the topology. Meter nodes are
// derived from readings; the next upload for the address recreates one.
func (g *GraphStore) DeleteMeter(ctx context.Context, id string) error {
	return g.meters.Delete(ctx, id)
}

// CityStreets returns the streets recorded in a city.
func (g *GraphStore) CityStreets(ctx context.Context, city string) ([]Street, error) {
	sess := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (s:Street)-[:IN_CITY]->(:City {name: $city})
			   RETURN s.name AS name ORDER BY name`
	result, err := sess.Run(ctx, cypher, map[string]any{"city": city})
	if err != nil {
		return nil, err
	}

	var streets []Street
	for result.Next(ctx) {
		name, _, err := neo4j.GetRecordValue[string](result.Record(), "name")
		if err != nil {
			return nil, err
		}
		streets = append(streets, Street{Name: name, City: city})
	}
	return streets, nil
}

// SummarizeStreet aggregates meter counts and last observed values for one
// street. Used to enrich chat answers about a neighborhood.
func (g *GraphStore) SummarizeStreet(ctx context.Context, city, street string) (StreetSummary, error) {
	sess := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (n:Meter)-[:ON_STREET]->(:Street {name: $street, city: $city})
			   RETURN count(n) AS meters, coalesce(sum(n.last_value), 0.0) AS total`
	result, err := sess.Run(ctx, cypher, map[string]any{"city": city, "street": street})
	if err != nil {
		return StreetSummary{}, err
	}
	if !result.Next(ctx) {
		return StreetSummary{}, fmt.Errorf("graph: no summary for %s, %s", street, city)
	}

	rec := result.Record()
	meters, _, err := neo4j.GetRecordValue[int64](rec, "meters")
	if err != nil {
		return StreetSummary{}, err
	}
	total, _, err := neo4j.GetRecordValue[float64](rec, "total")
	if err != nil {
		return StreetSummary{}, err
	}
	return StreetSummary{
		Street:     street,
		City:       city,
		MeterCount: int(meters),
		TotalValue: total,
	}, nil
}

// Health verifies connectivity to the Neo4j instance.
func (g *GraphStore) Health(ctx context.Context) error {
	return g.driver.VerifyConnectivity(ctx)
}

// meterNodeID derives a stable node ID from the address parts, so repeat
// uploads for the same address update one node instead of creating more.
func meterNodeID(city, street, number string) string {
	return fmt.Sprintf("%s|%s|%s", city, street, number)
}
