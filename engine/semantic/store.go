// Package semantic owns all Qdrant operations for the readings collection:
// collection bootstrap, reading upserts, vector similarity search per named
// vector field, and scalar-filtered scans.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AquaScanAI/aquascan-mvp/engine/domain"
	"github.com/AquaScanAI/aquascan-mvp/pkg/fn"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// connectRetry bounds the store connect path: 3 attempts, fixed 2s delay.
var connectRetry = fn.RetryOpts{
	MaxAttempts: 3,
	InitialWait: 2 * time.Second,
	MaxWait:     2 * time.Second,
}

// pointsClient is the subset of pb.PointsClient the store uses.
type pointsClient interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
	CreateFieldIndex(ctx context.Context, in *pb.CreateFieldIndexCollection, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// matchFields are the payload fields the scalar text filter matches on.
// Each carries a full-text index with prefix tokenization.
var matchFields = []string{"full_address", "city", "street_name"}

// collectionsClient is the subset of pb.CollectionsClient the store uses.
type collectionsClient interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// healthClient is the subset of pb.QdrantClient the store uses.
type healthClient interface {
	HealthCheck(ctx context.Context, in *pb.HealthCheckRequest, opts ...grpc.CallOption) (*pb.HealthCheckReply, error)
}

// Store is the sole owner of the Qdrant readings collection.
type Store struct {
	conn        *grpc.ClientConn
	points      pointsClient
	collections collectionsClient
	health      healthClient
	collection  string
	dims        int
	logger      *slog.Logger

	mu    sync.Mutex
	ready bool
}

// New creates a Store for the given gRPC address. The dial itself is lazy;
// Ready performs the bounded connect check and collection bootstrap.
func New(addr, collection string, dims int, logger *slog.Logger) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		health:      pb.NewQdrantClient(conn),
		collection:  collection,
		dims:        dims,
		logger:      logger,
	}, nil
}

// NewWithClients creates a Store from injected clients. Used in tests.
func NewWithClients(points pointsClient, collections collectionsClient, health healthClient, collection string, dims int) *Store {
	return &Store{
		points:      points,
		collections: collections,
		health:      health,
		collection:  collection,
		dims:        dims,
		logger:      slog.Default(),
	}
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Dims returns the configured embedding dimensionality.
func (s *Store) Dims() int { return s.dims }

// Ready verifies the store connection and ensures the collection exists.
// The check runs once per process lifetime; after the first success it is
// a cheap flag read, safe under concurrent first use. A failed attempt
// leaves the store not-ready so a later call can try again.
func (s *Store) Ready(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	res := fn.Retry(ctx, connectRetry, func(ctx context.Context) fn.Result[*pb.HealthCheckReply] {
		return fn.FromPair(s.health.HealthCheck(ctx, &pb.HealthCheckRequest{}))
	})
	if reply, err := res.Unwrap(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	} else {
		s.logger.Info("semantic: store reachable", "version", reply.GetVersion())
	}

	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	s.ready = true
	return nil
}

// ensureCollection creates the readings collection with both named vector
// fields if it does not exist. Must hold mu.
func (s *Store) ensureCollection(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("%w: list collections: %v", domain.ErrStoreUnavailable, err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return s.ensureTextIndexes(ctx)
		}
	}

	d := uint64(s.dims)
	params := map[string]*pb.VectorParams{
		FieldAddress:  {Size: d, Distance: pb.Distance_Euclid},
		FieldCombined: {Size: d, Distance: pb.Distance_Euclid},
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_ParamsMap{
				ParamsMap: &pb.VectorParamsMap{Map: params},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: create collection %s: %v", domain.ErrStoreUnavailable, s.collection, err)
	}
	s.logger.Info("semantic: created collection", "collection", s.collection, "dims", s.dims)
	return s.ensureTextIndexes(ctx)
}

// ensureTextIndexes creates the full-text payload indexes the scalar match
// filter needs. Prefix tokenization with lowercasing makes the match
// case-insensitive and lets a partial word like "spring" hit "Springfield".
// Creation is idempotent, so it also runs for pre-existing collections.
func (s *Store) ensureTextIndexes(ctx context.Context) error {
	lowercase := true
	for _, field := range matchFields {
		_, err := s.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      pb.FieldType_FieldTypeText.Enum(),
			FieldIndexParams: &pb.PayloadIndexParams{
				IndexParams: &pb.PayloadIndexParams_TextIndexParams{
					TextIndexParams: &pb.TextIndexParams{
						Tokenizer: pb.TokenizerType_Prefix,
						Lowercase: &lowercase,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("%w: index %s: %v", domain.ErrStoreUnavailable, field, err)
		}
	}
	return nil
}

// PointID derives the deterministic point UUID for a reading ID.
func PointID(readingID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(readingID)).String()
}

// Upsert writes one reading with both embeddings. Dimension mismatch is a
// write-time error; readings are never updated in place, so a repeated ID
// simply overwrites the identical point.
func (s *Store) Upsert(ctx context.Context, r domain.StoredReading) error {
	if err := s.Ready(ctx); err != nil {
		return err
	}
	if len(r.AddressEmbedding) != s.dims || len(r.CombinedEmbedding) != s.dims {
		return fmt.Errorf("%w: address=%d combined=%d want=%d",
			domain.ErrDimensionMismatch, len(r.AddressEmbedding), len(r.CombinedEmbedding), s.dims)
	}

	point := &pb.PointStruct{
		Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(r.ID)}},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vectors{
				Vectors: &pb.NamedVectors{
					Vectors: map[string]*pb.Vector{
						FieldAddress:  {Data: r.AddressEmbedding},
						FieldCombined: {Data: r.CombinedEmbedding},
					},
				},
			},
		},
		Payload: readingPayload(r),
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         []*pb.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert reading %s: %w", r.ID, err)
	}
	return nil
}

// Search performs k-NN search against one named vector field. Results come
// back in the store's native order: ascending L2 distance.
func (s *Store) Search(ctx context.Context, field string, vector []float32, limit int) ([]Row, error) {
	if err := s.Ready(ctx); err != nil {
		return nil, err
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		VectorName:     &field,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %v", domain.ErrStoreQuery, field, err)
	}

	rows := make([]Row, len(resp.GetResult()))
	for i, p := range resp.GetResult() {
		rows[i] = Row{
			ID:      p.GetId().GetUuid(),
			Score:   p.GetScore(),
			Payload: payloadToAny(p.GetPayload()),
		}
	}
	return rows, nil
}

// Query scans rows whose address fields match the given text, unordered.
// An empty matchText matches all rows. The user text enters the request
// only as a match parameter, never as expression syntax.
func (s *Store) Query(ctx context.Context, matchText string, limit int) ([]Row, error) {
	if err := s.Ready(ctx); err != nil {
		return nil, err
	}
	l := uint32(limit)
	resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: s.collection,
		Filter:         addressFilter(matchText),
		Limit:          &l,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scroll: %v", domain.ErrStoreQuery, err)
	}

	rows := make([]Row, len(resp.GetResult()))
	for i, p := range resp.GetResult() {
		rows[i] = Row{
			ID:      p.GetId().GetUuid(),
			Payload: payloadToAny(p.GetPayload()),
		}
	}
	return rows, nil
}

// List scans up to limit rows without any filter.
func (s *Store) List(ctx context.Context, limit int) ([]Row, error) {
	return s.Query(ctx, "", limit)
}

// addressFilter builds an OR-of-text-match filter over the address fields,
// or nil for a match-all scan.
func addressFilter(matchText string) *pb.Filter {
	if matchText == "" {
		return nil
	}
	should := make([]*pb.Condition, len(matchFields))
	for i, f := range matchFields {
		should[i] = &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   f,
					Match: &pb.Match{MatchValue: &pb.Match_Text{Text: matchText}},
				},
			},
		}
	}
	return &pb.Filter{Should: should}
}

// readingPayload maps a reading's scalar fields onto the wire value union.
func readingPayload(r domain.StoredReading) map[string]*pb.Value {
	return map[string]*pb.Value{
		"id":            strVal(r.ID),
		"city":          strVal(r.City),
		"street_name":   strVal(r.StreetName),
		"street_number": strVal(r.StreetNumber),
		"full_address":  strVal(r.FullAddress),
		"meter_value":   {Kind: &pb.Value_DoubleValue{DoubleValue: r.MeterValue}},
		"confidence":    {Kind: &pb.Value_DoubleValue{DoubleValue: r.Confidence}},
		"units":         strVal(r.Units),
		"meter_type":    strVal(r.MeterType),
		"timestamp":     {Kind: &pb.Value_IntegerValue{IntegerValue: r.Timestamp}},
	}
}

func strVal(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

// payloadToAny unboxes wire values into plain Go scalars. Kinds the schema
// never produces (structs, lists) are dropped; the normalizer zero-fills
// anything missing.
func payloadToAny(payload map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch kind := v.GetKind().(type) {
		case *pb.Value_StringValue:
			out[k] = kind.StringValue
		case *pb.Value_IntegerValue:
			out[k] = kind.IntegerValue
		case *pb.Value_DoubleValue:
			out[k] = kind.DoubleValue
		case *pb.Value_BoolValue:
			out[k] = kind.BoolValue
		}
	}
	return out
}
