package semantic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AquaScanAI/aquascan-mvp/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

type fakePoints struct {
	upserted  []*pb.UpsertPoints
	searched  []*pb.SearchPoints
	scrolled  []*pb.ScrollPoints
	indexed   []*pb.CreateFieldIndexCollection
	searchRes []*pb.ScoredPoint
	scrollRes []*pb.RetrievedPoint
	err       error
	indexErr  error
}

func (f *fakePoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.upserted = append(f.upserted, in)
	return &pb.PointsOperationResponse{}, f.err
}

func (f *fakePoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	f.searched = append(f.searched, in)
	if f.err != nil {
		return nil, f.err
	}
	return &pb.SearchResponse{Result: f.searchRes}, nil
}

func (f *fakePoints) Scroll(_ context.Context, in *pb.ScrollPoints, _ ...grpc.CallOption) (*pb.ScrollResponse, error) {
	f.scrolled = append(f.scrolled, in)
	if f.err != nil {
		return nil, f.err
	}
	return &pb.ScrollResponse{Result: f.scrollRes}, nil
}

func (f *fakePoints) CreateFieldIndex(_ context.Context, in *pb.CreateFieldIndexCollection, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.indexed = append(f.indexed, in)
	if f.indexErr != nil {
		return nil, f.indexErr
	}
	return &pb.PointsOperationResponse{}, nil
}

type fakeCollections struct {
	existing []string
	created  []*pb.CreateCollection
	listErr  error
}

func (f *fakeCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	cols := make([]*pb.CollectionDescription, len(f.existing))
	for i, name := range f.existing {
		cols[i] = &pb.CollectionDescription{Name: name}
	}
	return &pb.ListCollectionsResponse{Collections: cols}, nil
}

func (f *fakeCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.created = append(f.created, in)
	return &pb.CollectionOperationResponse{}, nil
}

type fakeHealth struct {
	err   error
	calls int
}

func (f *fakeHealth) HealthCheck(_ context.Context, _ *pb.HealthCheckRequest, _ ...grpc.CallOption) (*pb.HealthCheckReply, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &pb.HealthCheckReply{Version: "test"}, nil
}

func testStore(dims int) (*Store, *fakePoints, *fakeCollections, *fakeHealth) {
	points := &fakePoints{}
	cols := &fakeCollections{}
	health := &fakeHealth{}
	return NewWithClients(points, cols, health, "readings_test", dims), points, cols, health
}

func testReading(dims int) domain.StoredReading {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = 0.5
	}
	return domain.StoredReading{
		ID:                "meter_100_abc",
		City:              "Springfield",
		StreetName:        "Main St",
		StreetNumber:      "42",
		FullAddress:       "42 Main St, Springfield",
		MeterValue:        123.4,
		Confidence:        0.9,
		Units:             "cubic_meters",
		MeterType:         "analog",
		Timestamp:         100,
		AddressEmbedding:  vec,
		CombinedEmbedding: vec,
	}
}

func TestReady_CreatesCollectionOnce(t *testing.T) {
	store, _, cols, health := testStore(4)
	ctx := context.Background()

	if err := store.Ready(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := store.Ready(ctx); err != nil {
		t.Fatalf("second ready: %v", err)
	}

	if health.calls != 1 {
		t.Errorf("expected 1 health check, got %d", health.calls)
	}
	if len(cols.created) != 1 {
		t.Fatalf("expected 1 collection create, got %d", len(cols.created))
	}

	cfg := cols.created[0].GetVectorsConfig().GetParamsMap().GetMap()
	for _, field := range []string{FieldAddress, FieldCombined} {
		params, ok := cfg[field]
		if !ok {
			t.Fatalf("missing vector params for field %q", field)
		}
		if params.GetSize() != 4 {
			t.Errorf("field %q size = %d, want 4", field, params.GetSize())
		}
		if params.GetDistance() != pb.Distance_Euclid {
			t.Errorf("field %q distance = %v, want Euclid", field, params.GetDistance())
		}
	}
}

func TestReady_SkipsCreateWhenCollectionExists(t *testing.T) {
	store, points, cols, _ := testStore(4)
	cols.existing = []string{"readings_test"}

	if err := store.Ready(context.Background()); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if len(cols.created) != 0 {
		t.Errorf("expected no creates, got %d", len(cols.created))
	}
	// Text indexes are still ensured on pre-existing collections.
	if len(points.indexed) != 3 {
		t.Errorf("expected 3 index requests, got %d", len(points.indexed))
	}
}

func TestReady_CreatesTextIndexesForMatchFields(t *testing.T) {
	store, points, _, _ := testStore(4)

	if err := store.Ready(context.Background()); err != nil {
		t.Fatalf("ready: %v", err)
	}

	want := map[string]bool{"full_address": false, "city": false, "street_name": false}
	for _, req := range points.indexed {
		want[req.GetFieldName()] = true
		if req.GetFieldType() != pb.FieldType_FieldTypeText {
			t.Errorf("field %q type = %v, want text", req.GetFieldName(), req.GetFieldType())
		}
		params := req.GetFieldIndexParams().GetTextIndexParams()
		if params.GetTokenizer() != pb.TokenizerType_Prefix {
			t.Errorf("field %q tokenizer = %v, want prefix", req.GetFieldName(), params.GetTokenizer())
		}
		if !params.GetLowercase() {
			t.Errorf("field %q must be lowercased", req.GetFieldName())
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("no index request for field %q", field)
		}
	}

	// The second Ready is a flag read; no further index requests.
	if err := store.Ready(context.Background()); err != nil {
		t.Fatalf("second ready: %v", err)
	}
	if len(points.indexed) != 3 {
		t.Errorf("expected 3 index requests total, got %d", len(points.indexed))
	}
}

func TestReady_IndexFailureIsNotReady(t *testing.T) {
	store, points, _, _ := testStore(4)
	points.indexErr = errors.New("index rejected")

	if err := store.Ready(context.Background()); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestReady_UnreachableStore(t *testing.T) {
	saved := connectRetry
	connectRetry.InitialWait = time.Millisecond
	connectRetry.MaxWait = time.Millisecond
	defer func() { connectRetry = saved }()

	store, _, _, health := testStore(4)
	health.err = errors.New("connection refused")

	err := store.Ready(context.Background())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if health.calls != 3 {
		t.Errorf("expected 3 connect attempts, got %d", health.calls)
	}

	// A later call may retry and succeed.
	health.err = nil
	health.calls = 0
	if err := store.Ready(context.Background()); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
}

func TestUpsert_NamedVectorsAndPayload(t *testing.T) {
	store, points, _, _ := testStore(4)
	r := testReading(4)

	if err := store.Upsert(context.Background(), r); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if len(points.upserted) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(points.upserted))
	}

	req := points.upserted[0]
	if !req.GetWait() {
		t.Error("expected wait=true")
	}
	if len(req.GetPoints()) != 1 {
		t.Fatalf("expected 1 point, got %d", len(req.GetPoints()))
	}

	point := req.GetPoints()[0]
	if got := point.GetId().GetUuid(); got != PointID(r.ID) {
		t.Errorf("point ID = %q, want %q", got, PointID(r.ID))
	}

	named := point.GetVectors().GetVectors().GetVectors()
	if len(named[FieldAddress].GetData()) != 4 || len(named[FieldCombined].GetData()) != 4 {
		t.Error("expected both named vectors with 4 dims")
	}

	payload := point.GetPayload()
	if payload["id"].GetStringValue() != r.ID {
		t.Errorf("payload id = %q", payload["id"].GetStringValue())
	}
	if payload["meter_value"].GetDoubleValue() != 123.4 {
		t.Errorf("payload meter_value = %v", payload["meter_value"].GetDoubleValue())
	}
	if payload["timestamp"].GetIntegerValue() != 100 {
		t.Errorf("payload timestamp = %v", payload["timestamp"].GetIntegerValue())
	}
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	store, points, _, _ := testStore(8)
	r := testReading(4) // wrong width

	err := store.Upsert(context.Background(), r)
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if len(points.upserted) != 0 {
		t.Error("mismatched reading must not reach the store")
	}
}

func TestSearch_UsesNamedField(t *testing.T) {
	store, points, _, _ := testStore(4)
	points.searchRes = []*pb.ScoredPoint{
		{
			Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "p1"}},
			Score: 0.25,
			Payload: map[string]*pb.Value{
				"id": {Kind: &pb.Value_StringValue{StringValue: "meter_1_a"}},
			},
		},
	}

	rows, err := store.Search(context.Background(), FieldCombined, []float32{1, 2, 3, 4}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	req := points.searched[0]
	if req.GetVectorName() != FieldCombined {
		t.Errorf("vector name = %q, want %q", req.GetVectorName(), FieldCombined)
	}
	if req.GetLimit() != 5 {
		t.Errorf("limit = %d, want 5", req.GetLimit())
	}
	if len(rows) != 1 || rows[0].ID != "p1" || rows[0].Score != 0.25 {
		t.Errorf("unexpected rows: %+v", rows)
	}
	if rows[0].Payload["id"] != "meter_1_a" {
		t.Errorf("payload not decoded: %+v", rows[0].Payload)
	}
}

func TestSearch_StoreError(t *testing.T) {
	store, points, _, _ := testStore(4)
	if err := store.Ready(context.Background()); err != nil {
		t.Fatalf("ready: %v", err)
	}
	points.err = errors.New("boom")

	_, err := store.Search(context.Background(), FieldAddress, []float32{1, 2, 3, 4}, 5)
	if !errors.Is(err, domain.ErrStoreQuery) {
		t.Fatalf("expected ErrStoreQuery, got %v", err)
	}
}

func TestQuery_FilterConstruction(t *testing.T) {
	store, points, _, _ := testStore(4)

	_, err := store.Query(context.Background(), "Main St", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	filter := points.scrolled[0].GetFilter()
	if filter == nil {
		t.Fatal("expected a filter for non-empty match text")
	}
	should := filter.GetShould()
	if len(should) != 3 {
		t.Fatalf("expected 3 should conditions, got %d", len(should))
	}
	keys := map[string]bool{}
	for _, cond := range should {
		fc := cond.GetField()
		keys[fc.GetKey()] = true
		if fc.GetMatch().GetText() != "Main St" {
			t.Errorf("condition %q match = %q", fc.GetKey(), fc.GetMatch().GetText())
		}
	}
	for _, k := range []string{"full_address", "city", "street_name"} {
		if !keys[k] {
			t.Errorf("missing condition on %q", k)
		}
	}
}

func TestQuery_EmptyTextMatchesAll(t *testing.T) {
	store, points, _, _ := testStore(4)

	_, err := store.Query(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if points.scrolled[0].GetFilter() != nil {
		t.Error("empty match text must scan without a filter")
	}
}

func TestPayloadToAny_DropsUnknownKinds(t *testing.T) {
	payload := map[string]*pb.Value{
		"s":    {Kind: &pb.Value_StringValue{StringValue: "x"}},
		"i":    {Kind: &pb.Value_IntegerValue{IntegerValue: 7}},
		"d":    {Kind: &pb.Value_DoubleValue{DoubleValue: 1.5}},
		"b":    {Kind: &pb.Value_BoolValue{BoolValue: true}},
		"list": {Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{}}},
	}
	out := payloadToAny(payload)
	if out["s"] != "x" || out["i"] != int64(7) || out["d"] != 1.5 || out["b"] != true {
		t.Errorf("scalar decode wrong: %+v", out)
	}
	if _, ok := out["list"]; ok {
		t.Error("list kinds must be dropped")
	}
}

func TestPointID_Deterministic(t *testing.T) {
	a := PointID("meter_1_abc")
	b := PointID("meter_1_abc")
	c := PointID("meter_2_def")
	if a != b {
		t.Error("same reading ID must map to same point ID")
	}
	if a == c {
		t.Error("different reading IDs must map to different point IDs")
	}
}
