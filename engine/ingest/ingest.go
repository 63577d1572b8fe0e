// Package ingest provides the ingestion pipeline that turns meter photo
// uploads into stored readings: validation, vision extraction, embedding,
// and storage stages composed from fn.Stage.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/AquaScanAI/aquascan-mvp/engine/domain"
	"github.com/AquaScanAI/aquascan-mvp/engine/graph"
	"github.com/AquaScanAI/aquascan-mvp/engine/semantic"
	"github.com/AquaScanAI/aquascan-mvp/pkg/fn"
	"github.com/AquaScanAI/aquascan-mvp/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

const (
	// BackfillSubject is the NATS subject for replayed historical readings.
	BackfillSubject = "engine.readings.backfill"
	// StoredSubject announces readings that reached the vector store.
	StoredSubject = "engine.readings.stored"
	// DLQSubject is the dead letter queue for backfill messages that keep failing.
	DLQSubject = "engine.readings.backfill.dlq"
	// MaxRetries before a backfill message goes to the DLQ.
	MaxRetries = 3
)

// Vision extracts a reading from a meter photograph.
type Vision interface {
	Analyze(ctx context.Context, image []byte, prompt string) (string, error)
}

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// locationSaver is the slice of graph.GraphStore the pipeline needs.
type locationSaver interface {
	SaveReadingLocation(ctx context.Context, r domain.StoredReading) error
}

// Deps holds the external dependencies for the ingestion pipeline.
type Deps struct {
	Vision      Vision
	Embedder    Embedder
	VectorStore *semantic.Store
	GraphStore  locationSaver
	Conn        *nats.Conn // optional, events skipped when nil
	Logger      *slog.Logger
	Now         func() time.Time // defaults to time.Now
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Validate checks an upload via domain validation.
var Validate fn.Stage[domain.UploadRequest, domain.UploadRequest] = func(_ context.Context, req domain.UploadRequest) fn.Result[domain.UploadRequest] {
	if err := domain.ValidateUpload(req); err != nil {
		return fn.Err[domain.UploadRequest](err)
	}
	return fn.Ok(req)
}

// NewAnalyze creates the vision extraction stage. Unreadable model output
// does not fail the pipeline; the reading is stored with a zero value and
// zero confidence so the photo's existence is still on record.
func NewAnalyze(vision Vision, log *slog.Logger) fn.Stage[domain.UploadRequest, AnalyzedReading] {
	return func(ctx context.Context, req domain.UploadRequest) fn.Result[AnalyzedReading] {
		prompt := fmt.Sprintf(visionPrompt, req.Address.FullAddress())
		raw, err := vision.Analyze(ctx, req.Image, prompt)
		if err != nil {
			return fn.Err[AnalyzedReading](fmt.Errorf("ingest: vision: %w", err))
		}

		result, ok := parseVisionJSON(raw)
		if !ok {
			log.Warn("ingest: vision output unparsable", "address", req.Address.FullAddress())
		}
		return fn.Ok(AnalyzedReading{Address: req.Address, Vision: result})
	}
}

// NewBuild creates the stage that stamps an analyzed upload into a
// StoredReading with ID and timestamp.
func NewBuild(now func() time.Time) fn.Stage[AnalyzedReading, domain.StoredReading] {
	return fn.MapStage(func(a AnalyzedReading) domain.StoredReading {
		return buildReading(a, now())
	})
}

// NewEmbed creates the stage that computes both vector fields: the address
// text and the combined reading sentence.
func NewEmbed(embedder Embedder) fn.Stage[domain.StoredReading, domain.StoredReading] {
	return func(ctx context.Context, r domain.StoredReading) fn.Result[domain.StoredReading] {
		addrVec, err := embedder.Embed(ctx, r.FullAddress)
		if err != nil {
			return fn.Errf[domain.StoredReading]("ingest: embed address: %w", err)
		}
		if len(addrVec) == 0 {
			return fn.Err[domain.StoredReading](fmt.Errorf("ingest: embed address: %w", domain.ErrEmbedding))
		}

		combVec, err := embedder.Embed(ctx, combinedSentence(r))
		if err != nil {
			return fn.Errf[domain.StoredReading]("ingest: embed combined: %w", err)
		}
		if len(combVec) == 0 {
			return fn.Err[domain.StoredReading](fmt.Errorf("ingest: embed combined: %w", domain.ErrEmbedding))
		}

		r.AddressEmbedding = addrVec
		r.CombinedEmbedding = combVec
		return fn.Ok(r)
	}
}

// NewStore creates the stage that persists a reading. The vector store write
// is the one that must succeed; graph topology and the stored event are
// best-effort and only logged on failure.
func NewStore(vs *semantic.Store, gs locationSaver, nc *nats.Conn, log *slog.Logger) fn.Stage[domain.StoredReading, string] {
	return func(ctx context.Context, r domain.StoredReading) fn.Result[string] {
		if err := vs.Ready(ctx); err != nil {
			return fn.Errf[string]("ingest: store not ready: %w", err)
		}
		if err := vs.Upsert(ctx, r); err != nil {
			return fn.Errf[string]("ingest: vector upsert: %w", err)
		}

		if gs != nil {
			if err := gs.SaveReadingLocation(ctx, r); err != nil {
				log.Warn("ingest: graph save failed", "error", err, "reading_id", r.ID)
			}
		}

		if nc != nil {
			evt := StoredEvent{
				ReadingID:   r.ID,
				FullAddress: r.FullAddress,
				MeterValue:  r.MeterValue,
				Timestamp:   r.Timestamp,
			}
			if err := natsutil.Publish(ctx, nc, StoredSubject, evt); err != nil {
				log.Warn("ingest: stored event publish failed", "error", err, "reading_id", r.ID)
			}
		}

		return fn.Ok(r.ID)
	}
}

// LoggedTap returns a stage that logs entry and exit with duration.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Info("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Info("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// NewPipeline constructs the full upload pipeline:
// Validate -> Analyze -> Build -> Embed -> Store.
func NewPipeline(deps Deps) fn.Stage[domain.UploadRequest, string] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	validated := fn.Then(LoggedTap[domain.UploadRequest]("validate", log), Validate)
	analyzed := fn.Then(validated, fn.Then(LoggedTap[domain.UploadRequest]("analyze", log),
		fn.TracedStage("ingest.analyze", NewAnalyze(deps.Vision, log))))
	built := fn.Then(analyzed, NewBuild(deps.now))
	embedded := fn.Then(built, fn.Then(LoggedTap[domain.StoredReading]("embed", log),
		fn.TracedStage("ingest.embed", NewEmbed(deps.Embedder))))
	return fn.Then(embedded, fn.Then(LoggedTap[domain.StoredReading]("store", log),
		fn.TracedStage("ingest.store", NewStore(deps.VectorStore, deps.GraphStore, deps.Conn, log))))
}

// NewBackfillPipeline builds the pipeline for replayed readings, which skip
// the vision stage because their values were extracted already.
func NewBackfillPipeline(deps Deps) fn.Stage[BackfillReading, string] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	validate := fn.Stage[BackfillReading, BackfillReading](func(_ context.Context, b BackfillReading) fn.Result[BackfillReading] {
		addr := domain.AddressInfo{City: b.City, StreetName: b.StreetName, StreetNumber: b.StreetNumber}
		if err := domain.ValidateAddress(addr); err != nil {
			return fn.Err[BackfillReading](err)
		}
		if b.MeterValue < 0 {
			return fn.Err[BackfillReading](domain.ErrNegativeReading)
		}
		return fn.Ok(b)
	})

	build := fn.MapStage(func(b BackfillReading) domain.StoredReading {
		return readingFromBackfill(b, deps.now())
	})

	embedded := fn.Then(fn.Then(validate, build), fn.TracedStage("ingest.embed", NewEmbed(deps.Embedder)))
	return fn.Then(embedded, fn.TracedStage("ingest.store", NewStore(deps.VectorStore, deps.GraphStore, deps.Conn, log)))
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Reading BackfillReading `json:"reading"`
	Error   string          `json:"error"`
	Retries int             `json:"retries"`
}

// StartConsumer subscribes to the backfill subject and runs each message
// through the backfill pipeline with retry and DLQ support.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewBackfillPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return nc.Subscribe(BackfillSubject, func(msg *nats.Msg) {
		var reading BackfillReading
		if err := json.Unmarshal(msg.Data, &reading); err != nil {
			log.Error("ingest: backfill unmarshal failed", "error", err)
			return
		}

		ctx := context.Background()

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get("X-Retry-Count"); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		result := pipeline(ctx, reading)
		if result.IsErr() {
			_, pipeErr := result.Unwrap()
			retries++
			log.Error("ingest: backfill failed",
				"error", pipeErr,
				"address", reading.StreetNumber+" "+reading.StreetName,
				"retry", retries,
			)

			if retries >= MaxRetries {
				dlq := dlqMessage{Reading: reading, Error: pipeErr.Error(), Retries: retries}
				data, _ := json.Marshal(dlq)
				if err := nc.Publish(DLQSubject, data); err != nil {
					log.Error("ingest: DLQ publish failed", "error", err)
				}
			} else {
				retryMsg := nats.NewMsg(BackfillSubject)
				retryMsg.Data = msg.Data
				retryMsg.Header = nats.Header{}
				retryMsg.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
				if err := nc.PublishMsg(retryMsg); err != nil {
					log.Error("ingest: retry publish failed", "error", err)
				}
			}
		} else {
			readingID, _ := result.Unwrap()
			log.Info("ingest: backfill stored", "reading_id", readingID)
		}

		if msg.Reply != "" {
			_ = msg.Ack()
		}
	})
}

// compile-time check that GraphStore satisfies the pipeline's needs.
var _ locationSaver = (*graph.GraphStore)(nil)
