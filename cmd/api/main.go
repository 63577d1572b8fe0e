// Package main implements the AquaScan API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/AquaScanAI/aquascan-mvp/engine/chat"
	"github.com/AquaScanAI/aquascan-mvp/engine/graph"
	"github.com/AquaScanAI/aquascan-mvp/engine/ingest"
	"github.com/AquaScanAI/aquascan-mvp/engine/retrieval"
	"github.com/AquaScanAI/aquascan-mvp/engine/semantic"
	"github.com/AquaScanAI/aquascan-mvp/pkg/metrics"
	"github.com/AquaScanAI/aquascan-mvp/pkg/mid"
	"github.com/AquaScanAI/aquascan-mvp/pkg/natsutil"
	"github.com/AquaScanAI/aquascan-mvp/pkg/ollama"
	"github.com/AquaScanAI/aquascan-mvp/pkg/resilience"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Config holds all environment-based configuration.
type Config struct {
	Port        string
	OllamaURL   string
	EmbedModel  string
	ChatModel   string
	VisionModel string
	Neo4jURL    string
	Neo4jUser   string
	Neo4jPass   string
	QdrantURL   string
	Collection  string
	Dims        int
	NATSURL     string
	CORSOrigin  string
	ModelRPS    float64
	APIRPS      float64
}

func loadConfig() Config {
	return Config{
		Port:        envOr("PORT", "8080"),
		OllamaURL:   envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:  envOr("EMBED_MODEL", "mxbai-embed-large"),
		ChatModel:   envOr("CHAT_MODEL", "llama3.1"),
		VisionModel: envOr("VISION_MODEL", "llava"),
		Neo4jURL:    envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:   envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:   envOr("NEO4J_PASS", "password"),
		QdrantURL:   envOr("QDRANT_URL", "localhost:6334"),
		Collection:  envOr("QDRANT_COLLECTION", "water_meters"),
		Dims:        envIntOr("EMBED_DIMS", 1024),
		NATSURL:     envOr("NATS_URL", ""),
		CORSOrigin:  envOr("CORS_ORIGIN", "*"),
		ModelRPS:    envFloatOr("MODEL_RPS", 4),
		APIRPS:      envFloatOr("API_RPS", 50),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Model provider ---
	limiter := resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.ModelRPS, Burst: int(cfg.ModelRPS)})
	model := ollama.NewClient(cfg.OllamaURL, cfg.EmbedModel, cfg.ChatModel, cfg.VisionModel,
		ollama.WithLimiter(limiter))

	// --- Connect to Neo4j ---
	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer neo4jDriver.Close(ctx)

	graphStore := graph.New(neo4jDriver)

	// --- Connect to Qdrant ---
	vectorStore, err := semantic.New(cfg.QdrantURL, cfg.Collection, cfg.Dims, logger)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	// --- Connect to NATS (optional) ---
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			logger.Warn("nats connect failed, events disabled", "err", err)
			nc = nil
		} else {
			defer nc.Close()
		}
	}

	reg := metrics.New()

	// --- Retrieval and chat ---
	retriever := retrieval.New(vectorStore, model, retrieval.DefaultOptions(), reg, logger)
	chatSvc := chat.New(retriever, model, graphStore, chat.DefaultOptions(), logger)

	// --- Ingestion pipeline ---
	deps := ingest.Deps{
		Vision:      model,
		Embedder:    model,
		VectorStore: vectorStore,
		GraphStore:  graphStore,
		Conn:        nc,
		Logger:      logger,
	}
	pipeline := ingest.NewPipeline(deps)

	if nc != nil {
		sub, err := ingest.StartConsumer(nc, deps)
		if err != nil {
			logger.Warn("backfill consumer failed to start", "err", err)
		} else {
			defer sub.Unsubscribe()
			logger.Info("backfill consumer started", "subject", ingest.BackfillSubject)
		}

		storedSub, err := natsutil.Subscribe(nc, ingest.StoredSubject, func(_ context.Context, evt ingest.StoredEvent) {
			reg.Counter("readings_stored_events_total", "Stored reading events observed").Inc()
			logger.Info("reading stored", "reading_id", evt.ReadingID, "address", evt.FullAddress)
		})
		if err != nil {
			logger.Warn("stored event subscription failed", "err", err)
		} else {
			defer storedSub.Unsubscribe()
		}
	}

	// --- Build HTTP server ---
	api := &server{
		pipeline: pipeline,
		chat:     chatSvc,
		store:    vectorStore,
		model:    model,
		graph:    graphStore,
		reg:      reg,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload-meter", api.handleUpload)
	mux.HandleFunc("POST /api/chat", api.handleChat)
	mux.HandleFunc("GET /api/readings", api.handleReadings)
	mux.HandleFunc("GET /api/streets", api.handleStreets)
	mux.HandleFunc("GET /api/meters", api.handleMeters)
	mux.HandleFunc("GET /api/meters/{id}", api.handleMeter)
	mux.HandleFunc("DELETE /api/meters/{id}", api.handleDeleteMeter)
	mux.HandleFunc("GET /api/health", api.handleHealth)
	mux.Handle("GET /metrics", reg.Handler())

	apiLimiter := resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.APIRPS, Burst: int(cfg.APIRPS) * 2})
	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.RateLimit(apiLimiter),
		mid.OTel("aquascan-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
