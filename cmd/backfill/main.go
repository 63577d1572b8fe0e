// Command backfill replays historical readings into the ingestion pipeline.
// It reads a JSON array of readings from a file and publishes each one to
// the backfill subject, where the API server's consumer picks them up.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/AquaScanAI/aquascan-mvp/engine/ingest"
	"github.com/AquaScanAI/aquascan-mvp/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	var (
		file  = flag.String("file", "readings.json", "JSON array of readings to replay")
		pause = flag.Duration("pause", 50*time.Millisecond, "delay between publishes")
	)
	flag.Parse()

	natsURL := envOr("NATS_URL", nats.DefaultURL)

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("read %s: %v", *file, err)
	}

	var readings []ingest.BackfillReading
	if err := json.Unmarshal(data, &readings); err != nil {
		log.Fatalf("parse %s: %v", *file, err)
	}
	log.Printf("Loaded %d readings from %s", len(readings), *file)

	nc, err := nats.Connect(natsURL)
	if err != nil {
		log.Fatalf("nats connect: %v", err)
	}
	defer nc.Close()

	ctx := context.Background()
	published, failed := 0, 0
	for i, r := range readings {
		if err := natsutil.Publish(ctx, nc, ingest.BackfillSubject, r); err != nil {
			log.Printf("[%d] publish failed for %s %s: %v", i, r.StreetNumber, r.StreetName, err)
			failed++
			continue
		}
		published++
		if published%100 == 0 {
			log.Printf("Progress: %d published, %d failed (of %d)", published, failed, len(readings))
		}
		time.Sleep(*pause)
	}

	if err := nc.Flush(); err != nil {
		log.Printf("flush: %v", err)
	}
	log.Printf("Done! Published: %d, Failed: %d, Total: %d", published, failed, len(readings))
}
