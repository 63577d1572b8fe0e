// Command chat is an interactive terminal client for asking questions about
// stored meter readings. It talks straight to Qdrant and Ollama without the
// API server in between.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/AquaScanAI/aquascan-mvp/engine/chat"
	"github.com/AquaScanAI/aquascan-mvp/engine/retrieval"
	"github.com/AquaScanAI/aquascan-mvp/engine/semantic"
	"github.com/AquaScanAI/aquascan-mvp/pkg/ollama"
)

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envIntOr(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return d
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	ollamaURL := envOr("OLLAMA_URL", "http://localhost:11434")
	qdrantAddr := envOr("QDRANT_URL", "localhost:6334")
	collection := envOr("QDRANT_COLLECTION", "water_meters")
	embedModel := envOr("EMBED_MODEL", "mxbai-embed-large")
	chatModel := envOr("CHAT_MODEL", "llama3.1")
	dims := envIntOr("EMBED_DIMS", 1024)

	store, err := semantic.New(qdrantAddr, collection, dims, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "qdrant connect failed:", err)
		os.Exit(1)
	}
	defer store.Close()

	model := ollama.NewClient(ollamaURL, embedModel, chatModel, "")

	retriever := retrieval.New(store, model, retrieval.DefaultOptions(), nil, logger)
	svc := chat.New(retriever, model, nil, chat.DefaultOptions(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("AquaScan chat. Ask about meter readings, empty line to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			break
		}

		answer, err := svc.Ask(ctx, question)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}

		fmt.Println(answer.Text)
		if len(answer.Sources) > 0 {
			fmt.Printf("(%d readings via %s search)\n", len(answer.Sources), answer.Strategy)
		}
		if ctx.Err() != nil {
			break
		}
	}
}
