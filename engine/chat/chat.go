// Package chat orchestrates question answering over stored meter readings.
// It retrieves context through the multi-strategy retrieval engine, builds
// a grounded prompt, and calls the generation model for the final answer.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AquaScanAI/aquascan-mvp/engine/domain"
	"github.com/AquaScanAI/aquascan-mvp/engine/graph"
	"github.com/AquaScanAI/aquascan-mvp/engine/retrieval"
)

// maxContextRecords caps how many retrieved readings enter the prompt.
const maxContextRecords = 10

// Retriever produces grounded context for a question.
type Retriever interface {
	RetrieveContext(ctx context.Context, question string, limit int) retrieval.Context
}

// Generator produces the final natural-language answer.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Enricher optionally adds street-level aggregates to the prompt.
type Enricher interface {
	SummarizeStreet(ctx context.Context, city, street string) (graph.StreetSummary, error)
}

// Options configures the chat service.
type Options struct {
	Limit        int
	SystemPrompt string
	UseGraph     bool
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Limit:        5,
		SystemPrompt: defaultSystemPrompt,
		UseGraph:     true,
	}
}

const defaultSystemPrompt = `You are AquaScan, a water utility assistant.
Answer the user's question using ONLY the meter readings provided as context.
If the context does not contain enough information to answer, say so plainly.
Values are meter readings in the units recorded with each reading.`

// Service answers questions about stored readings.
type Service struct {
	retriever Retriever
	model     Generator
	enricher  Enricher
	opts      Options
	logger    *slog.Logger
}

// New creates a chat service. The enricher may be nil.
func New(retriever Retriever, model Generator, enricher Enricher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultOptions().Limit
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	return &Service{
		retriever: retriever,
		model:     model,
		enricher:  enricher,
		opts:      opts,
		logger:    logger,
	}
}

// Answer is the structured response to a question.
type Answer struct {
	Text          string   `json:"text"`
	Sources       []Source `json:"sources"`
	Strategy      string   `json:"strategy"`
	FallbackDepth int      `json:"fallback_depth"`
}

// Source is one reading that backed the answer.
type Source struct {
	ID          string  `json:"id"`
	FullAddress string  `json:"full_address"`
	MeterValue  float64 `json:"meter_value"`
	Score       float64 `json:"score"`
	Rank        int     `json:"rank"`
}

// Ask runs the full question pipeline: validate, retrieve, prompt, generate.
func (s *Service) Ask(ctx context.Context, question string) (*Answer, error) {
	if err := domain.ValidateQuery(question); err != nil {
		return nil, err
	}

	rc := s.retriever.RetrieveContext(ctx, question, s.opts.Limit)
	s.logger.Info("chat retrieve done",
		"strategy", rc.Produced.String(),
		"records", len(rc.Records),
		"fallback_depth", rc.FallbackDepth,
	)

	graphContext := ""
	if s.opts.UseGraph && s.enricher != nil {
		graphContext = s.enrich(ctx, rc.Records)
	}

	prompt := buildPrompt(question, rc.Records, graphContext)
	text, err := s.model.Generate(ctx, s.opts.SystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("chat: generate: %w", err)
	}

	sources := make([]Source, 0, len(rc.Records))
	for _, r := range rc.Records {
		sources = append(sources, Source{
			ID:          r.ID,
			FullAddress: r.FullAddress,
			MeterValue:  r.MeterValue,
			Score:       r.SimilarityScore,
			Rank:        r.Rank,
		})
	}

	return &Answer{
		Text:          text,
		Sources:       sources,
		Strategy:      rc.Produced.String(),
		FallbackDepth: rc.FallbackDepth,
	}, nil
}

// enrich pulls street aggregates for the top record's street. Failures are
// logged and skipped.
func (s *Service) enrich(ctx context.Context, records []domain.RetrievedRecord) string {
	for _, r := range records {
		if r.City == "" || r.StreetName == "" {
			continue
		}
		sum, err := s.enricher.SummarizeStreet(ctx, r.City, r.StreetName)
		if err != nil {
			s.logger.Warn("chat: street summary failed, continuing without", "err", err)
			return ""
		}
		return fmt.Sprintf("Street summary: %d meters known on %s, %s (total %.2f).",
			sum.MeterCount, sum.Street, sum.City, sum.TotalValue)
	}
	return ""
}

// buildPrompt renders the readings into the numbered context block that
// precedes the question.
func buildPrompt(question string, records []domain.RetrievedRecord, graphContext string) string {
	var b strings.Builder
	b.WriteString("Meter readings:\n")
	b.WriteString(FormatContext(records))
	if graphContext != "" {
		b.WriteString("\n")
		b.WriteString(graphContext)
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

// FormatContext renders retrieved readings one per line as
// "{rank}. {full_address}: {meter_value} units", at most maxContextRecords.
func FormatContext(records []domain.RetrievedRecord) string {
	if len(records) == 0 {
		return "No readings found.\n"
	}
	var b strings.Builder
	for i, r := range records {
		if i >= maxContextRecords {
			break
		}
		fmt.Fprintf(&b, "%d. %s: %g units\n", r.Rank, r.FullAddress, r.MeterValue)
	}
	return b.String()
}
