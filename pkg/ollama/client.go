// Package ollama provides the model provider client: text embeddings,
// text generation, and vision analysis over Ollama's HTTP API.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/AquaScanAI/aquascan-mvp/pkg/resilience"
)

// Client talks to one Ollama instance. Generation and vision calls go
// through an optional rate limiter; embedding calls are cheap and do not.
type Client struct {
	baseURL     string
	embedModel  string
	chatModel   string
	visionModel string
	limiter     *resilience.Limiter
	client      *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithLimiter rate-limits generation and vision calls.
func WithLimiter(l *resilience.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithHTTPClient replaces the underlying HTTP client. Used in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// NewClient creates an Ollama client for the given models.
func NewClient(baseURL, embedModel, chatModel, visionModel string, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		embedModel:  embedModel,
		chatModel:   chatModel,
		visionModel: visionModel,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type embedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResp struct {
	Embedding []float64 `json:"embedding"`
}

// Embed maps text to a fixed-length vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var result embedResp
	if err := c.post(ctx, "/api/embeddings", embedReq{Model: c.embedModel, Prompt: text}, &result); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

type generateReq struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	System string   `json:"system,omitempty"`
	Images []string `json:"images,omitempty"`
	Format string   `json:"format,omitempty"`
	Stream bool     `json:"stream"`
}

type generateResp struct {
	Response string `json:"response"`
}

// Generate produces a text completion for the prompt.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	var result generateResp
	req := generateReq{Model: c.chatModel, Prompt: prompt, System: system}
	if err := c.post(ctx, "/api/generate", req, &result); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return result.Response, nil
}

// Analyze sends an image plus an extraction prompt to the vision model and
// returns the raw model output. Callers parse the structured content.
func (c *Client) Analyze(ctx context.Context, image []byte, prompt string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	var result generateResp
	req := generateReq{
		Model:  c.visionModel,
		Prompt: prompt,
		Images: []string{base64.StdEncoding.EncodeToString(image)},
		Format: "json",
	}
	if err := c.post(ctx, "/api/generate", req, &result); err != nil {
		return "", fmt.Errorf("ollama analyze: %w", err)
	}
	return result.Response, nil
}

// Health checks that the Ollama instance is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
