package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbed(t *testing.T) {
	var gotPath string
	var gotReq embedReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(embedResp{Embedding: []float64{0.5, -1.25}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "embed-model", "chat-model", "vision-model")
	vec, err := c.Embed(context.Background(), "42 Main St")
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/api/embeddings" {
		t.Errorf("path = %q", gotPath)
	}
	if gotReq.Model != "embed-model" || gotReq.Prompt != "42 Main St" {
		t.Errorf("request = %+v", gotReq)
	}
	if len(vec) != 2 || vec[0] != 0.5 || vec[1] != -1.25 {
		t.Errorf("vector = %v", vec)
	}
}

func TestGenerate(t *testing.T) {
	var gotReq generateReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(generateResp{Response: "answer text"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "embed-model", "chat-model", "vision-model")
	out, err := c.Generate(context.Background(), "you are helpful", "what now")
	if err != nil {
		t.Fatal(err)
	}
	if out != "answer text" {
		t.Errorf("response = %q", out)
	}
	if gotReq.Model != "chat-model" || gotReq.System != "you are helpful" || gotReq.Prompt != "what now" {
		t.Errorf("request = %+v", gotReq)
	}
	if gotReq.Stream {
		t.Error("streaming must be off")
	}
}

func TestAnalyze_EncodesImageAndRequestsJSON(t *testing.T) {
	var gotReq generateReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(generateResp{Response: `{"meter_value": 1.5}`})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "embed-model", "chat-model", "vision-model")
	image := []byte{0xff, 0xd8, 0xff}
	out, err := c.Analyze(context.Background(), image, "read the meter")
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"meter_value": 1.5}` {
		t.Errorf("response = %q", out)
	}
	if gotReq.Model != "vision-model" || gotReq.Format != "json" {
		t.Errorf("request = %+v", gotReq)
	}
	if len(gotReq.Images) != 1 || gotReq.Images[0] != base64.StdEncoding.EncodeToString(image) {
		t.Errorf("images = %v", gotReq.Images)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "e", "c", "v")
	if err := c.Health(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestHealth_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "e", "c", "v")
	if err := c.Health(context.Background()); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestEmbed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "e", "c", "v")
	if _, err := c.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}
