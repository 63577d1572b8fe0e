package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/AquaScanAI/aquascan-mvp/engine/chat"
	"github.com/AquaScanAI/aquascan-mvp/engine/domain"
	"github.com/AquaScanAI/aquascan-mvp/engine/graph"
	"github.com/AquaScanAI/aquascan-mvp/engine/semantic"
	"github.com/AquaScanAI/aquascan-mvp/pkg/fn"
	"github.com/AquaScanAI/aquascan-mvp/pkg/metrics"
	"github.com/AquaScanAI/aquascan-mvp/pkg/ollama"
	"github.com/AquaScanAI/aquascan-mvp/pkg/repo"
)

// maxUploadBytes caps the multipart body for meter photos.
const maxUploadBytes = 10 << 20

// graphDirectory is the slice of graph.GraphStore the handlers use.
type graphDirectory interface {
	Health(ctx context.Context) error
	GetMeter(ctx context.Context, id string) (graph.Meter, error)
	MetersOnStreet(ctx context.Context, city, street string) ([]graph.Meter, error)
	CityStreets(ctx context.Context, city string) ([]graph.Street, error)
	DeleteMeter(ctx context.Context, id string) error
}

type server struct {
	pipeline fn.Stage[domain.UploadRequest, string]
	chat     *chat.Service
	store    *semantic.Store
	model    *ollama.Client
	graph    graphDirectory
	reg      *metrics.Registry
	logger   *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, domain.ErrEmptyQuery),
		errors.Is(err, domain.ErrQueryTooLong),
		errors.Is(err, domain.ErrMissingField),
		errors.Is(err, domain.ErrFieldTooLong),
		errors.Is(err, domain.ErrEmptyImage),
		errors.Is(err, domain.ErrNegativeReading):
		return http.StatusBadRequest
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// UploadResponse is the JSON response for POST /api/upload-meter.
type UploadResponse struct {
	ReadingID string `json:"reading_id"`
	Status    string `json:"status"`
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return
	}

	req := domain.UploadRequest{
		Address: domain.AddressInfo{
			City:         r.FormValue("city"),
			StreetName:   r.FormValue("street_name"),
			StreetNumber: r.FormValue("street_number"),
		},
		Image:       image,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}

	result := s.pipeline(r.Context(), req)
	readingID, err := result.Unwrap()
	if err != nil {
		s.reg.Counter(metrics.WithLabels("uploads_total", "status", "failed"), "Meter photo uploads").Inc()
		status := statusFor(err)
		if status >= 500 {
			s.logger.Error("upload failed", "err", err)
			writeError(w, status, "upload failed")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	s.reg.Counter(metrics.WithLabels("uploads_total", "status", "stored"), "Meter photo uploads").Inc()
	writeJSON(w, http.StatusCreated, UploadResponse{ReadingID: readingID, Status: "stored"})
}

// ChatRequest is the JSON body for POST /api/chat.
type ChatRequest struct {
	Question string `json:"question"`
}

// ChatResponse is the JSON response for POST /api/chat.
type ChatResponse struct {
	Answer        string        `json:"answer"`
	Sources       []chat.Source `json:"sources"`
	Strategy      string        `json:"strategy"`
	FallbackDepth int           `json:"fallback_depth"`
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Refuse up front when both the model and the store are down; there is
	// nothing to retrieve from and nothing to answer with.
	checkCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	modelErr := s.model.Health(checkCtx)
	storeErr := s.store.Ready(checkCtx)
	cancel()
	if modelErr != nil && storeErr != nil {
		writeError(w, http.StatusServiceUnavailable, "model and vector store unavailable")
		return
	}

	answer, err := s.chat.Ask(r.Context(), req.Question)
	if err != nil {
		status := statusFor(err)
		if status >= 500 {
			s.logger.Error("chat failed", "err", err)
			writeError(w, status, "chat failed")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Answer:        answer.Text,
		Sources:       answer.Sources,
		Strategy:      answer.Strategy,
		FallbackDepth: answer.FallbackDepth,
	})
}

// ReadingsResponse is the JSON response for GET /api/readings. Vectors are
// never included; Dims reports the configured embedding width instead.
type ReadingsResponse struct {
	Count    int              `json:"count"`
	Dims     int              `json:"dims"`
	Readings []map[string]any `json:"readings"`
}

func (s *server) handleReadings(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	if err := s.store.Ready(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "vector store unavailable")
		return
	}

	var rows []semantic.Row
	var err error
	if address := r.URL.Query().Get("address"); address != "" {
		rows, err = s.store.Query(r.Context(), address, limit)
	} else {
		rows, err = s.store.List(r.Context(), limit)
	}
	if err != nil {
		s.logger.Error("readings scroll failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not list readings")
		return
	}

	readings := make([]map[string]any, len(rows))
	for i, row := range rows {
		readings[i] = row.Payload
	}
	writeJSON(w, http.StatusOK, ReadingsResponse{
		Count:    len(rows),
		Dims:     s.store.Dims(),
		Readings: readings,
	})
}

// HealthResponse aggregates component health for GET /api/health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	components := map[string]string{
		"vector_store": healthString(s.store.Ready(ctx)),
		"model":        healthString(s.model.Health(ctx)),
		"graph":        healthString(s.graph.Health(ctx)),
	}

	status := "ok"
	code := http.StatusOK
	for _, v := range components {
		if v != "ok" {
			status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, HealthResponse{Status: status, Components: components})
}

func healthString(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}

// StreetsResponse is the JSON response for GET /api/streets.
type StreetsResponse struct {
	City    string   `json:"city"`
	Streets []string `json:"streets"`
}

func (s *server) handleStreets(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	if city == "" {
		writeError(w, http.StatusBadRequest, "city is required")
		return
	}

	streets, err := s.graph.CityStreets(r.Context(), city)
	if err != nil {
		s.logger.Error("street listing failed", "err", err, "city", city)
		writeError(w, http.StatusInternalServerError, "could not list streets")
		return
	}

	names := make([]string, len(streets))
	for i, st := range streets {
		names[i] = st.Name
	}
	writeJSON(w, http.StatusOK, StreetsResponse{City: city, Streets: names})
}

// MetersResponse is the JSON response for GET /api/meters.
type MetersResponse struct {
	Count  int           `json:"count"`
	Meters []graph.Meter `json:"meters"`
}

func (s *server) handleMeters(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	street := r.URL.Query().Get("street")
	if city == "" || street == "" {
		writeError(w, http.StatusBadRequest, "city and street are required")
		return
	}

	meters, err := s.graph.MetersOnStreet(r.Context(), city, street)
	if err != nil {
		s.logger.Error("meter listing failed", "err", err, "city", city, "street", street)
		writeError(w, http.StatusInternalServerError, "could not list meters")
		return
	}
	if meters == nil {
		meters = []graph.Meter{}
	}
	writeJSON(w, http.StatusOK, MetersResponse{Count: len(meters), Meters: meters})
}

func (s *server) handleMeter(w http.ResponseWriter, r *http.Request) {
	meter, err := s.graph.GetMeter(r.Context(), r.PathValue("id"))
	if err != nil {
		status := statusFor(err)
		if status >= 500 {
			s.logger.Error("meter lookup failed", "err", err)
			writeError(w, status, "could not load meter")
			return
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, meter)
}

func (s *server) handleDeleteMeter(w http.ResponseWriter, r *http.Request) {
	if err := s.graph.DeleteMeter(r.Context(), r.PathValue("id")); err != nil {
		s.logger.Error("meter delete failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not delete meter")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
