// Package api exposes topics, quiz uploads and quiz completion over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/ingest"
	"github.com/p-n-ai/pai-course/internal/progress"
)

const (
	defaultMaxUpload = 5 << 20
	maxJSONBody      = 1 << 20
	checkTimeout     = 2 * time.Second
)

// TopicCache caches topic views. *cache.Cache implements it.
type TopicCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, keys ...string) error
}

// HealthChecker is a dependency probed by /readyz.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type nopCache struct{}

func (nopCache) Get(context.Context, string, any) (bool, error) { return false, nil }
func (nopCache) Set(context.Context, string, any) error         { return nil }
func (nopCache) Delete(context.Context, ...string) error        { return nil }

// Config holds dependencies for the HTTP server.
type Config struct {
	Store          course.Store
	Ingestor       *ingest.Ingestor
	Progress       *progress.Engine
	Events         course.EventLogger
	Cache          TopicCache               // optional
	ProgressFeed   http.Handler             // optional; served at /ws/progress
	Checks         map[string]HealthChecker // probed by /readyz
	MaxUploadBytes int64
}

// Server routes HTTP requests to the course components.
type Server struct {
	store     course.Store
	ingestor  *ingest.Ingestor
	progress  *progress.Engine
	events    course.EventLogger
	cache     TopicCache
	feed      http.Handler
	checks    map[string]HealthChecker
	maxUpload int64
	schemas   *schemas
}

// New creates a server.
func New(cfg Config) (*Server, error) {
	s, err := loadSchemas()
	if err != nil {
		return nil, err
	}

	c := cfg.Cache
	if c == nil {
		c = nopCache{}
	}
	events := cfg.Events
	if events == nil {
		events = course.NopEventLogger{}
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}

	return &Server{
		store:     cfg.Store,
		ingestor:  cfg.Ingestor,
		progress:  cfg.Progress,
		events:    events,
		cache:     c,
		feed:      cfg.ProgressFeed,
		checks:    cfg.Checks,
		maxUpload: maxUpload,
		schemas:   s,
	}, nil
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("GET /topics", s.handleListTopics)
	mux.HandleFunc("POST /topics", s.handleCreateTopic)
	mux.HandleFunc("GET /topics/{id}", s.handleGetTopic)
	mux.HandleFunc("PUT /topics/{id}", s.handleUpdateStatus)
	mux.HandleFunc("PATCH /topics/{id}", s.handleUpdateStatus)
	mux.HandleFunc("DELETE /topics/{id}", s.handleDeleteTopic)
	mux.HandleFunc("POST /topics/{id}/quiz", s.handleUploadQuiz)
	mux.HandleFunc("POST /topics/{id}/complete_quiz", s.handleCompleteQuiz)

	if s.feed != nil {
		mux.Handle("GET /ws/progress", s.feed)
	}
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	failed := map[string]string{}
	for name, c := range s.checks {
		if err := c.HealthCheck(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		slog.Warn("readiness check failed", "checks", failed)
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failed})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

type detailResponse struct {
	Detail string `json:"detail"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func respondDetail(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, detailResponse{Detail: detail})
}

// respondError maps component errors onto HTTP statuses.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *progress.ValidationError
	switch {
	case errors.As(err, &verr):
		respondDetail(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, course.ErrTopicNotFound):
		respondDetail(w, http.StatusNotFound, "Not found.")
	case errors.Is(err, ingest.ErrUnreadable):
		respondDetail(w, http.StatusBadRequest, "The uploaded document could not be read.")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondDetail(w, http.StatusInternalServerError, "Internal server error.")
	}
}

// topicID parses the {id} path segment. It writes a 404 and reports false
// when the segment is not a positive integer.
func topicID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondDetail(w, http.StatusNotFound, "Not found.")
		return 0, false
	}
	return id, true
}

// readJSON reads a JSON body, validates it and decodes it into dst with
// numbers preserved as json.Number. An empty body is treated as {}.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, schema *gojsonschema.Schema, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		respondDetail(w, http.StatusRequestEntityTooLarge, "Request body too large.")
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}

	if msg, ok := validate(schema, body); !ok {
		respondDetail(w, http.StatusBadRequest, msg)
		return false
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		respondDetail(w, http.StatusBadRequest, "Request body must be a JSON object.")
		return false
	}
	return true
}
