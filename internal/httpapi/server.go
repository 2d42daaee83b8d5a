// Package httpapi exposes the chat agent and its supporting endpoints over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/telo-ai/server/internal/agent/graph"
	"github.com/telo-ai/server/internal/agent/graph/conversations"
	"github.com/telo-ai/server/internal/agent/graph/tools"
	"github.com/telo-ai/server/internal/ingest"
	"github.com/telo-ai/server/pkg/storage"
)

type Config struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	RequestTimeout  time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"180s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
	MaxBodyBytes    int64         `envconfig:"HTTP_MAX_BODY_BYTES" default:"4194304"`
	AllowedOrigin   string        `envconfig:"HTTP_ALLOWED_ORIGIN" default:"*"`
}

// Backfiller parses every bucket object that has no cached text yet.
type Backfiller interface {
	Backfill(ctx context.Context) (*ingest.Report, error)
}

// DocumentLister pages through the document bucket.
type DocumentLister interface {
	List(ctx context.Context, cursor string, limit int) (*storage.Page, error)
	PublicURL(key string) string
}

type Deps struct {
	Runner   graph.Runner
	Messages *conversations.MessagesManager
	Searcher tools.Searcher
	Parser   Backfiller
	Bucket   DocumentLister
}

type Server struct {
	cfg  Config
	deps Deps
}

func NewServer(cfg Config, deps Deps) *Server {
	return &Server{cfg: cfg, deps: deps}
}

// Handler builds the route table wrapped in the common middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.Handle("POST /api/chat", s.withTimeout(http.HandlerFunc(s.handleChat)))
	mux.Handle("GET /api/search", s.withTimeout(http.HandlerFunc(s.handleSearch)))
	mux.Handle("GET /api/documents", s.withTimeout(http.HandlerFunc(s.handleDocuments)))
	mux.Handle("POST /api/sessions", s.withTimeout(http.HandlerFunc(s.handleSaveSession)))
	mux.Handle("GET /api/sessions/{id}", s.withTimeout(http.HandlerFunc(s.handleLoadSession)))

	// back-fill runs as long as it needs; the parser timeout bounds each document
	mux.HandleFunc("GET /api/parser", s.handleParser)

	return chain(mux, withRecover, withRequestID, s.withCORS)
}

// HTTPServer returns a configured *http.Server. WriteTimeout stays zero so
// long chat streams are bounded by the request timeout instead.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
