// Package gateway exposes the agent over HTTP: a REST surface for starting,
// stopping, and inspecting conversations, and a WebSocket stream for events.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vantagelabs/relay/pkg/models"
)

// ArtifactStore is the read side the gateway serves: history, files, and
// resources.
type ArtifactStore interface {
	List(ctx context.Context, conversationID string) ([]models.Message, error)
	ListFiles(ctx context.Context, conversationID string) ([]models.FileInfo, error)
	ReadFile(ctx context.Context, conversationID, name string) ([]byte, string, error)
	ListResources(ctx context.Context, conversationID string) ([]models.Resource, error)
}

// Server is the HTTP gateway.
type Server struct {
	streams *StreamManager
	store   ArtifactStore
	logger  *slog.Logger
	http    *http.Server
}

// NewServer assembles the gateway on addr.
func NewServer(addr string, streams *StreamManager, store ArtifactStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		streams: streams,
		store:   store,
		logger:  logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/conversations/{id}/messages", s.handleSendMessage)
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.handleListMessages)
	mux.HandleFunc("GET /api/conversations/{id}/stream", s.handleStream)
	mux.HandleFunc("POST /api/conversations/{id}/stop", s.handleStop)
	mux.HandleFunc("GET /api/conversations/{id}/status", s.handleStatus)
	mux.HandleFunc("GET /api/conversations/{id}/files", s.handleListFiles)
	mux.HandleFunc("GET /api/conversations/{id}/files/{name}", s.handleReadFile)
	mux.HandleFunc("GET /api/conversations/{id}/resources", s.handleListResources)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe runs the server until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("gateway listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown stops accepting connections, cancels active runs, and drains.
func (s *Server) Shutdown(ctx context.Context) error {
	s.streams.Shutdown()
	return s.http.Shutdown(ctx)
}
