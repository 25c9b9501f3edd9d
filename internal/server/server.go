package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/puzzlegalore/dispatch/internal/batch"
	"github.com/puzzlegalore/dispatch/pkg/order"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Server is the HTTP server for the dispatch service.
type Server struct {
	port      int
	batches   *batch.Orchestrator
	manifests *batch.ManifestBuilder
	logger    *otelzap.Logger
}

// Config holds server configuration.
type Config struct {
	Port int
}

// New creates a new server instance.
func New(cfg Config, batches *batch.Orchestrator, manifests *batch.ManifestBuilder, logger *otelzap.Logger) *Server {
	return &Server{
		port:      cfg.Port,
		batches:   batches,
		manifests: manifests,
		logger:    logger,
	}
}

// Handler returns the service's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	// Batch endpoints
	mux.HandleFunc("/api/labels", s.handleLabels)
	mux.HandleFunc("/api/manifests", s.handleManifests)

	return mux
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
		// Label batches call the carrier once per order; allow long
		// requests but bound them.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type labelsRequest struct {
	Orders []order.Order `json:"orders"`
}

type manifestsResponse struct {
	Document []byte `json:"document"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleLabels runs a label batch over the posted orders and returns
// the merged document with per-order outcomes. The document is base64
// in the JSON response.
func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(errorResponse{Error: "method not allowed, use POST"})
		return
	}

	var req labelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	if len(req.Orders) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errorResponse{Error: "no orders in request"})
		return
	}

	outcome, err := s.batches.Run(r.Context(), req.Orders)
	if err != nil {
		s.logger.Error("Batch run failed", zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
		return
	}

	json.NewEncoder(w).Encode(outcome)
}

// handleManifests assembles and returns the end-of-day collection
// document.
func (s *Server) handleManifests(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(errorResponse{Error: "method not allowed, use POST"})
		return
	}

	doc, err := s.manifests.Run(r.Context())
	if err != nil {
		s.logger.Error("Manifest run failed", zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
		return
	}

	json.NewEncoder(w).Encode(manifestsResponse{Document: doc})
}
