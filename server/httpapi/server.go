// Package httpapi serves the operational HTTP endpoints: Prometheus
// metrics and a JSON health document.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/migadu/kiri/logger"
	"github.com/migadu/kiri/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// CredentialsInfo describes the loaded user table. *credentials.Store
// satisfies it.
type CredentialsInfo interface {
	Len() int
	Digest() string
}

// Server represents the HTTP API server
type Server struct {
	name        string
	addr        string
	metricsPath string
	stats       server.ConnectionStatsProvider
	credentials CredentialsInfo
	started     time.Time
	server      *http.Server
}

// ServerOptions holds configuration options for the HTTP API server
type ServerOptions struct {
	Name        string
	Addr        string
	MetricsPath string
	Stats       server.ConnectionStatsProvider
	Credentials CredentialsInfo
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status            string `json:"status"`
	Server            string `json:"server"`
	Connections       int64  `json:"connections"`
	Authenticated     int64  `json:"authenticated"`
	Users             int    `json:"users"`
	CredentialsDigest string `json:"credentials_digest,omitempty"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
}

// New creates a new HTTP API server
func New(options ServerOptions) (*Server, error) {
	if options.Addr == "" {
		return nil, fmt.Errorf("address is required for HTTP API server")
	}
	if options.MetricsPath == "" {
		options.MetricsPath = "/metrics"
	}
	if !strings.HasPrefix(options.MetricsPath, "/") {
		return nil, fmt.Errorf("metrics path must start with '/': %q", options.MetricsPath)
	}
	if options.MetricsPath == "/health" {
		return nil, fmt.Errorf("metrics path cannot be /health")
	}

	return &Server{
		name:        options.Name,
		addr:        options.Addr,
		metricsPath: options.MetricsPath,
		stats:       options.Stats,
		credentials: options.Credentials,
		started:     time.Now(),
	}, nil
}

// Start starts the HTTP API server and stops it when ctx is done.
func Start(ctx context.Context, options ServerOptions, errChan chan error) {
	s, err := New(options)
	if err != nil {
		errChan <- fmt.Errorf("failed to create HTTP API server: %w", err)
		return
	}

	logger.Info("Starting HTTP API server", "addr", options.Addr, "metrics_path", s.metricsPath)
	if err := s.start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		errChan <- fmt.Errorf("HTTP API server failed: %w", err)
	}
}

func (s *Server) start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error shutting down HTTP API server", "error", err)
		}
	}()

	return s.server.ListenAndServe()
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	router.Handle(s.metricsPath, promhttp.Handler()).Methods("GET")
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "Not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return router
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("HTTP API request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr, "duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Server:        s.name,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if s.stats != nil {
		resp.Connections = s.stats.GetTotalConnections()
		resp.Authenticated = s.stats.GetAuthenticatedConnections()
	}
	if s.credentials != nil {
		resp.Users = s.credentials.Len()
		resp.CredentialsDigest = s.credentials.Digest()
	}
	if resp.Users == 0 {
		// Nobody can log in.
		resp.Status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("HTTP API: error encoding JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
