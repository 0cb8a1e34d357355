// Package http serves the healthcheck and metrics endpoints. The server
// is read-only and has no administrative surface.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// HealthChecker probes one dependency. A nil error means healthy.
type HealthChecker func(ctx context.Context) error

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns default timeouts for the given port.
func DefaultServerConfig(port int) ServerConfig {
	return ServerConfig{
		Port:         port,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server exposes GET /health and GET /metrics.
type Server struct {
	server *http.Server
	checks map[string]HealthChecker
}

// NewServer creates the healthcheck server with the given dependency
// probes.
func NewServer(config ServerConfig, checks map[string]HealthChecker) *Server {
	s := &Server{checks: checks}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// Start blocks serving until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("healthcheck server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("healthcheck server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Healthy bool              `json:"healthy"`
	Checks  map[string]string `json:"checks"`
	Time    time.Time         `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{
		Healthy: true,
		Checks:  make(map[string]string, len(s.checks)),
		Time:    time.Now().UTC(),
	}

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			resp.Healthy = false
			resp.Checks[name] = err.Error()
		} else {
			resp.Checks[name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if !resp.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
