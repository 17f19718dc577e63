package server

import (
	"context"
	"net/http"
	"time"

	"github.com/teemow/inbleach/internal/logging"
)

// HTTPServer runs the API on its listener
type HTTPServer struct {
	httpServer *http.Server
	health     *HealthChecker
	logger     logging.Logger
}

// NewHTTPServer wraps api in an http.Server bound to addr
func NewHTTPServer(addr string, api *API) *HTTPServer {
	return &HTTPServer{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			// Bulk unsubscribe visits one link after another, so writes
			// may take much longer than a single provider call.
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
		health: api.health,
		logger: api.logger,
	}
}

// Start serves until Shutdown is called
func (s *HTTPServer) Start() error {
	s.logger.Info("starting API server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown fails readiness and then drains open connections
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.health.MarkShuttingDown()
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the listen address
func (s *HTTPServer) Addr() string {
	return s.httpServer.Addr
}
