package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/api/handlers"
	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/api/middleware"
)

// Server wraps the HTTP server for the webhook API
type Server struct {
	httpServer *http.Server
	handlers   *handlers.Handler
}

// NewServer creates the webhook HTTP server. Authentication is the HMAC
// signature on the webhook body; TLS terminates at the cluster ingress.
func NewServer(port int, handler *handlers.Handler) *Server {
	mux := http.NewServeMux()

	// Register routes
	mux.HandleFunc("POST /webhook", handler.PostWebhook)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Apply middleware chain
	handlerWithMiddleware := middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Logging,
		middleware.Metrics,
	)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handlerWithMiddleware,
			ReadHeaderTimeout: 10 * time.Second,
		},
		handlers: handler,
	}
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger := log.FromContext(ctx)
	logger.Info("Shutting down webhook server")
	return s.httpServer.Shutdown(ctx)
}
