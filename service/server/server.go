package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mintrelay/mintrelay/service/config"
	"github.com/mintrelay/mintrelay/service/db"
	"github.com/mintrelay/mintrelay/service/ledger"
	"github.com/mintrelay/mintrelay/service/metrics"
	"github.com/mintrelay/mintrelay/service/nats"
	"github.com/mintrelay/mintrelay/service/wallet"
)

// Server represents the HTTP server for the wallet service.
type Server struct {
	addr      string
	cfg       *config.Config
	ledger    *ledger.Service
	payer     *wallet.Keypair
	store     *db.Store
	publisher nats.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The payer is optional - if nil, /token/create requires a payer in the request.
// The store is optional - if nil, the submission log and /transactions are disabled.
// The publisher is optional - if nil, no submission events are published.
// The metrics is optional - if nil, no metrics will be recorded or served.
func New(addr string, cfg *config.Config, ledgerSvc *ledger.Service, payer *wallet.Keypair, store *db.Store, publisher nats.Publisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:      addr,
		cfg:       cfg,
		ledger:    ledgerSvc,
		payer:     payer,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	instrument := func(name string, h http.Handler) http.Handler {
		return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
	}

	// Wallet and token routes
	mux.Handle("POST /keypair", instrument("/keypair", handleGenerateKeypair(s.logger)))
	mux.Handle("POST /message/sign", instrument("/message/sign", handleSignMessage(s.logger)))
	mux.Handle("POST /message/verify", instrument("/message/verify", handleVerifyMessage(s.logger)))
	mux.Handle("POST /token/create", instrument("/token/create", handleCreateToken(s.ledger, s.payer, s.store, s.publisher, s.logger)))
	mux.Handle("POST /send/token", instrument("/send/token", handleSendToken(s.ledger, s.store, s.publisher, s.logger)))

	// Submission log (if a database store is configured)
	if s.store != nil {
		mux.Handle("GET /transactions", instrument("/transactions", handleListSubmissions(s.store, s.logger)))
		s.logger.Info("submission log endpoint enabled")
	} else {
		s.logger.Warn("database store not configured, submission log disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	// Wrap mux with CORS middleware
	handler := corsMiddleware(mux)

	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// Write timeout must exceed the confirmation wait bound; submissions
		// block until the network reports an outcome.
		WriteTimeout: s.cfg.ConfirmTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.publisher != nil {
		s.publisher.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
