package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mintrelay/mintrelay/service/config"
	"github.com/mintrelay/mintrelay/service/db"
	"github.com/mintrelay/mintrelay/service/ledger"
	"github.com/mintrelay/mintrelay/service/metrics"
	"github.com/mintrelay/mintrelay/service/nats"
	"github.com/mintrelay/mintrelay/service/server"
	"github.com/mintrelay/mintrelay/service/wallet"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"rpc_url", cfg.RPCURL,
		"commitment", cfg.Commitment,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize metrics
	m := metrics.NewMetrics(nil)

	// Optional service fee payer
	var payer *wallet.Keypair
	if cfg.PayerKeypair != "" {
		kp, err := wallet.FromBase58(cfg.PayerKeypair)
		if err != nil {
			logger.Error("invalid PAYER_KEYPAIR", "error", err)
			os.Exit(1)
		}
		payer = &kp
		logger.Info("service payer configured", "pubkey", kp.PublicKey().String())
	}

	// Optional database store for the submission log
	var store *db.Store
	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		store = db.NewStore(dbPool, m)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure database schema", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to database")
	}

	// Optional NATS publisher for submission events
	var publisher nats.Publisher
	if cfg.NATSURL != "" {
		p, err := nats.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to initialize NATS publisher", "error", err)
			os.Exit(1)
		}
		publisher = p
	}

	// Initialize Solana RPC client and ledger service
	// Note: For premium RPC endpoints, include the API key in the URL
	rpcClient := rpc.New(cfg.RPCURL)
	ledgerSvc := ledger.NewService(rpcClient, endpointLabel(cfg.RPCURL), ledger.Options{
		Commitment:          cfg.Commitment,
		ConfirmTimeout:      cfg.ConfirmTimeout,
		ConfirmPollInterval: cfg.ConfirmPollInterval,
	}, m, logger)
	logger.Info("initialized ledger service", "url", cfg.RPCURL)

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, ledgerSvc, payer, store, publisher, m, logger)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// endpointLabel reduces an RPC URL to a host label suitable for metrics.
func endpointLabel(rpcURL string) string {
	u, err := url.Parse(rpcURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
