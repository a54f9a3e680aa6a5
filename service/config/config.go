package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Solana configuration
	RPCURL              string
	Commitment          string // "processed", "confirmed", or "finalized"
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration

	// Optional service fee payer (base58-encoded keypair).
	// When set, /token/create requests may omit the payer field.
	PayerKeypair string

	// Optional collaborators. Empty values disable the corresponding component.
	DatabaseURL string
	NATSURL     string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// The single ledger endpoint. The process must not start without it.
	cfg.RPCURL = os.Getenv("RPC_URL")
	if cfg.RPCURL == "" {
		errs = append(errs, fmt.Errorf("RPC_URL is required"))
	}

	cfg.Commitment = getEnvOrDefault("COMMITMENT", "finalized")
	if err := validateCommitment(cfg.Commitment); err != nil {
		errs = append(errs, err)
	}

	confirmTimeout, err := parseDuration("CONFIRM_TIMEOUT", "60s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmTimeout = confirmTimeout
	}

	pollInterval, err := parseDuration("CONFIRM_POLL_INTERVAL", "2s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmPollInterval = pollInterval
	}

	if cfg.ConfirmPollInterval > 0 && cfg.ConfirmTimeout > 0 && cfg.ConfirmPollInterval > cfg.ConfirmTimeout {
		errs = append(errs, fmt.Errorf("CONFIRM_POLL_INTERVAL (%v) cannot be greater than CONFIRM_TIMEOUT (%v)",
			cfg.ConfirmPollInterval, cfg.ConfirmTimeout))
	}

	cfg.PayerKeypair = os.Getenv("PAYER_KEYPAIR")

	// Optional integrations
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.RPCURL == "" {
		errs = append(errs, fmt.Errorf("RPCURL is required"))
	}

	if err := validateCommitment(c.Commitment); err != nil {
		errs = append(errs, err)
	}

	if c.ConfirmTimeout < time.Second {
		errs = append(errs, fmt.Errorf("ConfirmTimeout must be at least 1 second"))
	}

	if c.ConfirmPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("ConfirmPollInterval must be positive"))
	}

	if c.ConfirmPollInterval > c.ConfirmTimeout {
		errs = append(errs, fmt.Errorf("ConfirmPollInterval cannot be greater than ConfirmTimeout"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

func validateCommitment(commitment string) error {
	switch commitment {
	case "processed", "confirmed", "finalized":
		return nil
	default:
		return fmt.Errorf("COMMITMENT: invalid value %q: must be 'processed', 'confirmed', or 'finalized'", commitment)
	}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}
