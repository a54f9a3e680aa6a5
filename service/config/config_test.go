package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RPC_URL", "https://api.devnet.solana.com")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "https://api.devnet.solana.com", cfg.RPCURL)
	assert.Equal(t, "finalized", cfg.Commitment)
	assert.Equal(t, 60*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, 2*time.Second, cfg.ConfirmPollInterval)
	assert.Empty(t, cfg.PayerKeypair)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.NATSURL)
}

func TestLoad_MissingRPCURL(t *testing.T) {
	t.Setenv("RPC_URL", "")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "RPC_URL is required")
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("COMMITMENT", "confirmed")
	t.Setenv("CONFIRM_TIMEOUT", "90s")
	t.Setenv("CONFIRM_POLL_INTERVAL", "500ms")
	t.Setenv("DATABASE_URL", "postgres://localhost/mintrelay")
	t.Setenv("NATS_URL", "nats://localhost:4222")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "confirmed", cfg.Commitment)
	assert.Equal(t, 90*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.ConfirmPollInterval)
	assert.Equal(t, "postgres://localhost/mintrelay", cfg.DatabaseURL)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
}

func TestLoad_InvalidCommitment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("COMMITMENT", "eventually")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "COMMITMENT")
}

func TestLoad_InvalidDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CONFIRM_TIMEOUT", "sixty seconds")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIRM_TIMEOUT")
}

func TestLoad_PollIntervalExceedsTimeout(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CONFIRM_TIMEOUT", "5s")
	t.Setenv("CONFIRM_POLL_INTERVAL", "10s")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIRM_POLL_INTERVAL")
}

func TestValidate(t *testing.T) {
	valid := &Config{
		RPCURL:              "https://api.devnet.solana.com",
		Commitment:          "finalized",
		ConfirmTimeout:      60 * time.Second,
		ConfirmPollInterval: 2 * time.Second,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing rpc url", func(c *Config) { c.RPCURL = "" }},
		{"bad commitment", func(c *Config) { c.Commitment = "maybe" }},
		{"timeout too short", func(c *Config) { c.ConfirmTimeout = 100 * time.Millisecond }},
		{"zero poll interval", func(c *Config) { c.ConfirmPollInterval = 0 }},
		{"poll exceeds timeout", func(c *Config) { c.ConfirmPollInterval = 2 * time.Minute }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
