package config

import (
	"fmt"
	"time"
)

// ClientConfig is the configuration of the device agent.
//
// Values come from DEVICE_* environment variables and may be overridden by
// command-line flags of the agent.
type ClientConfig struct {
	// ServerURL is the base URL of the sync API (e.g. "http://10.0.0.5:8080").
	// Env: DEVICE_SERVER_URL
	ServerURL string `env:"SERVER_URL"`

	// Token is the device bearer token issued by the identity service.
	// Env: DEVICE_TOKEN
	Token string `env:"TOKEN"`

	// OutboxDSN is the SQLite file holding unsent mutations.
	// Env: DEVICE_OUTBOX_DSN
	OutboxDSN string `env:"OUTBOX_DSN"`

	// RequestTimeout bounds each call to the sync API.
	// Env: DEVICE_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`

	// BatchSize is the maximum number of mutations sent per session.
	// Env: DEVICE_BATCH_SIZE
	BatchSize int `env:"BATCH_SIZE"`
}

// GetClientConfig loads the device agent configuration from the environment
// and fills defaults.
func GetClientConfig() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := parseEnvWithPrefix(cfg, "DEVICE_"); err != nil {
		return nil, fmt.Errorf("error get client config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Validate checks that the agent can reach the server and its outbox.
func (cfg *ClientConfig) Validate() error {
	return cfg.validate()
}

func (cfg *ClientConfig) applyDefaults() {
	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://localhost:8080"
	}
	if cfg.OutboxDSN == "" {
		cfg.OutboxDSN = "outbox.db"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 200
	}
}
