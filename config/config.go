// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full configuration of the API process. Values load from
// ESCROWFLOW_-prefixed environment variables.
type Config struct {
	ListenAddr      string        `envconfig:"LISTEN_ADDR" default:":8080"`
	DatabaseURL     string        `envconfig:"DATABASE_URL" required:"true"`
	JWTSecret       string        `envconfig:"JWT_SECRET" required:"true"`
	LogJSON         bool          `envconfig:"LOG_JSON" default:"true"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`

	// Fee parameters mirror the contract's; min/max of 0 mean "not yet
	// known" and leave the estimator in its pending state.
	FeeBps    int64  `envconfig:"FEE_BPS" default:"100"`
	FeeMinUSD string `envconfig:"FEE_MIN_USD" default:""`
	FeeMaxUSD string `envconfig:"FEE_MAX_USD" default:""`

	// SyncInterval is how often the mirror refreshes from the ledger.
	SyncInterval time.Duration `envconfig:"SYNC_INTERVAL" default:"30s"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("escrowflow", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
