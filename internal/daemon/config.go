// Package daemon manages the node lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all node configuration.
type Config struct {
	Node      NodeConfig      `toml:"node"`
	API       APIConfig       `toml:"api"`
	Chain     ChainConfig     `toml:"chain"`
	Oracle    OracleConfig    `toml:"oracle"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// NodeConfig identifies this node.
type NodeConfig struct {
	ID string `toml:"id"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// ChainConfig controls block production and the marketplace runtime.
type ChainConfig struct {
	BlockInterval  string   `toml:"block_interval"`
	PoolCapacity   int      `toml:"pool_capacity"`
	MinimumBalance uint64   `toml:"minimum_balance"`
	OracleAccounts []string `toml:"oracle_accounts"`
}

// OracleConfig controls the off-chain pricing worker.
type OracleConfig struct {
	Enabled     bool   `toml:"enabled"`
	ExplorerURL string `toml:"explorer_url"`
}

// TelemetryConfig controls observability endpoints.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns sensible node defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8451,
		},
		Chain: ChainConfig{
			BlockInterval:  "6s",
			PoolCapacity:   4096,
			MinimumBalance: 1_000,
		},
		Oracle: OracleConfig{
			Enabled: true,
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads config from ~/.gridd/config.toml, falling back to
// defaults when no file exists.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(griddHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.gridd/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(griddHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// Interval parses the configured block cadence, with a fallback.
func (c ChainConfig) Interval() time.Duration {
	d, err := time.ParseDuration(c.BlockInterval)
	if err != nil || d <= 0 {
		return 6 * time.Second
	}
	return d
}

// griddHome returns the node data directory.
func griddHome() string {
	if env := os.Getenv("GRIDD_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gridd")
}

// GriddHome is exported for use by other packages.
func GriddHome() string {
	return griddHome()
}
