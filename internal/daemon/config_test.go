package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8451 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8451)
	}
	if cfg.Chain.MinimumBalance != 1_000 {
		t.Errorf("Chain.MinimumBalance = %d, want 1000", cfg.Chain.MinimumBalance)
	}
	if !cfg.Oracle.Enabled {
		t.Error("oracle should be enabled by default")
	}
}

func TestChainInterval(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"6s", 6 * time.Second},
		{"500ms", 500 * time.Millisecond},
		{"", 6 * time.Second},       // default
		{"bogus", 6 * time.Second},  // unparseable
		{"-2s", 6 * time.Second},    // nonsense
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c := ChainConfig{BlockInterval: tt.input}
			if got := c.Interval(); got != tt.want {
				t.Errorf("Interval(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("GRIDD_HOME", home)

	raw := `
[api]
port = 9000

[chain]
block_interval = "2s"
oracle_accounts = ["aabb"]

[oracle]
enabled = false
`
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(raw), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("port = %d", cfg.API.Port)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("unset host lost its default: %q", cfg.API.Host)
	}
	if cfg.Chain.Interval() != 2*time.Second {
		t.Errorf("interval = %s", cfg.Chain.Interval())
	}
	if len(cfg.Chain.OracleAccounts) != 1 || cfg.Chain.OracleAccounts[0] != "aabb" {
		t.Errorf("oracle accounts = %v", cfg.Chain.OracleAccounts)
	}
	if cfg.Oracle.Enabled {
		t.Error("oracle override ignored")
	}
}
