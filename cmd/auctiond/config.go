package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/cloudx-io/escrowauction/core"
	"github.com/cloudx-io/escrowauction/receipt"
)

const envPrefix = "AUCTIOND_"

// Config is loaded from an optional TOML file, then overridden by
// AUCTIOND_-prefixed environment variables.
type Config struct {
	// Network is "tcp" or "vsock".
	Network   string `toml:"network" env:"NETWORK"`
	Address   string `toml:"address" env:"ADDRESS"`
	VsockPort uint32 `toml:"vsock_port" env:"VSOCK_PORT"`

	// MaxWorkers bounds concurrent connections. Required.
	MaxWorkers      int           `toml:"max_workers" env:"MAX_WORKERS"`
	ReadTimeout     time.Duration `toml:"read_timeout" env:"READ_TIMEOUT"`
	MaxRequestBytes int64         `toml:"max_request_bytes" env:"MAX_REQUEST_BYTES"`

	EngineIdentity      string        `toml:"engine_identity" env:"ENGINE_IDENTITY"`
	Admin               string        `toml:"admin" env:"ADMIN"`
	MinDuration         time.Duration `toml:"min_duration" env:"MIN_DURATION"`
	ExclusiveMinimum    bool          `toml:"exclusive_minimum" env:"EXCLUSIVE_MINIMUM"`
	PauseBlocksFinalize bool          `toml:"pause_blocks_finalize" env:"PAUSE_BLOCKS_FINALIZE"`

	// SignerMode is "key" or "nitro". In key mode an ephemeral key is
	// generated when SigningKeyFile is empty.
	SignerMode     string `toml:"signer_mode" env:"SIGNER_MODE"`
	SigningKeyFile string `toml:"signing_key_file" env:"SIGNING_KEY_FILE"`
	ModuleID       string `toml:"module_id" env:"MODULE_ID"`

	// JournalPath enables the SQLite event journal when set.
	JournalPath string `toml:"journal_path" env:"JOURNAL_PATH"`

	LogLevel  string `toml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `toml:"log_format" env:"LOG_FORMAT"`
}

func defaultConfig() Config {
	return Config{
		Network:         "tcp",
		Address:         "127.0.0.1:5000",
		VsockPort:       5000,
		ReadTimeout:     30 * time.Second,
		MaxRequestBytes: 1 << 20,
		EngineIdentity:  "auctiond",
		MinDuration:     core.DefaultMinDuration,
		SignerMode:      receipt.ModeKey,
		ModuleID:        "auctiond",
		LogLevel:        "info",
		LogFormat:       "console",
	}
}

// loadConfig applies path (if any) and then environ over the defaults.
// A nil environ reads the process environment.
func loadConfig(path string, environ map[string]string) (Config, error) {
	cfg := defaultConfig()

	if strings.TrimSpace(path) != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load auctiond config: %w", err)
		}
	}

	opts := env.Options{Prefix: envPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.Network = strings.ToLower(strings.TrimSpace(c.Network))
	c.SignerMode = strings.ToLower(strings.TrimSpace(c.SignerMode))
	c.Admin = strings.TrimSpace(c.Admin)
	c.EngineIdentity = strings.TrimSpace(c.EngineIdentity)

	switch c.Network {
	case "tcp":
		if c.Address == "" {
			return fmt.Errorf("address is required for tcp")
		}
	case "vsock":
		if c.VsockPort == 0 {
			return fmt.Errorf("vsock_port is required for vsock")
		}
	default:
		return fmt.Errorf("unsupported network %q (must be tcp or vsock)", c.Network)
	}

	if c.MaxWorkers <= 0 {
		return fmt.Errorf("required setting %sMAX_WORKERS is not set (must be a positive integer)", envPrefix)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}
	if c.MaxRequestBytes <= 0 {
		return fmt.Errorf("max_request_bytes must be positive")
	}
	if c.Admin == "" {
		return fmt.Errorf("admin is required")
	}
	if c.EngineIdentity == "" {
		return fmt.Errorf("engine_identity is required")
	}
	if c.Admin == c.EngineIdentity {
		return fmt.Errorf("admin and engine_identity must differ")
	}

	switch c.SignerMode {
	case receipt.ModeKey, receipt.ModeNitro:
	default:
		return fmt.Errorf("unsupported signer_mode %q (must be %s or %s)", c.SignerMode, receipt.ModeKey, receipt.ModeNitro)
	}
	return nil
}

func (c Config) durationBoundary() core.DurationBoundary {
	if c.ExclusiveMinimum {
		return core.BoundaryExclusive
	}
	return core.BoundaryInclusive
}
