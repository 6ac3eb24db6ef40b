// Package config loads mocaport settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Default values used when a field is missing in TOML.
const (
	DefaultConfigFile    = "config.toml"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultLogFile       = "mocaport.log"
	DefaultMaxScore      = 500
	DefaultLoginDelay    = 2 * time.Second
	DefaultPromptTimeout = 15 * time.Second
	DefaultTimeScale     = 1.0
	DefaultZKTLSRate     = 0.90
	DefaultContractRate  = 0.70
	DefaultAPIRate       = 0.95
	DefaultPlatformRate  = 0.95
	DefaultOnChainRate   = 0.90
	DefaultWalletBalance = 2.5
)

// Config is the root configuration.
type Config struct {
	Log          LogConfig          `toml:"log"`
	Session      SessionConfig      `toml:"session"`
	Reputation   ReputationConfig   `toml:"reputation"`
	Verification VerificationConfig `toml:"verification"`
	Wallet       WalletConfig       `toml:"wallet"`
}

// LogConfig holds the slog level and handler format (text or json).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// SessionConfig controls the simulated sign-in.
type SessionConfig struct {
	LoginDelay Duration `toml:"login_delay"`
}

// ReputationConfig holds the score normalisation ceiling.
type ReputationConfig struct {
	MaxScore int `toml:"max_score"`
}

// VerificationConfig tunes the outcome provider.
//
// TimeScale multiplies every simulated delay; 0 disables waiting entirely.
// Seed 0 means a random seed per process.
type VerificationConfig struct {
	Seed          uint64             `toml:"seed"`
	TimeScale     float64            `toml:"time_scale"`
	PromptTimeout Duration           `toml:"prompt_timeout"`
	SuccessRates  map[string]float64 `toml:"success_rates"`
	OnChainRate   float64            `toml:"on_chain_rate"`
}

// WalletConfig holds the mock wallet's starting balance in ETH.
type WalletConfig struct {
	Balance float64 `toml:"balance"`
}

// Duration wraps time.Duration so TOML strings like "15s" decode.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a config with every field set to its default.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
			File:   DefaultLogFile,
		},
		Session: SessionConfig{
			LoginDelay: Duration{DefaultLoginDelay},
		},
		Reputation: ReputationConfig{
			MaxScore: DefaultMaxScore,
		},
		Verification: VerificationConfig{
			TimeScale:     DefaultTimeScale,
			PromptTimeout: Duration{DefaultPromptTimeout},
			SuccessRates: map[string]float64{
				"zktls":          DefaultZKTLSRate,
				"smart-contract": DefaultContractRate,
				"api":            DefaultAPIRate,
				"platform":       DefaultPlatformRate,
			},
			OnChainRate: DefaultOnChainRate,
		},
		Wallet: WalletConfig{
			Balance: DefaultWalletBalance,
		},
	}
}

// Load reads the TOML file at path over the defaults.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("load config: %w", err)
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("load config: decode %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}

	return cfg, nil
}

// Validate reports the first out-of-range setting.
func (c Config) Validate() error {
	if c.Reputation.MaxScore <= 0 {
		return fmt.Errorf("reputation.max_score must be positive, got %d", c.Reputation.MaxScore)
	}
	if c.Verification.TimeScale < 0 {
		return fmt.Errorf("verification.time_scale must not be negative, got %g", c.Verification.TimeScale)
	}
	for method, rate := range c.Verification.SuccessRates {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("verification.success_rates.%s must be within [0,1], got %g", method, rate)
		}
	}
	if c.Verification.OnChainRate < 0 || c.Verification.OnChainRate > 1 {
		return fmt.Errorf("verification.on_chain_rate must be within [0,1], got %g", c.Verification.OnChainRate)
	}
	return nil
}

// Scale applies the configured time scale to d.
func (c VerificationConfig) Scale(d time.Duration) time.Duration {
	return time.Duration(float64(d) * c.TimeScale)
}
