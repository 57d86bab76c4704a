// config.go - Configuration management for the ledger runner
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// envPrefix namespaces every environment override, e.g. LEDGER_LOG_LEVEL.
const envPrefix = "LEDGER_"

// Config represents the application configuration
type Config struct {
	// Ledger genesis
	Admin          string `json:"admin" env:"ADMIN"`
	ContractID     string `json:"contract_id" env:"CONTRACT_ID"`
	ValueScale     uint64 `json:"value_scale" env:"VALUE_SCALE"`
	PlaintextBound uint64 `json:"plaintext_bound" env:"PLAINTEXT_BOUND"`

	// File paths
	ScriptPath  string `json:"script_path" env:"SCRIPT_PATH"`
	JournalPath string `json:"journal_path" env:"JOURNAL_PATH"`
	WalletPath  string `json:"wallet_path" env:"WALLET_PATH"`

	// Logging
	LogLevel  string `json:"log_level" env:"LOG_LEVEL"`
	LogFormat string `json:"log_format" env:"LOG_FORMAT"`
	LogFile   string `json:"log_file" env:"LOG_FILE"`

	// Performance
	MaxConcurrency int `json:"max_concurrency" env:"MAX_CONCURRENCY"`
	TimeoutSeconds int `json:"timeout_seconds" env:"TIMEOUT_SECONDS"`

	// Submission limits, per principal
	RateBurst        int `json:"rate_burst" env:"RATE_BURST"`
	RateRefill       int `json:"rate_refill" env:"RATE_REFILL"`
	RatePeriodMillis int `json:"rate_period_ms" env:"RATE_PERIOD_MS"`

	// Security
	EnableAudit  bool   `json:"enable_audit" env:"ENABLE_AUDIT"`
	AuditLogPath string `json:"audit_log_path" env:"AUDIT_LOG_PATH"`

	// Tracing is off unless an OTLP/HTTP endpoint is configured.
	OTelEndpoint string `json:"otel_endpoint" env:"OTEL_ENDPOINT"`
	ServiceName  string `json:"service_name" env:"SERVICE_NAME"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Admin:            "admin",
		ContractID:       "confidential-ledger",
		ValueScale:       1000,
		PlaintextBound:   1 << 32,
		JournalPath:      "journal.db",
		WalletPath:       "wallets.json",
		LogLevel:         "info",
		LogFormat:        "console",
		MaxConcurrency:   4,
		TimeoutSeconds:   30,
		RateBurst:        20,
		RateRefill:       5,
		RatePeriodMillis: 1000,
		EnableAudit:      true,
		AuditLogPath:     "audit.log",
		ServiceName:      "ledgerd",
	}
}

// LoadConfig loads configuration from file or creates default, then applies
// LEDGER_* environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		file, err := os.Open(configPath)
		switch {
		case err == nil:
			defer file.Close()
			if err := json.NewDecoder(file).Decode(config); err != nil {
				return nil, fmt.Errorf("failed to decode config file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			if err := SaveConfig(config, configPath); err != nil {
				return nil, fmt.Errorf("failed to save default config: %w", err)
			}
		default:
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(config, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Admin == "" {
		return fmt.Errorf("admin must be set")
	}
	if c.ContractID == "" {
		return fmt.Errorf("contract_id must be set")
	}
	if c.ValueScale == 0 {
		return fmt.Errorf("value_scale must be positive")
	}
	if c.PlaintextBound == 0 {
		return fmt.Errorf("plaintext_bound must be positive")
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be positive")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}
	if c.RateBurst <= 0 || c.RateRefill <= 0 || c.RatePeriodMillis <= 0 {
		return fmt.Errorf("rate_burst, rate_refill and rate_period_ms must be positive")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	return nil
}
