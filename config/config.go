package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yairfalse/vartija/types"
)

// Config represents the main configuration
type Config struct {
	Version     string   `yaml:"version"`
	Region      string   `yaml:"region"`
	Environment string   `yaml:"environment,omitempty"`
	AccountID   string   `yaml:"account_id,omitempty"`
	StorageDir  string   `yaml:"storage_dir,omitempty"`
	RulePacks   []string `yaml:"rule_packs,omitempty"`
	Analysis    Analysis `yaml:"analysis,omitempty"`
	Daemon      Daemon   `yaml:"daemon,omitempty"`
}

// Analysis defines analysis behavior rules
type Analysis struct {
	ComplianceRequirements []string `yaml:"compliance_requirements,omitempty"`
	TrustedAccounts        []string `yaml:"trusted_accounts,omitempty"`
	Workers                int      `yaml:"workers,omitempty"`
}

// Daemon defines continuous scan behavior
type Daemon struct {
	ScanInterval time.Duration `yaml:"scan_interval"`
	MetricsAddr  string        `yaml:"metrics_addr,omitempty"`
}

// LoadConfig loads configuration from file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate ensures config has required fields
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	switch c.Environment {
	case "", types.EnvProduction, types.EnvStaging, types.EnvDevelopment:
	default:
		return fmt.Errorf("unknown environment: %s", c.Environment)
	}
	if c.Daemon.ScanInterval < 0 {
		return fmt.Errorf("scan_interval must not be negative")
	}
	return nil
}

// Options builds the analysis options this config implies.
func (c *Config) Options() types.AnalysisOptions {
	return types.AnalysisOptions{
		Environment:            c.Environment,
		AccountID:              c.AccountID,
		ComplianceRequirements: c.Analysis.ComplianceRequirements,
		TrustedAccounts:        c.Analysis.TrustedAccounts,
	}
}
