package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	content := `
version: v1
region: eu-west-1
environment: production
account_id: "123456789012"
storage_dir: /var/lib/vartija

rule_packs:
  - packs/deny-wildcards.rego

analysis:
  compliance_requirements:
    - PCI
  trusted_accounts:
    - "210987654321"
  workers: 4

daemon:
  scan_interval: 15m
  metrics_addr: ":9090"
`
	path := filepath.Join(t.TempDir(), "vartija.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Version != "v1" {
		t.Errorf("Version = %v, want v1", cfg.Version)
	}
	if cfg.Region != "eu-west-1" {
		t.Errorf("Region = %v, want eu-west-1", cfg.Region)
	}
	if cfg.Environment != "production" {
		t.Errorf("Environment = %v, want production", cfg.Environment)
	}
	if len(cfg.RulePacks) != 1 {
		t.Errorf("RulePacks count = %v, want 1", len(cfg.RulePacks))
	}
	if cfg.Analysis.Workers != 4 {
		t.Errorf("Workers = %v, want 4", cfg.Analysis.Workers)
	}
	if cfg.Daemon.ScanInterval.Minutes() != 15 {
		t.Errorf("ScanInterval = %v, want 15m", cfg.Daemon.ScanInterval)
	}

	opts := cfg.Options()
	if opts.AccountID != "123456789012" {
		t.Errorf("Options().AccountID = %v, want 123456789012", opts.AccountID)
	}
	if !opts.RequiresEncryption() {
		t.Error("Options().RequiresEncryption() = false, want true with PCI")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/vartija.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid minimal", Config{Version: "v1", Region: "us-east-1"}, false},
		{"missing version", Config{Region: "us-east-1"}, true},
		{"missing region", Config{Version: "v1"}, true},
		{"bad environment", Config{Version: "v1", Region: "us-east-1", Environment: "prod"}, true},
		{"known environment", Config{Version: "v1", Region: "us-east-1", Environment: "staging"}, false},
		{"negative interval", Config{Version: "v1", Region: "us-east-1", Daemon: Daemon{ScanInterval: -1}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
