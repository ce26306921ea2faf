package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yairfalse/vartija/analyzer"
	"github.com/yairfalse/vartija/config"
	"github.com/yairfalse/vartija/orchestrator"
	"github.com/yairfalse/vartija/rulepack"
	"github.com/yairfalse/vartija/storage"
	"github.com/yairfalse/vartija/types"
)

var (
	version    = "0.1.0"
	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "vartija",
		Short: "Access Policy Risk Analyzer",
		Long: `Vartija - Access Policy Risk Analyzer

Vartija analyzes cloud access-control policies for risky grants:
wildcard permissions, privilege escalation paths, public principals,
weak conditions and cross-service escalation chains.

Findings are scored, shifted by who the policy belongs to, and filtered
through a learned whitelist of approved false positives.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Vartija {{.Version}} - Access Policy Risk Analyzer
`)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// loadConfig reads the configured file, or returns defaults when no
// --config was given.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return &config.Config{Version: "v1", Region: "us-east-1"}, nil
	}
	return config.LoadConfig(configPath)
}

// buildOrchestrator assembles the analysis pipeline from config: the
// engine always, the store and rule packs only when configured.
func buildOrchestrator(ctx context.Context, cfg *config.Config) (*orchestrator.Orchestrator, *storage.Store, error) {
	orch := orchestrator.New(analyzer.NewEngine())

	var store *storage.Store
	if cfg.StorageDir != "" {
		var err error
		store, err = storage.NewStore(cfg.StorageDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open store: %w", err)
		}
		orch.WithRuleStore(store).WithFindingStore(store)
	}

	if len(cfg.RulePacks) > 0 {
		packs := rulepack.NewEngine()
		for _, path := range cfg.RulePacks {
			code, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
			if err != nil {
				return nil, store, fmt.Errorf("failed to read rule pack %s: %w", path, err)
			}
			if err := packs.LoadPack(ctx, path, string(code)); err != nil {
				return nil, store, err
			}
		}
		orch.WithRulePacks(packs)
	}

	return orch, store, nil
}

// optionsFromConfig merges config values with per-command overrides.
func optionsFromConfig(cfg *config.Config, environment, accountID string) types.AnalysisOptions {
	opts := cfg.Options()
	if environment != "" {
		opts.Environment = environment
	}
	if accountID != "" {
		opts.AccountID = accountID
	}
	return opts
}
