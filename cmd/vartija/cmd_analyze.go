package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yairfalse/vartija/orchestrator"
)

var (
	analyzeService     string
	analyzeEnvironment string
	analyzeAccountID   string
	analyzeRoleName    string
	analyzeTrustPolicy bool
	analyzeFormat      string
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <policy.json> [policy.json...]",
	Short: "Analyze policy documents for risky grants",
	Long: `Analyze one or more policy documents and report findings.

Each document is classified by its subject (root, service role,
cross-account, admin), matched against the service's risk patterns,
checked semantically for privilege escalation and weak conditions, and
scored 0-100. Multiple documents run as one batch with an aggregated
weighted risk score.`,
	Example: `  vartija analyze policy.json                      # Single policy
  vartija analyze --service s3 bucket-policy.json  # Force the service
  vartija analyze --trust-policy trust.json        # Trust policy checks
  vartija analyze --environment production *.json  # Production context
  vartija analyze --format json policy.json        # Machine-readable`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&analyzeService, "service", "s", "", "Service the policies belong to (iam, s3, lambda); guessed from filename when empty")
	analyzeCmd.Flags().StringVarP(&analyzeEnvironment, "environment", "e", "", "Deployment environment (development, staging, production)")
	analyzeCmd.Flags().StringVar(&analyzeAccountID, "account-id", "", "Account the policies are evaluated against")
	analyzeCmd.Flags().StringVar(&analyzeRoleName, "role-name", "", "Role the policies are attached to")
	analyzeCmd.Flags().BoolVar(&analyzeTrustPolicy, "trust-policy", false, "Treat the documents as trust policies")
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "text", "Output format: text, json")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, store, err := buildOrchestrator(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	opts := optionsFromConfig(cfg, analyzeEnvironment, analyzeAccountID)
	opts.RoleName = analyzeRoleName
	opts.IsTrustPolicy = analyzeTrustPolicy

	inputs := make([]orchestrator.PolicyInput, 0, len(args))
	for _, path := range args {
		document, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
		if err != nil {
			return fmt.Errorf("failed to read policy %s: %w", path, err)
		}
		inputs = append(inputs, orchestrator.PolicyInput{
			Name:     filepath.Base(path),
			Service:  serviceForPath(path),
			Document: document,
			Options:  opts,
		})
	}

	batch := orch.AnalyzeBatch(cmd.Context(), inputs)
	return printOutcomes(cmd.OutOrStdout(), batch, analyzeFormat)
}

// serviceForPath uses the --service flag when set, otherwise guesses
// from the filename. Unknown names fall back to iam.
func serviceForPath(path string) string {
	if analyzeService != "" {
		return analyzeService
	}
	name := strings.ToLower(filepath.Base(path))
	for _, svc := range []string{"s3", "lambda", "iam"} {
		if strings.Contains(name, svc) {
			return svc
		}
	}
	return "iam"
}
