package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yairfalse/vartija/orchestrator"
	"github.com/yairfalse/vartija/providers/aws"
)

var (
	scanRegion      string
	scanEnvironment string
	scanFormat      string
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Fetch and analyze live account policies",
	Long: `Scan a live account: fetch IAM role policies (trust, inline and
attached), S3 bucket policies and Lambda resource policies, then run the
whole set through the analysis pipeline as one batch.

The caller's account ID comes from STS and drives cross-account
detection; pass --account-id to override it.`,
	Example: `  vartija scan                           # Scan the default region
  vartija scan --region eu-west-1        # Specific region
  vartija scan --environment production  # Production context checks
  vartija scan --format json             # Machine-readable`,
	RunE: runLiveScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanRegion, "region", "r", "", "AWS region to scan (config region when empty)")
	scanCmd.Flags().StringVarP(&scanEnvironment, "environment", "e", "", "Deployment environment (development, staging, production)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "text", "Output format: text, json")
}

func runLiveScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	region := scanRegion
	if region == "" {
		region = cfg.Region
	}

	fetcher, err := aws.NewFetcher(ctx, region)
	if err != nil {
		return err
	}

	orch, store, err := buildOrchestrator(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	opts := optionsFromConfig(cfg, scanEnvironment, "")
	if opts.AccountID == "" {
		account, err := fetcher.AccountID(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve account: %w", err)
		}
		opts.AccountID = account
	}

	records, err := fetcher.FetchAll(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no policies found")
		return nil
	}

	inputs := make([]orchestrator.PolicyInput, len(records))
	for i, rec := range records {
		recOpts := opts
		recOpts.RoleName = rec.RoleName
		recOpts.IsTrustPolicy = rec.IsTrustPolicy
		inputs[i] = orchestrator.PolicyInput{
			Name:     rec.Name,
			Service:  rec.Service,
			Document: rec.Document,
			Options:  recOpts,
		}
	}

	batch := orch.AnalyzeBatch(ctx, inputs)
	return printOutcomes(cmd.OutOrStdout(), batch, scanFormat)
}
