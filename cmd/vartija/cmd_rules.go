package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yairfalse/vartija/storage"
	"github.com/yairfalse/vartija/suppress"
	"github.com/yairfalse/vartija/types"
)

var (
	rulesStorageDir  string
	rulesService     string
	rulesPattern     string
	rulesSeverity    string
	rulesDescription string
	rulesReason      string
	rulesCreatedBy   string
)

// rulesCmd represents the rules command group
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage whitelist suppression rules",
	Long: `Manage the whitelist rules that suppress approved false positives.

Rules match findings in four passes: exact finding identity, regex
pattern, fuzzy description similarity, and severity-downgrade coverage
by a stricter rule. Approving a finding synthesizes a regex pattern
from its description so future near-identical findings match too.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rules",
	Example: `  vartija rules list                 # All rules
  vartija rules list --service iam   # Rules for one service`,
	RunE: runRulesList,
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a manual rule",
	Example: `  vartija rules add --service iam --severity high \
    --pattern 'terraform.*deploy.*role' --reason 'vetted deploy role'`,
	RunE: runRulesAdd,
}

var rulesApproveCmd = &cobra.Command{
	Use:   "approve <finding-id>",
	Short: "Approve a stored finding as a false positive",
	Long: `Approve a finding: synthesize a whitelist rule from it so this
finding and near-identical ones are suppressed in future analyses.`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesApprove,
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <rule-id>",
	Short: "Delete a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesDelete,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesApproveCmd, rulesDeleteCmd)

	rulesCmd.PersistentFlags().StringVar(&rulesStorageDir, "storage", "", "Storage directory (config storage_dir when empty)")
	rulesListCmd.Flags().StringVarP(&rulesService, "service", "s", "", "Filter by service")

	rulesAddCmd.Flags().StringVarP(&rulesService, "service", "s", "", "Service the rule applies to")
	rulesAddCmd.Flags().StringVar(&rulesPattern, "pattern", "", "Regex matched against finding descriptions")
	rulesAddCmd.Flags().StringVar(&rulesSeverity, "severity", "", "Severity the rule covers (critical, high, medium, low)")
	rulesAddCmd.Flags().StringVar(&rulesDescription, "description", "", "Description for exact matching")
	rulesAddCmd.Flags().StringVar(&rulesReason, "reason", "", "Why this finding is acceptable")
	_ = rulesAddCmd.MarkFlagRequired("service")
	_ = rulesAddCmd.MarkFlagRequired("severity")
	_ = rulesAddCmd.MarkFlagRequired("reason")

	rulesApproveCmd.Flags().StringVar(&rulesCreatedBy, "created-by", "", "Who approved the finding")
}

func openStore() (*storage.Store, error) {
	dir := rulesStorageDir
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		dir = cfg.StorageDir
	}
	if dir == "" {
		return nil, fmt.Errorf("no storage directory: set --storage or storage_dir in config")
	}
	return storage.NewStore(dir)
}

func runRulesList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var rules []types.WhitelistRule
	if rulesService != "" {
		rules, err = store.RulesByService(rulesService)
	} else {
		rules, err = store.AllRules()
	}
	if err != nil {
		return err
	}

	if len(rules) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no rules stored")
		return nil
	}

	for _, rule := range rules {
		fmt.Fprintf(cmd.OutOrStdout(), "%s [%s/%s] matches=%d source=%s\n  pattern: %s\n  reason:  %s\n",
			rule.ID, rule.Service, rule.Severity, rule.MatchCount, rule.SourceType,
			rule.Pattern, rule.Reason)
	}
	return nil
}

func runRulesAdd(cmd *cobra.Command, args []string) error {
	if rulesPattern == "" && rulesDescription == "" {
		return fmt.Errorf("either --pattern or --description is required")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rule, err := store.SaveRule(types.WhitelistRule{
		Pattern:     rulesPattern,
		Description: rulesDescription,
		Service:     rulesService,
		Severity:    types.Severity(rulesSeverity),
		Reason:      rulesReason,
		CreatedBy:   currentUser(),
		SourceType:  types.RuleSourceManual,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "rule %s saved\n", rule.ID)
	return nil
}

func runRulesApprove(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	finding, err := store.GetFinding(args[0])
	if err != nil {
		return fmt.Errorf("failed to load finding %s: %w", args[0], err)
	}

	createdBy := rulesCreatedBy
	if createdBy == "" {
		createdBy = currentUser()
	}

	rule, err := store.SaveRule(suppress.RuleFromFinding(finding, createdBy))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "rule %s saved\n  pattern: %s\n", rule.ID, rule.Pattern)
	return nil
}

func runRulesDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.DeleteRule(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rule %s deleted\n", args[0])
	return nil
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}
