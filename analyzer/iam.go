package analyzer

import (
	"github.com/yairfalse/vartija/types"
)

// iamAnalyzer is the IAM service variant. Stateless; one shared value
// lives in the engine registry.
type iamAnalyzer struct{}

func (iamAnalyzer) Service() string { return "iam" }

var iamPatterns = []PatternRule{
	{
		Pattern:        `"action":"*"`,
		Type:           "wildcard_action",
		Severity:       types.SeverityCritical,
		Description:    "Policy allows all actions across all services",
		Recommendation: "Replace the wildcard action with the minimum action set the workload needs",
	},
	{
		Pattern:        `iam:*`,
		Type:           "iam_full_access",
		Severity:       types.SeverityCritical,
		Description:    "Policy grants all IAM permissions",
		Recommendation: "Grant individual IAM actions instead of iam:*",
	},
	{
		Pattern:        `"principal":"*"`,
		Type:           "public_principal",
		Severity:       types.SeverityCritical,
		Description:    "Statement applies to any principal",
		Recommendation: "Name the principals the statement is meant for",
	},
	{
		Pattern:        `"notaction"`,
		Type:           "not_action",
		Severity:       types.SeverityHigh,
		Description:    "NotAction grants everything except the listed actions",
		Recommendation: "Express grants as explicit Action lists",
	},
	{
		Pattern:        `iam:passrole`,
		Type:           "pass_role",
		Severity:       types.SeverityHigh,
		Description:    "Policy allows passing roles to other services",
		Recommendation: "Constrain iam:PassRole to specific role ARNs and services",
	},
	{
		Pattern:        `iam:createpolicyversion`,
		Type:           "policy_version_escalation",
		Severity:       types.SeverityHigh,
		Description:    "Policy allows rewriting managed policy versions, a known escalation path",
		Recommendation: "Restrict iam:CreatePolicyVersion to administrators",
	},
	{
		Pattern:        `sts:assumerole`,
		Type:           "role_assumption",
		Severity:       types.SeverityMedium,
		Description:    "Policy allows assuming other roles",
		Recommendation: "Scope sts:AssumeRole to the exact roles required",
	},
	{
		Pattern:        `aws:multifactorauthpresent`,
		Type:           "mfa_condition",
		Severity:       types.SeverityLow,
		Description:    "Policy requires multi-factor authentication",
		Recommendation: "",
		Positive:       true,
	},
	{
		Pattern:        `aws:sourceip`,
		Type:           "source_ip_condition",
		Severity:       types.SeverityLow,
		Description:    "Policy restricts access by source IP",
		Recommendation: "",
		Positive:       true,
	},
}

// iamSensitiveActions complements the shared privilege-escalation set;
// the two lists are disjoint so one statement condition maps to one
// finding type.
var iamSensitiveActions = []string{
	"iam:createrole",
	"iam:createuser",
	"iam:createpolicy",
	"iam:deleterole",
	"iam:deleteuser",
	"iam:deletepolicy",
	"iam:detachrolepolicy",
	"iam:deleterolepolicy",
	"iam:updateloginprofile",
}

func (iamAnalyzer) Patterns() []PatternRule      { return iamPatterns }
func (iamAnalyzer) SensitiveActions() []string   { return iamSensitiveActions }
func (iamAnalyzer) DowngradeHighWithPositives() bool { return false }
func (iamAnalyzer) FloorScoreAtZero() bool       { return true }

// AnalyzeStatement runs the IAM structural checks. Deny statements are
// skipped for permissive checks and credited as explicit denies.
func (a iamAnalyzer) AnalyzeStatement(stmt types.Statement, idx int) []types.Finding {
	if !stmt.IsAllow() {
		return []types.Finding{{
			Type:            "explicit_deny",
			Severity:        types.SeverityLow,
			Description:     "Policy contains an explicit deny statement",
			Positive:        true,
			DetectionMethod: types.DetectionBestPractice,
			Service:         a.Service(),
			StatementIndex:  idx,
		}}
	}

	return commonStatementChecks(a.Service(), stmt, idx, iamSensitiveActions)
}

// AnalyzeContext runs the IAM contextual checks: trust exposure,
// production exposure and cross-service escalation.
func (a iamAnalyzer) AnalyzeContext(doc *types.PolicyDocument, opts types.AnalysisOptions) []types.Finding {
	var findings []types.Finding
	findings = append(findings, trustExposure(a.Service(), doc, opts)...)
	findings = append(findings, productionExposure(a.Service(), doc, opts)...)
	findings = append(findings, crossServiceEscalation(a.Service(), doc, opts)...)
	return findings
}

// ScoreDelta adds IAM-characteristic bonuses and penalties.
func (iamAnalyzer) ScoreDelta(serialized string) int {
	return scoreBySubstrings(serialized, []scoreDelta{
		{substr: "iam:passrole", delta: 10},
		{substr: "iam:createpolicyversion", delta: 10},
		{substr: "iam:createaccesskey", delta: 10},
		{substr: "aws:multifactorauthpresent", delta: -5},
		{substr: "aws:sourceip", delta: -5},
	})
}
