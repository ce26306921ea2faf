package analyzer

import (
	"strings"

	"github.com/yairfalse/vartija/types"
)

// lambdaAnalyzer is the Lambda service variant.
type lambdaAnalyzer struct{}

func (lambdaAnalyzer) Service() string { return "lambda" }

var lambdaPatterns = []PatternRule{
	{
		Pattern:        `lambda:*`,
		Type:           "lambda_full_access",
		Severity:       types.SeverityCritical,
		Description:    "Policy grants all Lambda actions",
		Recommendation: "Grant only the function actions the workload needs",
	},
	{
		Pattern:        `"principal":"*"`,
		Type:           "public_principal",
		Severity:       types.SeverityCritical,
		Description:    "Function policy is open to any principal",
		Recommendation: "Name the invoking services or accounts explicitly",
	},
	{
		Pattern:        `"action":"*"`,
		Type:           "wildcard_action",
		Severity:       types.SeverityCritical,
		Description:    "Policy allows all actions across all services",
		Recommendation: "Replace the wildcard action with the minimum action set",
	},
	{
		Pattern:        `"notaction"`,
		Type:           "not_action",
		Severity:       types.SeverityHigh,
		Description:    "NotAction grants everything except the listed actions",
		Recommendation: "Express grants as explicit Action lists",
	},
	{
		Pattern:        `lambda:addpermission`,
		Type:           "permission_write",
		Severity:       types.SeverityHigh,
		Description:    "Policy allows widening function resource policies",
		Recommendation: "Reserve lambda:AddPermission for deployment tooling",
	},
	{
		Pattern:        `lambda:updatefunctioncode`,
		Type:           "code_write",
		Severity:       types.SeverityHigh,
		Description:    "Policy allows replacing function code",
		Recommendation: "Restrict code updates to the CI/CD pipeline role",
	},
	{
		Pattern:        `iam:passrole`,
		Type:           "pass_role",
		Severity:       types.SeverityHigh,
		Description:    "Policy allows passing execution roles to functions",
		Recommendation: "Constrain iam:PassRole to the function execution roles",
	},
	{
		Pattern:        `aws:sourcearn`,
		Type:           "source_arn_condition",
		Severity:       types.SeverityLow,
		Description:    "Invocation is restricted by source ARN",
		Positive:       true,
	},
}

var lambdaSensitiveActions = []string{
	"lambda:addpermission",
	"lambda:updatefunctioncode",
	"lambda:updatefunctionconfiguration",
	"lambda:createfunction",
	"lambda:deletefunction",
	"lambda:putfunctionconcurrency",
}

// lambdaInvocationActions trigger function execution.
var lambdaInvocationActions = []string{
	"lambda:invokefunction",
	"lambda:invokeasync",
	"lambda:invokefunctionurl",
}

func (lambdaAnalyzer) Patterns() []PatternRule          { return lambdaPatterns }
func (lambdaAnalyzer) SensitiveActions() []string       { return lambdaSensitiveActions }
func (lambdaAnalyzer) DowngradeHighWithPositives() bool { return true }
func (lambdaAnalyzer) FloorScoreAtZero() bool           { return false }

// AnalyzeStatement runs the Lambda structural checks. Public and
// service-principal invocation are reported as distinct findings
// because the remediation differs, even though the trigger logic is
// nearly identical.
func (a lambdaAnalyzer) AnalyzeStatement(stmt types.Statement, idx int) []types.Finding {
	if !stmt.IsAllow() {
		return nil
	}

	findings := commonStatementChecks(a.Service(), stmt, idx, lambdaSensitiveActions)

	if !hasInvocationAction(stmt) || conditionHasKey(stmt.Condition, "aws:SourceArn") {
		return findings
	}

	switch {
	case stmt.Principal.IsPublic():
		findings = append(findings, types.Finding{
			Type:            "public_invocation",
			Severity:        types.SeverityCritical,
			Description:     "Function can be invoked by any principal without a source ARN restriction",
			Recommendation:  "Remove the wildcard principal or add an aws:SourceArn condition",
			DetectionMethod: types.DetectionSemantic,
			Service:         a.Service(),
			StatementIndex:  idx,
		})
	case stmt.Principal != nil && len(stmt.Principal.Service) > 0:
		findings = append(findings, types.Finding{
			Type:            "service_invocation_unrestricted",
			Severity:        types.SeverityHigh,
			Description:     "Service principal " + stmt.Principal.Service[0] + " can invoke the function without a source ARN restriction",
			Recommendation:  "Add an aws:SourceArn condition naming the triggering resource",
			DetectionMethod: types.DetectionSemantic,
			Service:         a.Service(),
			StatementIndex:  idx,
		})
	}

	return findings
}

func hasInvocationAction(stmt types.Statement) bool {
	for _, a := range stmt.Actions() {
		la := strings.ToLower(a)
		for _, inv := range lambdaInvocationActions {
			if la == inv {
				return true
			}
		}
	}
	return false
}

// AnalyzeContext runs the Lambda contextual checks: production exposure
// and cross-service escalation.
func (a lambdaAnalyzer) AnalyzeContext(doc *types.PolicyDocument, opts types.AnalysisOptions) []types.Finding {
	var findings []types.Finding
	findings = append(findings, productionExposure(a.Service(), doc, opts)...)
	findings = append(findings, crossServiceEscalation(a.Service(), doc, opts)...)
	return findings
}

// ScoreDelta adds Lambda-characteristic bonuses and penalties.
func (lambdaAnalyzer) ScoreDelta(serialized string) int {
	return scoreBySubstrings(serialized, []scoreDelta{
		{substr: "lambda:addpermission", delta: 10},
		{substr: "lambda:updatefunctioncode", delta: 10},
		{substr: "aws:sourcearn", delta: -5},
	})
}
