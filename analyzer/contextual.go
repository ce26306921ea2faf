package analyzer

import (
	"strings"

	"github.com/yairfalse/vartija/types"
)

// Contextual checks consume caller-supplied, fully-normalized options
// and perform no I/O. A missing option silently skips its check.

// trustExposure flags cross-account principals in a trust policy that
// are outside the caller's trusted set.
func trustExposure(service string, doc *types.PolicyDocument, opts types.AnalysisOptions) []types.Finding {
	if !opts.IsTrustPolicy {
		return nil
	}

	trusted := opts.TrustedAccountSet()
	var findings []types.Finding

	for idx, stmt := range doc.Statements {
		if !stmt.IsAllow() || stmt.Principal == nil {
			continue
		}

		if stmt.Principal.IsPublic() {
			findings = append(findings, types.Finding{
				Type:            "trust_policy_public",
				Severity:        types.SeverityCritical,
				Description:     "Trust policy allows any principal to assume this role",
				Recommendation:  "Name the exact accounts or services allowed to assume the role",
				DetectionMethod: types.DetectionContext,
				Service:         service,
				StatementIndex:  idx,
			})
			continue
		}

		for _, arn := range stmt.Principal.AWS {
			account := accountFromARN(arn)
			if account == "" || account == opts.AccountID {
				continue
			}
			if _, ok := trusted[account]; ok {
				continue
			}
			findings = append(findings, types.Finding{
				Type:            "untrusted_cross_account",
				Severity:        types.SeverityHigh,
				Description:     "Trust policy grants assume-role to external account " + account + " outside the trusted set",
				Recommendation:  "Add an ExternalId condition or remove the external account from the trust policy",
				DetectionMethod: types.DetectionContext,
				Service:         service,
				StatementIndex:  idx,
			})
		}
	}

	return findings
}

// productionExposure flags public principals when the policy belongs to
// a production environment.
func productionExposure(service string, doc *types.PolicyDocument, opts types.AnalysisOptions) []types.Finding {
	if opts.Environment != types.EnvProduction {
		return nil
	}

	var findings []types.Finding
	for idx, stmt := range doc.Statements {
		if !stmt.IsAllow() || !stmt.Principal.IsPublic() {
			continue
		}
		findings = append(findings, types.Finding{
			Type:            "public_access_production",
			Severity:        types.SeverityHigh,
			Description:     "Production policy grants access to any principal",
			Recommendation:  "Remove the wildcard principal or gate it behind strict conditions",
			DetectionMethod: types.DetectionContext,
			Service:         service,
			StatementIndex:  idx,
		})
	}
	return findings
}

// complianceEncryption enforces PCI/HIPAA encryption conditions on
// object-write statements.
func complianceEncryption(service string, doc *types.PolicyDocument, opts types.AnalysisOptions) []types.Finding {
	if !opts.RequiresEncryption() {
		return nil
	}

	var findings []types.Finding
	for idx, stmt := range doc.Statements {
		if !stmt.IsAllow() || !hasObjectWriteAction(stmt) {
			continue
		}
		if conditionHasKey(stmt.Condition, "s3:x-amz-server-side-encryption") {
			continue
		}
		findings = append(findings, types.Finding{
			Type:            "compliance_missing_encryption",
			Severity:        types.SeverityHigh,
			Description:     "Compliance framework (" + strings.Join(opts.ComplianceRequirements, ", ") + ") requires an encryption condition on object writes",
			Recommendation:  "Require s3:x-amz-server-side-encryption on PutObject statements",
			DetectionMethod: types.DetectionContext,
			Service:         service,
			StatementIndex:  idx,
		})
	}
	return findings
}

func hasObjectWriteAction(stmt types.Statement) bool {
	for _, a := range stmt.Actions() {
		la := strings.ToLower(a)
		if la == "s3:putobject" || la == "s3:*" || la == "*" {
			return true
		}
	}
	return false
}

// crossServiceEscalation detects a Lambda-assumable role that also
// holds unrestricted S3 or IAM-management permissions via AllPolicies.
func crossServiceEscalation(service string, doc *types.PolicyDocument, opts types.AnalysisOptions) []types.Finding {
	if len(opts.AllPolicies) == 0 || !trustsLambda(doc) {
		return nil
	}

	var findings []types.Finding

	if hasUnrestrictedEntry(opts.AllPolicies["s3"], "s3:*") {
		findings = append(findings, types.Finding{
			Type:            "cross_service_escalation",
			Severity:        types.SeverityHigh,
			Description:     "Lambda-assumable role also holds unrestricted S3 permissions",
			Recommendation:  "Split the function role from the S3 administration role",
			DetectionMethod: types.DetectionContext,
			Service:         service,
			CrossService:    true,
		})
	}

	if hasUnrestrictedEntry(opts.AllPolicies["iam"], "iam:*") {
		findings = append(findings, types.Finding{
			Type:            "cross_service_escalation",
			Severity:        types.SeverityHigh,
			Description:     "Lambda-assumable role also holds IAM-management permissions",
			Recommendation:  "Remove IAM write permissions from function execution roles",
			DetectionMethod: types.DetectionContext,
			Service:         service,
			CrossService:    true,
		})
	}

	return findings
}

func trustsLambda(doc *types.PolicyDocument) bool {
	for _, stmt := range doc.Statements {
		if stmt.Principal == nil {
			continue
		}
		for _, svc := range stmt.Principal.Service {
			if strings.EqualFold(svc, "lambda.amazonaws.com") {
				return true
			}
		}
	}
	return false
}

func hasUnrestrictedEntry(actions []string, serviceWildcard string) bool {
	for _, a := range actions {
		la := strings.ToLower(a)
		if la == "*" || la == serviceWildcard {
			return true
		}
	}
	return false
}
