package analyzer

import (
	"strings"

	"github.com/yairfalse/vartija/types"
)

// Shared structural helpers used by every service variant.

// privilegeEscalationActions can be combined to grant an entity more
// access than it started with. Lowercase.
var privilegeEscalationActions = []string{
	"iam:passrole",
	"iam:attachrolepolicy",
	"iam:putrolepolicy",
	"iam:attachuserpolicy",
	"iam:putuserpolicy",
	"iam:createpolicyversion",
	"iam:setdefaultpolicyversion",
	"iam:createaccesskey",
	"iam:createloginprofile",
	"iam:updateassumerolepolicy",
	"iam:addusertogroup",
}

// readOnlyPrefixes mark actions that cannot mutate state.
var readOnlyPrefixes = []string{"get", "list", "describe", "head"}

// hasWildcard reports whether any entry is "*" or a service-wide
// wildcard like "s3:*".
func hasWildcard(values []string) bool {
	for _, v := range values {
		if v == "*" || strings.HasSuffix(v, ":*") {
			return true
		}
	}
	return false
}

// hasFullWildcard reports whether any entry is exactly "*".
func hasFullWildcard(values []string) bool {
	for _, v := range values {
		if v == "*" {
			return true
		}
	}
	return false
}

// wildcardResource reports whether any resource entry contains a
// wildcard anywhere in the ARN.
func wildcardResource(stmt types.Statement) bool {
	for _, r := range stmt.Resources() {
		if strings.Contains(r, "*") {
			return true
		}
	}
	return false
}

// actionsInSet returns the statement actions present in the given
// lowercase set. A bare "*" or service wildcard matches everything.
func actionsInSet(stmt types.Statement, set []string) []string {
	var matched []string
	for _, a := range stmt.Actions() {
		la := strings.ToLower(a)
		if la == "*" || strings.HasSuffix(la, ":*") {
			matched = append(matched, a)
			continue
		}
		for _, s := range set {
			if la == s {
				matched = append(matched, a)
				break
			}
		}
	}
	return matched
}

// weakConditionOperators returns condition operators carrying the
// IfExists suffix, which pass when the key is absent.
func weakConditionOperators(cond types.ConditionMap) []string {
	var weak []string
	for op := range cond {
		if strings.HasSuffix(strings.ToLower(op), "ifexists") {
			weak = append(weak, op)
		}
	}
	return weak
}

// conditionHasKey reports whether any operator block references the
// given condition key, case-insensitively.
func conditionHasKey(cond types.ConditionMap, key string) bool {
	for _, block := range cond {
		for k := range block {
			if strings.EqualFold(k, key) {
				return true
			}
		}
	}
	return false
}

// selfScoped reports whether every resource is interpolated with the
// caller's own username, the standard self-service pattern.
func selfScoped(stmt types.Statement) bool {
	resources := stmt.Resources()
	if len(resources) == 0 {
		return false
	}
	for _, r := range resources {
		if !strings.Contains(r, "${aws:username}") {
			return false
		}
	}
	return true
}

// allReadOnly reports whether every action is a non-mutating one.
// Wildcards disqualify the statement.
func allReadOnly(stmt types.Statement) bool {
	actions := stmt.Actions()
	if len(actions) == 0 {
		return false
	}
	for _, a := range actions {
		if !isReadOnlyAction(a) {
			return false
		}
	}
	return true
}

func isReadOnlyAction(action string) bool {
	la := strings.ToLower(action)
	_, op, found := strings.Cut(la, ":")
	if !found {
		return false
	}
	if strings.Contains(op, "*") {
		return false
	}
	for _, prefix := range readOnlyPrefixes {
		if strings.HasPrefix(op, prefix) {
			return true
		}
	}
	return false
}

// validateStatement rejects statement shapes the structural checks
// cannot reason about. The caller skips the statement and logs; the
// rest of the analysis still completes.
func validateStatement(stmt types.Statement) bool {
	return stmt.Effect == types.EffectAllow || stmt.Effect == types.EffectDeny
}

// commonStatementChecks are the structural checks every service shares:
// weak condition operators, privilege escalation, self-scoping and
// read-only grants. Service variants layer their own checks on top.
func commonStatementChecks(service string, stmt types.Statement, idx int, sensitive []string) []types.Finding {
	var findings []types.Finding

	if matched := actionsInSet(stmt, privilegeEscalationActions); len(matched) > 0 && wildcardResource(stmt) {
		findings = append(findings, types.Finding{
			Type:            "privilege_escalation",
			Severity:        types.SeverityCritical,
			Description:     "Statement combines privilege-escalation actions (" + strings.Join(matched, ", ") + ") with a wildcard resource",
			Recommendation:  "Scope escalation-capable IAM actions to specific role and policy ARNs",
			DetectionMethod: types.DetectionSemantic,
			Service:         service,
			StatementIndex:  idx,
		})
	}

	if matched := actionsInSet(stmt, sensitive); len(matched) > 0 && wildcardResource(stmt) {
		findings = append(findings, types.Finding{
			Type:            "sensitive_action_wildcard_resource",
			Severity:        types.SeverityHigh,
			Description:     "Sensitive actions (" + strings.Join(matched, ", ") + ") are granted on a wildcard resource",
			Recommendation:  "Restrict sensitive actions to explicitly named resources",
			DetectionMethod: types.DetectionSemantic,
			Service:         service,
			StatementIndex:  idx,
		})
	}

	if weak := weakConditionOperators(stmt.Condition); len(weak) > 0 {
		findings = append(findings, types.Finding{
			Type:            "weak_condition_operator",
			Severity:        types.SeverityMedium,
			Description:     "Condition uses IfExists operators (" + strings.Join(weak, ", ") + ") that pass when the key is missing",
			Recommendation:  "Use strict condition operators so requests without the key are denied",
			DetectionMethod: types.DetectionSemantic,
			Service:         service,
			StatementIndex:  idx,
		})
	}

	if selfScoped(stmt) {
		findings = append(findings, types.Finding{
			Type:            "self_scoped_resource",
			Severity:        types.SeverityLow,
			Description:     "Resources are scoped to the requesting user via ${aws:username}",
			Positive:        true,
			DetectionMethod: types.DetectionBestPractice,
			Service:         service,
			StatementIndex:  idx,
		})
	}

	if allReadOnly(stmt) {
		findings = append(findings, types.Finding{
			Type:            "read_only_access",
			Severity:        types.SeverityLow,
			Description:     "Statement grants read-only actions exclusively",
			Positive:        true,
			DetectionMethod: types.DetectionBestPractice,
			Service:         service,
			StatementIndex:  idx,
		})
	}

	return findings
}
