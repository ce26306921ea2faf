package analyzer

import (
	"strings"

	"github.com/yairfalse/vartija/types"
)

// powerfulIAMActions grant identity management capabilities and mark a
// policy's subject as at least a limited administrator. Lowercase.
var powerfulIAMActions = []string{
	"iam:createpolicy",
	"iam:createrole",
	"iam:createuser",
	"iam:attachrolepolicy",
	"iam:attachuserpolicy",
	"iam:putrolepolicy",
	"iam:putuserpolicy",
	"iam:passrole",
	"iam:createaccesskey",
	"iam:deleterolepolicy",
}

// Classify infers the subject context of a policy from statement
// content alone. Checks run in priority order and the first match wins;
// an empty or missing statement list yields the default context, never
// an error.
func Classify(doc *types.PolicyDocument, opts types.AnalysisOptions) types.AccountContext {
	ctx := types.DefaultAccountContext()
	ctx.TrustedAccounts = opts.TrustedAccountSet()

	if doc == nil || len(doc.Statements) == 0 {
		return ctx
	}

	if isRootSubject(doc) {
		ctx.AccountType = types.AccountRoot
		ctx.RoleType = types.RoleRootAccount
		return ctx
	}

	if service, linked, ok := serviceRoleSubject(doc, opts); ok {
		ctx.AccountType = types.AccountService
		ctx.Service = service
		ctx.RoleType = types.RoleServiceRole
		if linked {
			ctx.RoleType = types.RoleServiceLinked
		}
		return ctx
	}

	if crossAccountSubject(doc, opts) {
		ctx.AccountType = types.AccountCrossAccount
		ctx.RoleType = types.RoleCrossAccount
		return ctx
	}

	if level, ok := adminSubject(doc); ok {
		ctx.AccountType = types.AccountAdmin
		ctx.RoleType = types.RoleAdmin
		ctx.AdminLevel = level
		return ctx
	}

	if assumption, ok := assumptionSubject(doc); ok {
		ctx.RoleType = types.RoleAssumption
		ctx.AssumptionType = assumption
		return ctx
	}

	return ctx
}

// isRootSubject detects root account references in resources or
// principals.
func isRootSubject(doc *types.PolicyDocument) bool {
	for _, stmt := range doc.Statements {
		for _, r := range stmt.Resources() {
			if strings.Contains(r, ":root") {
				return true
			}
		}
		if stmt.Principal != nil {
			for _, p := range stmt.Principal.AWS {
				if strings.Contains(p, ":root") {
					return true
				}
			}
		}
	}
	return false
}

// serviceRoleSubject detects a trust statement with a Service principal.
// Service-linked roles are recognized by the /aws-service-role/ path or
// the AWSServiceRoleFor naming convention.
func serviceRoleSubject(doc *types.PolicyDocument, opts types.AnalysisOptions) (service string, linked bool, ok bool) {
	for _, stmt := range doc.Statements {
		if stmt.Principal == nil || len(stmt.Principal.Service) == 0 {
			continue
		}
		if !hasAssumeRoleAction(stmt) {
			continue
		}

		service = stmt.Principal.Service[0]
		linked = strings.HasPrefix(opts.RoleName, "AWSServiceRoleFor")
		for _, r := range stmt.Resources() {
			if strings.Contains(r, "/aws-service-role/") {
				linked = true
			}
		}
		return service, linked, true
	}
	return "", false, false
}

// crossAccountSubject detects a non-wildcard, non-interpolated AWS
// account principal differing from the evaluated account.
func crossAccountSubject(doc *types.PolicyDocument, opts types.AnalysisOptions) bool {
	for _, stmt := range doc.Statements {
		if stmt.Principal == nil {
			continue
		}
		for _, arn := range stmt.Principal.AWS {
			if arn == "*" || strings.Contains(arn, "${") {
				continue
			}
			account := accountFromARN(arn)
			if account == "" {
				continue
			}
			if opts.AccountID == "" || account != opts.AccountID {
				return true
			}
		}
	}
	return false
}

// accountFromARN extracts the account ID field of an ARN, or "".
func accountFromARN(arn string) string {
	parts := strings.Split(arn, ":")
	if len(parts) < 5 || parts[0] != "arn" {
		return ""
	}
	return parts[4]
}

// adminSubject grades administrator capability. Full beats
// service-specific beats limited; limited applies only when neither
// stronger grade matched.
func adminSubject(doc *types.PolicyDocument) (types.AdminLevel, bool) {
	var level types.AdminLevel

	for _, stmt := range doc.Statements {
		if !stmt.IsAllow() {
			continue
		}

		if hasFullWildcard(stmt.Actions()) && hasFullWildcard(stmt.Resources()) {
			return types.AdminFull, true
		}

		if level != types.AdminServiceSpecific && hasIAMWildcardAction(stmt) && wildcardResource(stmt) {
			level = types.AdminServiceSpecific
			continue
		}

		if level == "" && len(actionsInLiteralSet(stmt, powerfulIAMActions)) > 0 {
			level = types.AdminLimited
		}
	}

	return level, level != ""
}

func hasIAMWildcardAction(stmt types.Statement) bool {
	for _, a := range stmt.Actions() {
		if strings.EqualFold(a, "iam:*") {
			return true
		}
	}
	return false
}

// actionsInLiteralSet matches actions against the set without treating
// wildcards as members, unlike actionsInSet.
func actionsInLiteralSet(stmt types.Statement, set []string) []string {
	var matched []string
	for _, a := range stmt.Actions() {
		la := strings.ToLower(a)
		for _, s := range set {
			if la == s {
				matched = append(matched, a)
				break
			}
		}
	}
	return matched
}

// assumptionSubject detects sts:AssumeRole* grants; chaining means more
// than one distinct role resource appears.
func assumptionSubject(doc *types.PolicyDocument) (types.AssumptionType, bool) {
	roles := make(map[string]struct{})
	found := false

	for _, stmt := range doc.Statements {
		if !stmt.IsAllow() || !hasAssumeRoleAction(stmt) {
			continue
		}
		found = true
		for _, r := range stmt.Resources() {
			roles[r] = struct{}{}
		}
	}

	if !found {
		return "", false
	}
	if len(roles) > 1 {
		return types.AssumptionChaining, true
	}
	return types.AssumptionDirect, true
}

func hasAssumeRoleAction(stmt types.Statement) bool {
	for _, a := range stmt.Actions() {
		if strings.HasPrefix(strings.ToLower(a), "sts:assumerole") {
			return true
		}
	}
	return false
}
