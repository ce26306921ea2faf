package analyzer

import (
	"encoding/json"
	"strings"

	"github.com/yairfalse/vartija/types"
)

// PatternRule is one entry in a service's ordered pattern list. Pattern
// is matched case-insensitively as a substring of the serialized policy
// document. Positive rules describe good practice and offset the score
// instead of raising it.
type PatternRule struct {
	Pattern        string
	Type           string
	Severity       types.Severity
	Description    string
	Recommendation string
	Positive       bool
}

// ServiceAnalyzer is the capability interface each service variant
// implements. Variants are stateless values selected through the engine
// registry; shared helpers are free functions, not mixin state.
type ServiceAnalyzer interface {
	// Service returns the registry key, e.g. "iam".
	Service() string

	// Patterns returns the ordered pattern rule list. All rules are
	// evaluated independently; there is no short-circuit.
	Patterns() []PatternRule

	// SensitiveActions lists actions dangerous in combination with a
	// wildcard resource, lowercase.
	SensitiveActions() []string

	// AnalyzeStatement runs the per-statement structural checks.
	AnalyzeStatement(stmt types.Statement, idx int) []types.Finding

	// AnalyzeContext runs the environment/compliance/cross-service
	// checks. It consumes caller-supplied context only, never I/O.
	AnalyzeContext(doc *types.PolicyDocument, opts types.AnalysisOptions) []types.Finding

	// ScoreDelta returns the service's bonus/penalty keyed on
	// characteristic permission substrings in the serialized document.
	ScoreDelta(serialized string) int

	// DowngradeHighWithPositives reports whether a High overall risk may
	// drop to Medium when positive findings are present.
	DowngradeHighWithPositives() bool

	// FloorScoreAtZero reports whether the score floors at zero before
	// the global clamp.
	FloorScoreAtZero() bool
}

// serialize renders a document to the lowercase compact form pattern
// rules and score bonuses match against. Single-element lists collapse
// to scalars so patterns see one canonical shape.
func serialize(doc *types.PolicyDocument) string {
	raw, err := json.Marshal(doc)
	if err != nil {
		return ""
	}
	return strings.ToLower(string(raw))
}

// matchPatterns evaluates every rule in order against the serialized
// document and returns a finding per matching rule.
func matchPatterns(service string, rules []PatternRule, serialized string) []types.Finding {
	var findings []types.Finding
	for _, rule := range rules {
		if !strings.Contains(serialized, strings.ToLower(rule.Pattern)) {
			continue
		}
		method := types.DetectionPattern
		if rule.Positive {
			method = types.DetectionBestPractice
		}
		findings = append(findings, types.Finding{
			Type:            rule.Type,
			Severity:        rule.Severity,
			Description:     rule.Description,
			Recommendation:  rule.Recommendation,
			Positive:        rule.Positive,
			DetectionMethod: method,
			Service:         service,
		})
	}
	return findings
}
