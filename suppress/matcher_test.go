package suppress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/vartija/types"
)

func finding(severity types.Severity, description string) types.Finding {
	return types.Finding{
		Type:        "iam_full_access",
		Severity:    severity,
		Description: description,
		Service:     "iam",
	}
}

func rule(severity types.Severity, pattern, description string) types.WhitelistRule {
	return types.WhitelistRule{
		ID:          "r1",
		Pattern:     pattern,
		Description: description,
		Service:     "iam",
		Severity:    severity,
	}
}

func TestEvaluateTierExact(t *testing.T) {
	m := NewMatcher()
	rules := []types.WhitelistRule{
		rule(types.SeverityCritical, "", "Policy grants all IAM permissions"),
	}

	match := m.Evaluate(finding(types.SeverityCritical, "Policy grants all IAM permissions"), rules)

	require.True(t, match.Matched)
	assert.Equal(t, TierExact, match.Tier)
	assert.Equal(t, "r1", match.Rule.ID)
}

func TestEvaluateExactRequiresSameSeverity(t *testing.T) {
	m := NewMatcher()
	rules := []types.WhitelistRule{
		rule(types.SeverityHigh, "", "Policy grants all IAM permissions"),
	}

	match := m.Evaluate(finding(types.SeverityCritical, "Policy grants all IAM permissions"), rules)

	assert.False(t, match.Matched)
}

func TestEvaluateTierPattern(t *testing.T) {
	m := NewMatcher()
	rules := []types.WhitelistRule{
		rule(types.SeverityCritical, `all\s+iam\s+permissions`, "approved admin role"),
	}

	match := m.Evaluate(finding(types.SeverityCritical, "Policy grants ALL IAM permissions"), rules)

	require.True(t, match.Matched)
	assert.Equal(t, TierPattern, match.Tier)
}

func TestEvaluateTierWordSimilarity(t *testing.T) {
	m := NewMatcher()
	rules := []types.WhitelistRule{
		rule(types.SeverityCritical, "", "Policy grants all IAM permissions across services"),
	}

	// Same significant words, different phrasing.
	match := m.Evaluate(finding(types.SeverityCritical, "grants all iam permissions to services across accounts"), rules)

	require.True(t, match.Matched)
	assert.Equal(t, TierWordSimilarity, match.Tier)
}

func TestEvaluateTierSeverityDowngrade(t *testing.T) {
	m := NewMatcher()
	// Critical rule covers a high finding matching its pattern.
	rules := []types.WhitelistRule{
		rule(types.SeverityCritical, `passing\s+roles`, "approved deploy role"),
	}

	match := m.Evaluate(finding(types.SeverityHigh, "Policy allows passing roles to other services"), rules)

	require.True(t, match.Matched)
	assert.Equal(t, TierSeverityDowngrade, match.Tier)
}

func TestEvaluateDowngradeNeverUpward(t *testing.T) {
	m := NewMatcher()
	// Low rule must not cover a critical finding.
	rules := []types.WhitelistRule{
		rule(types.SeverityLow, `passing\s+roles`, "approved deploy role"),
	}

	match := m.Evaluate(finding(types.SeverityCritical, "Policy allows passing roles to other services"), rules)

	assert.False(t, match.Matched)
}

func TestEvaluateTierOrder(t *testing.T) {
	m := NewMatcher()
	exact := rule(types.SeverityCritical, "", "Policy grants all IAM permissions")
	exact.ID = "exact"
	pattern := rule(types.SeverityCritical, `iam\s+permissions`, "something else")
	pattern.ID = "pattern"

	// Both rules match; the exact tier wins even though the pattern rule
	// comes first in the slice.
	match := m.Evaluate(finding(types.SeverityCritical, "Policy grants all IAM permissions"),
		[]types.WhitelistRule{pattern, exact})

	require.True(t, match.Matched)
	assert.Equal(t, TierExact, match.Tier)
	assert.Equal(t, "exact", match.Rule.ID)
}

func TestEvaluateBadPatternSkipsRule(t *testing.T) {
	m := NewMatcher()
	bad := rule(types.SeverityCritical, `([unclosed`, "broken")
	bad.ID = "bad"
	good := rule(types.SeverityCritical, `iam\s+permissions`, "working")
	good.ID = "good"

	match := m.Evaluate(finding(types.SeverityCritical, "Policy grants all IAM permissions"),
		[]types.WhitelistRule{bad, good})

	require.True(t, match.Matched)
	assert.Equal(t, "good", match.Rule.ID)
}

func TestEvaluateNoMatch(t *testing.T) {
	m := NewMatcher()
	rules := []types.WhitelistRule{
		rule(types.SeverityCritical, `bucket\s+polic(y|ies)`, "S3 bucket policy churn"),
	}

	match := m.Evaluate(finding(types.SeverityCritical, "Statement applies to any principal"), rules)

	assert.False(t, match.Matched)
	assert.Nil(t, match.Rule)
}

func TestWordSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, wordSimilarity("grants wildcard permissions", "grants wildcard permissions today"))
	assert.Equal(t, 0.0, wordSimilarity("", "anything"))
	// Words of three characters or fewer are not significant.
	assert.Equal(t, 1.0, wordSimilarity("s3 the and permissions", "broad permissions"))
}
