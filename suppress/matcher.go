// Package suppress implements the whitelist engine: a four-tier fuzzy
// cascade that decides whether a finding repeats an approved false
// positive, and the synthesis of new suppression patterns from approved
// findings. Matching is pure; recording a match against a rule is the
// store's job.
package suppress

import (
	"regexp"
	"strings"

	"github.com/yairfalse/vartija/telemetry"
	"github.com/yairfalse/vartija/types"
)

// Match tiers, in evaluation order.
const (
	TierExact             = 1
	TierPattern           = 2
	TierWordSimilarity    = 3
	TierSeverityDowngrade = 4
)

// Similarity thresholds for tiers 3 and 4.
const (
	similarityThreshold = 0.75
	downgradeThreshold  = 0.85
)

// significantWordLen is the minimum length for a word to count toward
// similarity.
const significantWordLen = 3

// Match is the outcome of evaluating a finding against a rule set.
type Match struct {
	Matched bool
	Tier    int
	Rule    *types.WhitelistRule
}

// Matcher evaluates findings against whitelist rules.
type Matcher struct {
	logger *telemetry.Logger
}

// NewMatcher creates a matcher.
func NewMatcher() *Matcher {
	return &Matcher{logger: telemetry.NewLogger("suppress")}
}

// Evaluate runs the four-tier cascade over the candidate rules for a
// finding's service. Tiers are evaluated in order and the first match
// wins; a rule with an uncompilable pattern skips only that rule's
// pattern-based tiers.
func (m *Matcher) Evaluate(finding types.Finding, rules []types.WhitelistRule) Match {
	for i := range rules {
		if sameSeverity(rules[i], finding) && rules[i].Description == finding.Description {
			return Match{Matched: true, Tier: TierExact, Rule: &rules[i]}
		}
	}

	for i := range rules {
		if sameSeverity(rules[i], finding) && m.patternMatches(rules[i], finding.Description) {
			return Match{Matched: true, Tier: TierPattern, Rule: &rules[i]}
		}
	}

	for i := range rules {
		if sameSeverity(rules[i], finding) && wordSimilarity(rules[i].Description, finding.Description) >= similarityThreshold {
			return Match{Matched: true, Tier: TierWordSimilarity, Rule: &rules[i]}
		}
	}

	for i := range rules {
		if rules[i].Severity.Rank() <= finding.Severity.Rank() {
			continue
		}
		if m.patternMatches(rules[i], finding.Description) ||
			wordSimilarity(rules[i].Description, finding.Description) >= downgradeThreshold {
			return Match{Matched: true, Tier: TierSeverityDowngrade, Rule: &rules[i]}
		}
	}

	return Match{}
}

func sameSeverity(rule types.WhitelistRule, finding types.Finding) bool {
	return rule.Severity == finding.Severity
}

// patternMatches applies the rule's stored pattern case-insensitively.
// A bad pattern never aborts the cascade.
func (m *Matcher) patternMatches(rule types.WhitelistRule, description string) bool {
	if rule.Pattern == "" {
		return false
	}
	re, err := regexp.Compile("(?i)" + rule.Pattern)
	if err != nil {
		m.logger.Warn().
			Err(err).
			Str("rule_id", rule.ID).
			Str("pattern", rule.Pattern).
			Msg("skipping rule with uncompilable pattern")
		return false
	}
	return re.MatchString(description)
}

// wordSimilarity is the fraction of the rule description's significant
// words (longer than three characters) that occur in the finding
// description. Comparison is case-insensitive.
func wordSimilarity(ruleDescription, findingDescription string) float64 {
	ruleWords := significantWords(ruleDescription)
	if len(ruleWords) == 0 {
		return 0
	}

	findingWords := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(findingDescription)) {
		findingWords[trimWord(w)] = struct{}{}
	}

	matched := 0
	for _, w := range ruleWords {
		if _, ok := findingWords[w]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(ruleWords))
}

func significantWords(s string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = trimWord(w)
		if len(w) > significantWordLen {
			words = append(words, w)
		}
	}
	return words
}

func trimWord(w string) string {
	return strings.Trim(w, ".,;:()[]\"'")
}
