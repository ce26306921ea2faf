package analyzer

import (
	"math"
	"strings"

	"github.com/yairfalse/vartija/types"
)

// Reference scoring constants. These reproduce an established scoring
// policy exactly; treat them as fixed values, not a formula to derive.
const (
	weightCritical = 25
	weightHigh     = 15
	weightMedium   = 7
	weightLow      = 3
	positiveOffset = 10

	bonusWildcardResource = 10
	bonusWildcardAction   = 20
	bonusNotAction        = 15
	bonusPublicPrincipal  = 25
)

type scoreDelta struct {
	substr string
	delta  int
}

// scoreBySubstrings sums deltas for each characteristic substring
// present in the serialized document.
func scoreBySubstrings(serialized string, deltas []scoreDelta) int {
	total := 0
	for _, d := range deltas {
		if strings.Contains(serialized, d.substr) {
			total += d.delta
		}
	}
	return total
}

// accountMultiplier scales structural bonuses by subject context.
// Root and admin subjects are expected to hold broad access, so their
// wildcard bonuses count for less; cross-account subjects count more.
func accountMultiplier(acct types.AccountContext) float64 {
	switch acct.AccountType {
	case types.AccountRoot:
		return 0.5
	case types.AccountAdmin:
		return 0.7
	case types.AccountService:
		if acct.IsServiceLinked() {
			return 0.6
		}
		return 0.8
	case types.AccountCrossAccount:
		return 1.2
	default:
		return 1.0
	}
}

// Score converts findings and account context into a risk score in
// [0,100].
func Score(svc ServiceAnalyzer, serialized string, findings []types.Finding, acct types.AccountContext) int {
	score := 0.0

	for _, f := range findings {
		if f.Positive {
			score -= positiveOffset
			continue
		}
		switch f.Severity {
		case types.SeverityCritical:
			score += weightCritical
		case types.SeverityHigh:
			score += weightHigh
		case types.SeverityMedium:
			score += weightMedium
		case types.SeverityLow:
			score += weightLow
		}
	}

	m := accountMultiplier(acct)
	if strings.Contains(serialized, `"resource":"*"`) {
		score += bonusWildcardResource * m
	}
	if strings.Contains(serialized, `"action":"*"`) {
		score += bonusWildcardAction * m
	}
	if strings.Contains(serialized, `"notaction"`) {
		score += bonusNotAction * m
	}
	// The open-principal bonus deliberately bypasses the multiplier.
	if strings.Contains(serialized, `"principal":"*"`) {
		score += bonusPublicPrincipal
	}

	score += float64(svc.ScoreDelta(serialized))

	if svc.FloorScoreAtZero() && score < 0 {
		score = 0
	}

	return clampScore(int(math.Round(score)))
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// OverallRisk derives the risk label from severity statistics, then
// shifts it one level by account context. Critical never shifts.
func OverallRisk(svc ServiceAnalyzer, stats types.Stats, acct types.AccountContext) types.Severity {
	risk := baseRisk(svc, stats)

	switch {
	case acct.AccountType == types.AccountRoot:
		if risk == types.SeverityHigh {
			risk = types.SeverityMedium
		} else if risk == types.SeverityMedium {
			risk = types.SeverityLow
		}
	case acct.AccountType == types.AccountAdmin, acct.IsServiceLinked():
		if risk == types.SeverityHigh {
			risk = types.SeverityMedium
		}
	case acct.AccountType == types.AccountCrossAccount:
		if risk == types.SeverityMedium {
			risk = types.SeverityHigh
		}
	}

	return risk
}

func baseRisk(svc ServiceAnalyzer, stats types.Stats) types.Severity {
	switch {
	case stats.Critical > 0:
		return types.SeverityCritical
	case stats.High > 0:
		if stats.Positive > 0 && svc.DowngradeHighWithPositives() {
			return types.SeverityMedium
		}
		return types.SeverityHigh
	case stats.Medium > 0:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// AggregateResults combines per-policy results into a fleet-level score
// and risk. Each policy's score is weighted by its own overall risk;
// the aggregate risk is the highest individual one.
func AggregateResults(results []types.AnalysisResult) (score int, risk types.Severity) {
	if len(results) == 0 {
		return 0, types.SeverityLow
	}

	var weighted, weights float64
	risk = types.SeverityLow

	for _, r := range results {
		w := riskWeight(r.OverallRisk)
		weighted += w * float64(r.RiskScore)
		weights += w
		if r.OverallRisk.Rank() > risk.Rank() {
			risk = r.OverallRisk
		}
	}

	score = int(math.Round(weighted / weights))
	if score > 100 {
		score = 100
	}
	return score, risk
}

func riskWeight(risk types.Severity) float64 {
	switch risk {
	case types.SeverityCritical:
		return 2.0
	case types.SeverityHigh:
		return 1.5
	case types.SeverityMedium:
		return 1.0
	default:
		return 0.5
	}
}
