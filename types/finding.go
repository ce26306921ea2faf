package types

// Severity is the ordinal risk level of a finding.
type Severity string

// Severity levels, highest first.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank returns the ordinal position of a severity, higher is worse.
// Unknown severities rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// DetectionMethod identifies which analysis phase produced a finding.
type DetectionMethod string

// Detection methods
const (
	DetectionPattern      DetectionMethod = "pattern"
	DetectionSemantic     DetectionMethod = "semantic"
	DetectionContext      DetectionMethod = "context"
	DetectionBestPractice DetectionMethod = "best-practice"
)

// Finding is one detected condition within a policy: either a risk or,
// when Positive is set, a recognized good practice. Positive findings
// never contribute to severity counts; they only offset the risk score.
type Finding struct {
	ID              string          `json:"id,omitempty"`
	Type            string          `json:"type"`
	Severity        Severity        `json:"severity"`
	Description     string          `json:"description"`
	Recommendation  string          `json:"recommendation,omitempty"`
	Positive        bool            `json:"is_positive"`
	DetectionMethod DetectionMethod `json:"detection_method"`
	CrossService    bool            `json:"cross_service,omitempty"`
	Service         string          `json:"service,omitempty"`
	StatementIndex  int             `json:"statement_index,omitempty"`
	Suppressed      bool            `json:"suppressed,omitempty"`
}

// Stats aggregates findings by severity. Positive findings count only
// toward Positive; Total is the sum of all five buckets.
type Stats struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Positive int `json:"positive"`
	Total    int `json:"total"`
}

// Tally computes severity statistics over a set of findings.
func Tally(findings []Finding) Stats {
	var stats Stats
	for _, f := range findings {
		if f.Positive {
			stats.Positive++
			continue
		}
		switch f.Severity {
		case SeverityCritical:
			stats.Critical++
		case SeverityHigh:
			stats.High++
		case SeverityMedium:
			stats.Medium++
		case SeverityLow:
			stats.Low++
		}
	}
	stats.Total = stats.Critical + stats.High + stats.Medium + stats.Low + stats.Positive
	return stats
}

// AnalysisResult is the full output of analyzing one policy document.
type AnalysisResult struct {
	Valid       bool           `json:"valid"`
	Error       string         `json:"error,omitempty"`
	Service     string         `json:"service"`
	Findings    []Finding      `json:"findings"`
	Stats       Stats          `json:"stats"`
	OverallRisk Severity       `json:"overall_risk"`
	RiskScore   int            `json:"risk_score"`
	AccountInfo AccountContext `json:"account_info"`
}

// ActiveFindings returns the findings not suppressed by whitelist rules.
func (r *AnalysisResult) ActiveFindings() []Finding {
	var active []Finding
	for _, f := range r.Findings {
		if !f.Suppressed {
			active = append(active, f)
		}
	}
	return active
}
