package orchestrator

import (
	"time"

	"github.com/yairfalse/vartija/types"
)

// PolicyInput is one document to analyze, with its caller context.
type PolicyInput struct {
	Name     string
	Service  string
	Document []byte
	Options  types.AnalysisOptions
}

// Outcome pairs an analysis result with the side-effect statuses that
// are reported separately from it: suppression counts and persistence.
// "Analyzed but not saved" is a valid terminal state.
type Outcome struct {
	Name       string               `json:"name,omitempty"`
	Result     types.AnalysisResult `json:"result"`
	Suppressed int                  `json:"suppressed"`
	Saved      bool                 `json:"saved"`
	SaveError  string               `json:"save_error,omitempty"`
}

// BatchResult aggregates a batch run. Outcomes preserve input order and
// length.
type BatchResult struct {
	Outcomes  []Outcome      `json:"outcomes"`
	RiskScore int            `json:"risk_score"`
	Risk      types.Severity `json:"risk"`
	StartTime time.Time      `json:"start_time"`
	Duration  time.Duration  `json:"duration"`
}

// RuleStore supplies whitelist rule candidates and records matches.
// Fetches and match recording may block or fail independently of the
// analysis itself.
type RuleStore interface {
	RulesByService(service string) ([]types.WhitelistRule, error)
	RecordRuleMatch(id string) error
}

// FindingStore persists findings.
type FindingStore interface {
	SaveFinding(finding types.Finding) (types.Finding, error)
}
