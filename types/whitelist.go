package types

import "time"

// RuleSource records how a whitelist rule came to exist.
type RuleSource string

// Rule sources
const (
	RuleSourceManual   RuleSource = "manual"
	RuleSourceFeedback RuleSource = "feedback"
)

// WhitelistRule suppresses findings previously judged false positives.
// MatchCount and LastMatchedAt mutate on every successful suppression
// match; that mutation happens in the store, never in the matcher.
type WhitelistRule struct {
	ID            string     `json:"id"`
	Pattern       string     `json:"pattern"`
	Description   string     `json:"description"`
	Service       string     `json:"service"`
	Severity      Severity   `json:"severity"`
	Reason        string     `json:"reason,omitempty"`
	CreatedBy     string     `json:"created_by,omitempty"`
	SourceType    RuleSource `json:"source_type"`
	MatchCount    int64      `json:"match_count"`
	LastMatchedAt time.Time  `json:"last_matched_at,omitzero"`
	CreatedAt     time.Time  `json:"created_at,omitzero"`
}
