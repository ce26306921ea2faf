package suppress

import (
	"time"

	"github.com/yairfalse/vartija/types"
)

// RuleFromFinding synthesizes a whitelist rule from a finding an admin
// approved as a false positive.
func RuleFromFinding(finding types.Finding, createdBy string) types.WhitelistRule {
	return types.WhitelistRule{
		Pattern:     SynthesizePattern(finding.Service, finding.Description),
		Description: finding.Description,
		Service:     finding.Service,
		Severity:    finding.Severity,
		Reason:      "approved false positive",
		CreatedBy:   createdBy,
		SourceType:  types.RuleSourceFeedback,
		CreatedAt:   time.Now(),
	}
}
