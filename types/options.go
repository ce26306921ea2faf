package types

// Environment names recognized by the context analyzer.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// AnalysisOptions is the caller-supplied context for one analysis.
// Every recognized option is an explicit field; anything else the
// caller wants to carry travels in Extra and is never interpreted.
// Missing fields silently skip the corresponding contextual checks.
type AnalysisOptions struct {
	Environment            string              `json:"environment,omitempty" yaml:"environment,omitempty"`
	AccountID              string              `json:"account_id,omitempty" yaml:"account_id,omitempty"`
	RoleName               string              `json:"role_name,omitempty" yaml:"role_name,omitempty"`
	IsTrustPolicy          bool                `json:"is_trust_policy,omitempty" yaml:"is_trust_policy,omitempty"`
	ComplianceRequirements []string            `json:"compliance_requirements,omitempty" yaml:"compliance_requirements,omitempty"`
	TrustedAccounts        []string            `json:"trusted_accounts,omitempty" yaml:"trusted_accounts,omitempty"`
	AllPolicies            map[string][]string `json:"all_policies,omitempty" yaml:"all_policies,omitempty"`
	Extra                  map[string]string   `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// RequiresEncryption reports whether any compliance framework that
// mandates encryption at rest is in effect.
func (o AnalysisOptions) RequiresEncryption() bool {
	for _, req := range o.ComplianceRequirements {
		if req == "PCI" || req == "HIPAA" {
			return true
		}
	}
	return false
}

// TrustedAccountSet returns the trusted accounts as a lookup set.
func (o AnalysisOptions) TrustedAccountSet() map[string]struct{} {
	set := make(map[string]struct{}, len(o.TrustedAccounts))
	for _, a := range o.TrustedAccounts {
		set[a] = struct{}{}
	}
	return set
}
