package types

// AccountType classifies the subject a policy belongs to.
type AccountType string

// Account types, in classification priority order.
const (
	AccountRoot         AccountType = "root"
	AccountService      AccountType = "service"
	AccountCrossAccount AccountType = "cross-account"
	AccountAdmin        AccountType = "admin"
	AccountIAMEntity    AccountType = "iam-entity"
)

// RoleType refines the account classification.
type RoleType string

// Role types
const (
	RoleRootAccount   RoleType = "root-account"
	RoleServiceRole   RoleType = "service-role"
	RoleServiceLinked RoleType = "service-linked-role"
	RoleCrossAccount  RoleType = "cross-account-role"
	RoleAdmin         RoleType = "admin-role"
	RoleAssumption    RoleType = "assumption-role"
	RoleStandard      RoleType = "standard-role"
)

// AdminLevel qualifies an admin classification.
type AdminLevel string

// Admin levels
const (
	AdminFull            AdminLevel = "full"
	AdminServiceSpecific AdminLevel = "service-specific"
	AdminLimited         AdminLevel = "limited"
)

// AssumptionType qualifies a role-assumption classification.
type AssumptionType string

// Assumption types
const (
	AssumptionDirect   AssumptionType = "direct"
	AssumptionChaining AssumptionType = "chaining"
)

// AccountContext is the inferred subject classification of a policy.
// It is produced once per analysis and read-only thereafter.
type AccountContext struct {
	AccountType     AccountType         `json:"account_type"`
	RoleType        RoleType            `json:"role_type"`
	Service         string              `json:"service,omitempty"`
	TrustedAccounts map[string]struct{} `json:"-"`
	AdminLevel      AdminLevel          `json:"admin_level,omitempty"`
	AssumptionType  AssumptionType      `json:"assumption_type,omitempty"`
}

// IsServiceLinked reports whether the subject is a service-linked role.
func (a AccountContext) IsServiceLinked() bool {
	return a.RoleType == RoleServiceLinked
}

// DefaultAccountContext is the classification used when no higher
// priority check matches, including for empty documents.
func DefaultAccountContext() AccountContext {
	return AccountContext{
		AccountType: AccountIAMEntity,
		RoleType:    RoleStandard,
	}
}
