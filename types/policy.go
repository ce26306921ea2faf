package types

import (
	"encoding/json"
	"fmt"
)

// PolicyDocument is a parsed access-control policy. It is request-scoped
// and never mutated after parsing.
type PolicyDocument struct {
	Version    string        `json:"Version,omitempty"`
	ID         string        `json:"Id,omitempty"`
	Statements StatementList `json:"Statement"`
}

// StatementList accepts a single statement object or a sequence of them.
type StatementList []Statement

// UnmarshalJSON implements json.Unmarshaler.
func (sl *StatementList) UnmarshalJSON(data []byte) error {
	var many []Statement
	if err := json.Unmarshal(data, &many); err == nil {
		*sl = many
		return nil
	}

	var single Statement
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("expected statement or statement list: %w", err)
	}
	*sl = []Statement{single}
	return nil
}

// MarshalJSON always emits the sequence form.
func (sl StatementList) MarshalJSON() ([]byte, error) {
	return json.Marshal([]Statement(sl))
}

// Statement is a single grant or denial inside a policy document.
type Statement struct {
	SID       string       `json:"Sid,omitempty"`
	Effect    string       `json:"Effect"`
	Action    StringOrList `json:"Action,omitempty"`
	NotAction StringOrList `json:"NotAction,omitempty"`
	Resource  StringOrList `json:"Resource,omitempty"`
	Principal *Principal   `json:"Principal,omitempty"`
	Condition ConditionMap `json:"Condition,omitempty"`
}

// Effect values
const (
	EffectAllow = "Allow"
	EffectDeny  = "Deny"
)

// IsAllow reports whether the statement grants access.
func (s Statement) IsAllow() bool {
	return s.Effect == EffectAllow
}

// Actions returns the statement's actions normalized to a slice.
func (s Statement) Actions() []string {
	return []string(s.Action)
}

// Resources returns the statement's resources normalized to a slice.
func (s Statement) Resources() []string {
	return []string(s.Resource)
}

// StringOrList accepts a JSON scalar or sequence and normalizes to a slice.
// AWS policy grammar allows both forms everywhere.
type StringOrList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringOrList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = []string{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or string list: %w", err)
	}
	*l = many
	return nil
}

// MarshalJSON keeps the compact scalar form for single values.
func (l StringOrList) MarshalJSON() ([]byte, error) {
	if len(l) == 1 {
		return json.Marshal(l[0])
	}
	return json.Marshal([]string(l))
}

// Principal is the subject of a statement. The wildcard form
// Principal: "*" is represented with Wildcard set.
type Principal struct {
	Wildcard  bool
	AWS       StringOrList
	Service   StringOrList
	Federated StringOrList
}

type principalObject struct {
	AWS       StringOrList `json:"AWS,omitempty"`
	Service   StringOrList `json:"Service,omitempty"`
	Federated StringOrList `json:"Federated,omitempty"`
}

// UnmarshalJSON accepts either "*" or the keyed object form.
func (p *Principal) UnmarshalJSON(data []byte) error {
	var scalar string
	if err := json.Unmarshal(data, &scalar); err == nil {
		if scalar != "*" {
			return fmt.Errorf("scalar principal must be %q, got %q", "*", scalar)
		}
		*p = Principal{Wildcard: true}
		return nil
	}

	var obj principalObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("expected %q or principal object: %w", "*", err)
	}
	*p = Principal{AWS: obj.AWS, Service: obj.Service, Federated: obj.Federated}
	return nil
}

// MarshalJSON emits "*" for the wildcard principal.
func (p Principal) MarshalJSON() ([]byte, error) {
	if p.Wildcard {
		return json.Marshal("*")
	}
	return json.Marshal(principalObject{AWS: p.AWS, Service: p.Service, Federated: p.Federated})
}

// IsPublic reports whether the principal is the wildcard or an
// anyone-allowed AWS entry.
func (p *Principal) IsPublic() bool {
	if p == nil {
		return false
	}
	if p.Wildcard {
		return true
	}
	for _, a := range p.AWS {
		if a == "*" {
			return true
		}
	}
	return false
}

// ConditionMap maps a condition operator to its key/value block, e.g.
// {"Bool": {"aws:SecureTransport": "true"}}. Values may be scalar or list.
type ConditionMap map[string]map[string]StringOrList

// HasKey reports whether any operator block references the given
// condition key (case-insensitive handled by callers where needed).
func (c ConditionMap) HasKey(key string) bool {
	for _, block := range c {
		for k := range block {
			if k == key {
				return true
			}
		}
	}
	return false
}

// ParsePolicyDocument decodes a raw policy document.
func ParsePolicyDocument(raw []byte) (*PolicyDocument, error) {
	var doc PolicyDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy document: %w", err)
	}
	return &doc, nil
}
