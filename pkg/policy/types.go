// Package policy implements the policy document model (spec.md §6) and
// the rule/policy evaluator (spec.md §4.5): priority ordering, rule
// combining, policy combining, and decision assembly.
package policy

import (
	"fmt"

	"github.com/meshward/policyguard/pkg/condition"
	"github.com/meshward/policyguard/pkg/policyerr"
)

// Effect is a rule's declared outcome.
type Effect string

const (
	Allow Effect = "allow"
	Deny  Effect = "deny"
)

// CombiningAlgorithm is the policy-level rule reducer.
type CombiningAlgorithm string

const (
	FirstApplicable CombiningAlgorithm = "first_applicable"
	DenyOverrides   CombiningAlgorithm = "deny_overrides"
	AllowOverrides  CombiningAlgorithm = "allow_overrides"
	UnanimousAllow  CombiningAlgorithm = "unanimous_allow"
	UnanimousDeny   CombiningAlgorithm = "unanimous_deny"
)

// Rule is {id, description?, effect, conditions, priority} from spec.md §3.
type Rule struct {
	ID          string               `json:"id" yaml:"id"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Effect      Effect               `json:"effect" yaml:"effect"`
	Conditions  []condition.Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Priority    int32                `json:"priority" yaml:"priority"`
}

// Validate enforces the non-empty-id invariant and validates conditions.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: rule.id is empty", policyerr.ErrValidation)
	}
	if r.Effect != Allow && r.Effect != Deny {
		return fmt.Errorf("%w: rule '%s' has invalid effect '%s'", policyerr.ErrValidation, r.ID, r.Effect)
	}
	for i := range r.Conditions {
		if err := r.Conditions[i].Validate(); err != nil {
			return fmt.Errorf("%w: rule '%s' condition %d: %v", policyerr.ErrValidation, r.ID, i, err)
		}
	}
	return nil
}

// Policy is {id, version, name, description?, rules, combining_algorithm,
// default_effect, metadata} from spec.md §3.
type Policy struct {
	ID                 string                 `json:"id" yaml:"id"`
	Version            string                 `json:"version" yaml:"version"`
	Name               string                 `json:"name" yaml:"name"`
	Description        string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Rules              []Rule                 `json:"rules,omitempty" yaml:"rules,omitempty"`
	CombiningAlgorithm CombiningAlgorithm     `json:"combining_algorithm,omitempty" yaml:"combining_algorithm,omitempty"`
	DefaultEffect      Effect                 `json:"default_effect,omitempty" yaml:"default_effect,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ApplyDefaults fills in the default combining algorithm (deny_overrides)
// and default effect (deny) when unset, per spec.md §3.
func (p *Policy) ApplyDefaults() {
	if p.CombiningAlgorithm == "" {
		p.CombiningAlgorithm = DenyOverrides
	}
	if p.DefaultEffect == "" {
		p.DefaultEffect = Deny
	}
}

// Validate enforces the policy-level invariants: non-empty id and name,
// every rule valid.
func (p *Policy) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: policy.id is empty", policyerr.ErrValidation)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: policy '%s' has empty name", policyerr.ErrValidation, p.ID)
	}
	for i := range p.Rules {
		if err := p.Rules[i].Validate(); err != nil {
			return err
		}
	}
	switch p.CombiningAlgorithm {
	case FirstApplicable, DenyOverrides, AllowOverrides, UnanimousAllow, UnanimousDeny:
	default:
		return fmt.Errorf("%w: policy '%s' has invalid combining_algorithm '%s'", policyerr.ErrValidation, p.ID, p.CombiningAlgorithm)
	}
	if p.DefaultEffect != Allow && p.DefaultEffect != Deny {
		return fmt.Errorf("%w: policy '%s' has invalid default_effect '%s'", policyerr.ErrValidation, p.ID, p.DefaultEffect)
	}
	return nil
}

// PolicyDecision is the outcome of evaluating one or more policies.
type PolicyDecision struct {
	Decision          Effect                 `json:"decision"`
	Reason            string                 `json:"reason"`
	RuleID            string                 `json:"rule_id,omitempty"`
	PolicyID          string                 `json:"policy_id,omitempty"`
	IsDefault         bool                   `json:"is_default"`
	EvaluationTimeUs  int64                  `json:"evaluation_time_us,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// Pack is an optional container bundling several policies under one
// identity, per spec.md §6.
type Pack struct {
	ID          string                 `json:"id" yaml:"id"`
	Version     string                 `json:"version" yaml:"version"`
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Policies    []Policy               `json:"policies" yaml:"policies"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Validate validates the pack's own identity fields and every contained policy.
func (pk *Pack) Validate() error {
	if pk.ID == "" {
		return fmt.Errorf("%w: pack.id is empty", policyerr.ErrValidation)
	}
	if pk.Name == "" {
		return fmt.Errorf("%w: pack '%s' has empty name", policyerr.ErrValidation, pk.ID)
	}
	for i := range pk.Policies {
		pk.Policies[i].ApplyDefaults()
		if err := pk.Policies[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
