package policy

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/meshward/policyguard/pkg/condition"
	"github.com/meshward/policyguard/pkg/valuepath"
)

// Evaluator holds an ordered set of policies and answers the single
// ALLOW/DENY question for a request context.
//
// Evaluator guards its policy slice with an RWMutex, so AddPolicy,
// Policies, and Evaluate may be called from many goroutines of one
// process; Evaluate works on a snapshot of the policies taken under the
// read lock. Serializing policy mutation across replicas is left to
// callers (see pkg/policystore.RedisLock for one such primitive).
type Evaluator struct {
	mu       sync.RWMutex
	policies []Policy
}

// NewEvaluator creates an evaluator with no policies loaded.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// AddPolicy validates and appends a policy. Policies are evaluated in the
// order they were added.
func (e *Evaluator) AddPolicy(p Policy) error {
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = append(e.policies, p)
	return nil
}

// Policies returns a snapshot copy of the loaded policies.
func (e *Evaluator) Policies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Policy, len(e.policies))
	copy(out, e.policies)
	return out
}

// Evaluate answers the ALLOW/DENY question for ctx against every loaded
// policy, applying the state machine from spec.md §4.5:
//
//	Start -> ValidatingContext -> {Err, NoPolicies, Iterating} -> Combining -> Terminal
func (e *Evaluator) Evaluate(ctx *valuepath.EvaluationContext) (*PolicyDecision, error) {
	start := time.Now()

	if err := ctx.Validate(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	policies := make([]Policy, len(e.policies))
	copy(policies, e.policies)
	e.mu.RUnlock()

	final, err := combineAcrossPolicies(policies, ctx, ruleMatches)
	if err != nil {
		return nil, err
	}
	final.EvaluationTimeUs = time.Since(start).Microseconds()
	return final, nil
}

// RuleMatcher decides whether a rule's conditions hold against ctx. It
// decouples the combining algorithms (combineRules, combineCrossPolicy)
// from the engine that evaluates an individual condition, so an
// alternate backend can reuse the same combining semantics against a
// differently-evaluated match (see pkg/pdp.CELPDP, which matches rules by
// compiling their conditions to CEL instead of calling pkg/condition).
type RuleMatcher func(r *Rule, ctx *valuepath.EvaluationContext) (bool, error)

// EvaluateWithMatcher runs the combining algorithms of spec.md §4.5 against
// policies using matches in place of the native condition evaluator,
// letting a non-native PolicyDecisionPoint prove it reaches identical
// decisions through a different condition-evaluation engine.
func EvaluateWithMatcher(policies []Policy, ctx *valuepath.EvaluationContext, matches RuleMatcher) (*PolicyDecision, error) {
	start := time.Now()

	if err := ctx.Validate(); err != nil {
		return nil, err
	}

	d, err := combineAcrossPolicies(policies, ctx, matches)
	if err != nil {
		return nil, err
	}
	d.EvaluationTimeUs = time.Since(start).Microseconds()
	return d, nil
}

func combineAcrossPolicies(policies []Policy, ctx *valuepath.EvaluationContext, matches RuleMatcher) (*PolicyDecision, error) {
	if len(policies) == 0 {
		return &PolicyDecision{
			Decision:  Deny,
			Reason:    "No policies loaded - default deny",
			IsDefault: true,
		}, nil
	}

	decisions := make([]*PolicyDecision, 0, len(policies))
	for i := range policies {
		d, err := evaluatePolicy(&policies[i], ctx, matches)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return combineCrossPolicy(decisions), nil
}

// evaluatePolicy implements spec.md §4.5 "Policy evaluation" steps 1-4.
func evaluatePolicy(p *Policy, ctx *valuepath.EvaluationContext, matches RuleMatcher) (*PolicyDecision, error) {
	sorted := make([]Rule, len(p.Rules))
	copy(sorted, p.Rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	matched := make([]Rule, 0, len(sorted))
	for i := range sorted {
		ok, err := matches(&sorted[i], ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, sorted[i])
		}
	}

	if len(matched) == 0 {
		return &PolicyDecision{
			Decision:  p.DefaultEffect,
			Reason:    fmt.Sprintf("No matching rules - default %s", p.DefaultEffect),
			PolicyID:  p.ID,
			IsDefault: true,
		}, nil
	}

	return combineRules(p, matched), nil
}

// ruleMatches reports whether every condition in r holds using the native
// pkg/condition evaluator. A rule with zero conditions matches
// unconditionally.
func ruleMatches(r *Rule, ctx *valuepath.EvaluationContext) (bool, error) {
	for i := range r.Conditions {
		ok, err := condition.Evaluate(ctx, &r.Conditions[i])
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// combineRules applies the policy's combining_algorithm to its matched,
// priority-sorted rules, per the table in spec.md §4.5.
func combineRules(p *Policy, matched []Rule) *PolicyDecision {
	switch p.CombiningAlgorithm {
	case FirstApplicable:
		r := matched[0]
		return &PolicyDecision{
			Decision: r.Effect,
			Reason:   fmt.Sprintf("Rule '%s' matched", r.ID),
			RuleID:   r.ID,
			PolicyID: p.ID,
		}
	case DenyOverrides:
		for _, r := range matched {
			if r.Effect == Deny {
				return &PolicyDecision{
					Decision: Deny,
					Reason:   fmt.Sprintf("Rule '%s' matched", r.ID),
					RuleID:   r.ID,
					PolicyID: p.ID,
				}
			}
		}
		return &PolicyDecision{
			Decision: Allow,
			Reason:   "All matching rules allow",
			RuleID:   matched[0].ID,
			PolicyID: p.ID,
		}
	case AllowOverrides:
		for _, r := range matched {
			if r.Effect == Allow {
				return &PolicyDecision{
					Decision: Allow,
					Reason:   fmt.Sprintf("Rule '%s' matched", r.ID),
					RuleID:   r.ID,
					PolicyID: p.ID,
				}
			}
		}
		return &PolicyDecision{
			Decision: Deny,
			Reason:   "All matching rules deny",
			RuleID:   matched[0].ID,
			PolicyID: p.ID,
		}
	case UnanimousAllow:
		for _, r := range matched {
			if r.Effect == Deny {
				return &PolicyDecision{
					Decision: Deny,
					Reason:   fmt.Sprintf("Rule '%s' matched", r.ID),
					RuleID:   r.ID,
					PolicyID: p.ID,
				}
			}
		}
		return &PolicyDecision{
			Decision: Allow,
			Reason:   "All matching rules allow",
			RuleID:   matched[0].ID,
			PolicyID: p.ID,
		}
	case UnanimousDeny:
		for _, r := range matched {
			if r.Effect == Allow {
				return &PolicyDecision{
					Decision: Allow,
					Reason:   fmt.Sprintf("Rule '%s' matched", r.ID),
					RuleID:   r.ID,
					PolicyID: p.ID,
				}
			}
		}
		return &PolicyDecision{
			Decision: Deny,
			Reason:   "All matching rules deny",
			RuleID:   matched[0].ID,
			PolicyID: p.ID,
		}
	default:
		// Unreachable: Policy.Validate rejects unknown algorithms before
		// a policy is ever added to the evaluator.
		return &PolicyDecision{
			Decision: p.DefaultEffect,
			Reason:   "Unknown combining algorithm",
			PolicyID: p.ID,
			IsDefault: true,
		}
	}
}

// CombineDecisions applies the same fixed, non-configurable deny_overrides
// combiner combineCrossPolicy uses internally to a caller-supplied slice
// of per-policy decisions. decisions must be non-empty. This lets an
// alternate PolicyDecisionPoint (e.g. a CEL-backed one matching rules
// through a different engine) still combine its per-policy results with
// the exact cross-policy semantics spec.md §4.5 requires.
func CombineDecisions(decisions []*PolicyDecision) *PolicyDecision {
	return combineCrossPolicy(decisions)
}

// combineCrossPolicy applies the fixed, non-configurable top-level
// deny_overrides combiner across per-policy decisions: any deny, default
// or explicit, dominates any allow (spec.md §4.5).
func combineCrossPolicy(decisions []*PolicyDecision) *PolicyDecision {
	for _, d := range decisions {
		if d.Decision == Deny {
			return d
		}
	}
	for _, d := range decisions {
		if d.Decision == Allow {
			return d
		}
	}
	return decisions[0]
}
