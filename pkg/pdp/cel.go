package pdp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/meshward/policyguard/pkg/canonicalize"
	"github.com/meshward/policyguard/pkg/cidchain"
	"github.com/meshward/policyguard/pkg/condition"
	"github.com/meshward/policyguard/pkg/policy"
	"github.com/meshward/policyguard/pkg/policyerr"
	"github.com/meshward/policyguard/pkg/valuepath"
)

// CELPDP implements PolicyDecisionPoint by compiling every loaded policy's
// rule conditions into CEL expressions (one program per condition, via
// cel-go) and matching rules through cel-go instead of pkg/condition. The
// matched rules are then combined by the same policy.EvaluateWithMatcher /
// policy.CombineDecisions algorithms NativePDP uses, so the two backends
// are provably identical everywhere except how an individual condition's
// truth is decided.
type CELPDP struct {
	env           *cel.Env
	policies      []policy.Policy
	policyVersion string

	mu       sync.RWMutex
	compiled map[string]map[string][]cel.Program // policyID -> ruleID -> per-condition programs
}

// NewCELPDP compiles the condition tree of every rule in policies into CEL
// and returns a PolicyDecisionPoint backed entirely by cel-go evaluation.
func NewCELPDP(policies []policy.Policy, policyVersion string) (*CELPDP, error) {
	env, err := cel.NewEnv(
		cel.Variable("ctx", cel.DynType),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("pdp: cel environment: %w", err)
	}

	c := &CELPDP{env: env, policies: policies, policyVersion: policyVersion}
	if err := c.compileAll(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *CELPDP) compileAll() error {
	compiled := make(map[string]map[string][]cel.Program, len(c.policies))
	for _, p := range c.policies {
		ruleProgs := make(map[string][]cel.Program, len(p.Rules))
		for _, r := range p.Rules {
			progs := make([]cel.Program, 0, len(r.Conditions))
			for i := range r.Conditions {
				prg, err := c.compileCondition(&r.Conditions[i])
				if err != nil {
					return fmt.Errorf("pdp: compile policy %q rule %q condition %d: %w", p.ID, r.ID, i, err)
				}
				progs = append(progs, prg)
			}
			ruleProgs[r.ID] = progs
		}
		compiled[p.ID] = ruleProgs
	}
	c.mu.Lock()
	c.compiled = compiled
	c.mu.Unlock()
	return nil
}

func (c *CELPDP) compileCondition(cond *condition.Condition) (cel.Program, error) {
	expr, err := celExprForCondition(cond)
	if err != nil {
		return nil, err
	}
	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compile %q: %w", expr, issues.Err())
	}
	prg, err := c.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("cel program %q: %w", expr, err)
	}
	return prg, nil
}

// Evaluate implements PolicyDecisionPoint. Fail-closed: compile-time
// errors already failed NewCELPDP; any runtime CEL error, a non-bool
// condition result, or context cancellation yields deny.
func (c *CELPDP) Evaluate(ctx context.Context, req *DecisionRequest) (*DecisionResponse, error) {
	policyRef := fmt.Sprintf("cel:%s", c.policyVersion)

	if req == nil || req.Context == nil {
		return denyFailClosed(BackendCEL, policyRef, "DENY_NIL_REQUEST"), nil
	}

	select {
	case <-ctx.Done():
		return denyFailClosed(BackendCEL, policyRef, "DENY_TIMEOUT"), ctx.Err()
	default:
	}

	input, err := contextToCELInput(req.Context)
	if err != nil {
		return denyFailClosed(BackendCEL, policyRef, "DENY_INPUT_ERROR"), err
	}

	if len(c.policies) == 0 {
		final := &policy.PolicyDecision{
			Decision:  policy.Deny,
			Reason:    "No policies loaded - default deny",
			IsDefault: true,
		}
		return c.respond(final, policyRef)
	}

	c.mu.RLock()
	compiled := c.compiled
	c.mu.RUnlock()

	decisions := make([]*policy.PolicyDecision, 0, len(c.policies))
	for i := range c.policies {
		p := c.policies[i]
		ruleProgs := compiled[p.ID]

		matcher := func(r *policy.Rule, _ *valuepath.EvaluationContext) (bool, error) {
			for _, prg := range ruleProgs[r.ID] {
				out, _, err := prg.Eval(map[string]any{"ctx": input})
				if err != nil {
					return false, fmt.Errorf("%w: cel condition: %v", policyerr.ErrConditionError, err)
				}
				matched, isBool := out.Value().(bool)
				if !isBool {
					return false, fmt.Errorf("%w: cel condition did not evaluate to a bool", policyerr.ErrConditionError)
				}
				if !matched {
					return false, nil
				}
			}
			return true, nil
		}

		d, err := policy.EvaluateWithMatcher([]policy.Policy{p}, req.Context, matcher)
		if err != nil {
			return denyFailClosed(BackendCEL, policyRef, "DENY_EVALUATION_ERROR"), err
		}
		decisions = append(decisions, d)
	}

	return c.respond(policy.CombineDecisions(decisions), policyRef)
}

func (c *CELPDP) respond(final *policy.PolicyDecision, policyRef string) (*DecisionResponse, error) {
	resp := &DecisionResponse{
		Allow:     final.Decision == policy.Allow,
		Decision:  *final,
		PolicyRef: policyRef,
	}
	hash, err := ComputeDecisionHash(resp)
	if err != nil {
		return denyFailClosed(BackendCEL, policyRef, "DENY_HASH_FAILURE"), err
	}
	resp.DecisionHash = hash
	return resp, nil
}

// Backend implements PolicyDecisionPoint.
func (c *CELPDP) Backend() Backend { return BackendCEL }

// PolicyHash implements PolicyDecisionPoint. Like NativePDP.PolicyHash it
// hashes the loaded policy set's identity and version fields.
func (c *CELPDP) PolicyHash() string {
	ids := make([]string, len(c.policies))
	for i, p := range c.policies {
		ids[i] = p.ID + "@" + p.Version
	}
	canonical, err := canonicalize.CanonicalizeJSON(ids)
	if err != nil {
		return "sha256:unknown"
	}
	return cidchain.CID(canonical)
}

// contextToCELInput converts an EvaluationContext into the plain
// map[string]interface{} shape CEL's dynamic type system expects, reusing
// the JSON tags already defined on the context types.
func contextToCELInput(ctx *valuepath.EvaluationContext) (map[string]interface{}, error) {
	raw, err := json.Marshal(ctx)
	if err != nil {
		return nil, fmt.Errorf("pdp: marshal context: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("pdp: unmarshal context: %w", err)
	}
	// The JSON form omits a nil Attributes map; Resolve treats it as an
	// empty, present scope, so restore it here.
	if _, ok := out["attributes"]; !ok {
		out["attributes"] = map[string]interface{}{}
	}
	return out, nil
}

// celExprForCondition translates a single {field, operator, value}
// condition into an equivalent boolean CEL expression over the dynamic
// "ctx" map, mirroring pkg/condition.Evaluate's operator semantics.
func celExprForCondition(cond *condition.Condition) (string, error) {
	segments := strings.Split(cond.Field, ".")
	if len(segments) == 0 || len(segments) > 2 || segments[0] == "" {
		return "", fmt.Errorf("%w: unsupported field path %q", policyerr.ErrConditionError, cond.Field)
	}

	hasExpr := celHasChain(segments)
	left := celIndexChain(segments)

	switch cond.Operator {
	case condition.Exists:
		return hasExpr, nil
	case condition.NotExists:
		return "!" + hasExpr, nil
	}

	lit, err := celLiteral(cond.Value)
	if err != nil {
		return "", err
	}

	switch cond.Operator {
	case condition.Equals:
		return fmt.Sprintf("%s == %s", left, lit), nil
	case condition.NotEquals:
		return fmt.Sprintf("%s != %s", left, lit), nil
	case condition.Contains:
		return celContainsExpr(left, lit), nil
	case condition.NotContains:
		return "!" + celContainsExpr(left, lit), nil
	case condition.StartsWith:
		return fmt.Sprintf("(type(%s) == string && %s.startsWith(%s))", left, left, lit), nil
	case condition.EndsWith:
		return fmt.Sprintf("(type(%s) == string && %s.endsWith(%s))", left, left, lit), nil
	case condition.Matches:
		return fmt.Sprintf("(type(%s) == string && %s.matches(%s))", left, left, lit), nil
	case condition.In:
		return fmt.Sprintf("(%s in %s)", left, lit), nil
	case condition.NotIn:
		return fmt.Sprintf("!(%s in %s)", left, lit), nil
	case condition.GreaterThan:
		return fmt.Sprintf("double(%s) > double(%s)", left, lit), nil
	case condition.LessThan:
		return fmt.Sprintf("double(%s) < double(%s)", left, lit), nil
	case condition.GreaterThanOrEqual:
		return fmt.Sprintf("double(%s) >= double(%s)", left, lit), nil
	case condition.LessThanOrEqual:
		return fmt.Sprintf("double(%s) <= double(%s)", left, lit), nil
	default:
		return "", fmt.Errorf("%w: unknown operator %q", policyerr.ErrConditionError, cond.Operator)
	}
}

// celContainsExpr mirrors pkg/condition.evalContains: string substring
// containment when the resolved value is a string, list membership
// (by equality) otherwise.
func celContainsExpr(left, lit string) string {
	return fmt.Sprintf("(type(%s) == string ? %s.contains(%s) : (%s in %s))", left, left, lit, left, lit)
}

// celIndexChain builds a bracket-indexed path into the dynamic ctx map,
// e.g. ["identity", "email"] -> ctx["identity"]["email"]. Bracket
// indexing (rather than dot access) lets arbitrary attribute keys and
// reserved identifiers be used as path segments. The chain follows the
// JSON form of the context literally: environment.<key> indexes
// ctx["environment"][key], so unlike pkg/valuepath.Resolve it does not
// fall back to the environment's attributes map for other keys.
func celIndexChain(segments []string) string {
	var b strings.Builder
	b.WriteString("ctx")
	for _, s := range segments {
		b.WriteString("[")
		b.WriteString(strconv.Quote(s))
		b.WriteString("]")
	}
	return b.String()
}

// celHasChain builds a membership test for the last path segment against
// its parent map, returning false (never erroring) when absent -
// equivalent to pkg/valuepath.Resolve's (nil, false) on a missing field.
func celHasChain(segments []string) string {
	if len(segments) == 1 {
		return fmt.Sprintf("(%s in ctx)", strconv.Quote(segments[0]))
	}
	parent := celIndexChain(segments[:len(segments)-1])
	last := segments[len(segments)-1]
	return fmt.Sprintf("(%s in %s)", strconv.Quote(last), parent)
}

// celLiteral renders a condition's decoded YAML/JSON value as a CEL
// literal expression.
func celLiteral(v interface{}) (string, error) {
	switch val := v.(type) {
	case nil:
		return "null", nil
	case string:
		return strconv.Quote(val), nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case []interface{}:
		parts := make([]string, len(val))
		for i, elem := range val {
			lit, err := celLiteral(elem)
			if err != nil {
				return "", err
			}
			parts[i] = lit
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	default:
		return "", fmt.Errorf("%w: unsupported condition value type %T", policyerr.ErrConditionError, v)
	}
}
