// Package condition implements the operator semantics of spec.md §4.4:
// equality, containment, regex, numeric comparison, and existence over
// (field-value, literal) pairs resolved from an EvaluationContext.
package condition

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/meshward/policyguard/pkg/policyerr"
	"github.com/meshward/policyguard/pkg/valuepath"
)

// Condition is {field, operator, value} from spec.md §3.
type Condition struct {
	Field    string      `json:"field" yaml:"field"`
	Operator Operator    `json:"operator" yaml:"operator"`
	Value    interface{} `json:"value" yaml:"value"`
}

// Validate enforces the non-empty-field invariant.
func (c *Condition) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("%w: condition.field is empty", policyerr.ErrValidation)
	}
	return nil
}

// regexCache memoizes compiled patterns keyed by the literal pattern
// string. It is purely a performance optimization — evicting or bypassing
// it never changes observable semantics — so an unbounded sync.Map is
// adequate; no ecosystem LRU package is wired anywhere else in the
// reference stack, and ordinary policy sets compile at most a few hundred
// distinct patterns over a process lifetime.
var regexCache sync.Map // map[string]*regexp.Regexp

func compileCached(pattern string) (*regexp.Regexp, error) {
	if v, ok := regexCache.Load(pattern); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	actual, _ := regexCache.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp), nil
}

// Evaluate resolves cond.Field against ctx and applies cond.Operator.
func Evaluate(ctx *valuepath.EvaluationContext, cond *Condition) (bool, error) {
	left, present := valuepath.Resolve(ctx, cond.Field)

	if !present {
		switch cond.Operator {
		case Exists:
			return false, nil
		case NotExists:
			return true, nil
		default:
			return false, fmt.Errorf("%w: field '%s' not found", policyerr.ErrConditionError, cond.Field)
		}
	}

	switch cond.Operator {
	case Exists:
		return true, nil
	case NotExists:
		return false, nil
	case Equals:
		return valuepath.Equal(left, cond.Value), nil
	case NotEquals:
		return !valuepath.Equal(left, cond.Value), nil
	case Contains:
		return evalContains(left, cond.Value), nil
	case NotContains:
		return !evalContains(left, cond.Value), nil
	case StartsWith:
		ls, lok := left.(string)
		rs, rok := cond.Value.(string)
		return lok && rok && strings.HasPrefix(ls, rs), nil
	case EndsWith:
		ls, lok := left.(string)
		rs, rok := cond.Value.(string)
		return lok && rok && strings.HasSuffix(ls, rs), nil
	case Matches:
		return evalMatches(left, cond.Value)
	case In:
		return evalIn(left, cond.Value)
	case NotIn:
		ok, err := evalIn(left, cond.Value)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case GreaterThan, LessThan, GreaterThanOrEqual, LessThanOrEqual:
		return evalNumericCompare(cond.Operator, left, cond.Value)
	default:
		return false, fmt.Errorf("%w: unknown operator '%s'", policyerr.ErrConditionError, cond.Operator)
	}
}

func evalContains(left, right interface{}) bool {
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			return strings.Contains(ls, rs)
		}
		return false
	}
	if arr, ok := left.([]interface{}); ok {
		for _, elem := range arr {
			if valuepath.Equal(elem, right) {
				return true
			}
		}
		return false
	}
	return false
}

func evalMatches(left, right interface{}) (bool, error) {
	ls, lok := left.(string)
	rs, rok := right.(string)
	if !lok || !rok {
		return false, nil
	}
	re, err := compileCached(rs)
	if err != nil {
		return false, fmt.Errorf("%w: invalid regex '%s': %v", policyerr.ErrConditionError, rs, err)
	}
	return re.MatchString(ls), nil
}

func evalIn(left, right interface{}) (bool, error) {
	arr, ok := right.([]interface{})
	if !ok {
		return false, nil
	}
	for _, elem := range arr {
		if valuepath.Equal(left, elem) {
			return true, nil
		}
	}
	return false, nil
}

func evalNumericCompare(op Operator, left, right interface{}) (bool, error) {
	lf, lok := valuepath.AsFloat64(left)
	if !lok {
		return false, fmt.Errorf("%w: left value is not a number", policyerr.ErrConditionError)
	}
	rf, rok := valuepath.AsFloat64(right)
	if !rok {
		return false, fmt.Errorf("%w: right value is not a number", policyerr.ErrConditionError)
	}

	switch op {
	case GreaterThan:
		return lf > rf, nil
	case LessThan:
		return lf < rf, nil
	case GreaterThanOrEqual:
		return lf >= rf, nil
	case LessThanOrEqual:
		return lf <= rf, nil
	default:
		return false, fmt.Errorf("%w: not a comparison operator: %s", policyerr.ErrInternal, op)
	}
}
