package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshward/policyguard/pkg/condition"
	"github.com/meshward/policyguard/pkg/valuepath"
)

func ctxWithRole(role valuepath.Role) *valuepath.EvaluationContext {
	return &valuepath.EvaluationContext{
		Identity: valuepath.Identity{UserID: "u1"},
		Tenant:   valuepath.Tenant{TenantID: "t1"},
		Resource: valuepath.Resource{ResourceType: valuepath.ResourceRoom, ResourceID: "r1"},
		Action:   valuepath.Action{ActionType: valuepath.ActionRead, ActionName: "messenger.read"},
		Role:     &role,
	}
}

// TestEvaluate_RoleMatchAllows is spec.md §8 scenario S1.
func TestEvaluate_RoleMatchAllows(t *testing.T) {
	e := NewEvaluator()
	require.NoError(t, e.AddPolicy(Policy{
		ID:            "basic",
		Name:          "basic",
		DefaultEffect: Deny,
		Rules: []Rule{
			{
				ID:       "allow-members",
				Effect:   Allow,
				Priority: 10,
				Conditions: []condition.Condition{
					{Field: "role", Operator: condition.Equals, Value: "member"},
				},
			},
		},
	}))

	d, err := e.Evaluate(ctxWithRole(valuepath.RoleMember))
	require.NoError(t, err)
	assert.Equal(t, Allow, d.Decision)
	assert.Equal(t, "allow-members", d.RuleID)
	assert.False(t, d.IsDefault)

	d, err = e.Evaluate(ctxWithRole(valuepath.RoleGuest))
	require.NoError(t, err)
	assert.Equal(t, Deny, d.Decision)
	assert.True(t, d.IsDefault)
}

// TestEvaluate_DenyOverridesUnconditionalAllow is spec.md §8 scenario S2.
func TestEvaluate_DenyOverridesUnconditionalAllow(t *testing.T) {
	e := NewEvaluator()
	require.NoError(t, e.AddPolicy(Policy{
		ID:                 "guarded",
		Name:               "guarded",
		CombiningAlgorithm: DenyOverrides,
		DefaultEffect:      Deny,
		Rules: []Rule{
			{ID: "allow-all", Effect: Allow, Priority: 1},
			{
				ID:       "deny-guests",
				Effect:   Deny,
				Priority: 10,
				Conditions: []condition.Condition{
					{Field: "role", Operator: condition.Equals, Value: "guest"},
				},
			},
		},
	}))

	d, err := e.Evaluate(ctxWithRole(valuepath.RoleGuest))
	require.NoError(t, err)
	assert.Equal(t, Deny, d.Decision)
	assert.Equal(t, "deny-guests", d.RuleID)

	d, err = e.Evaluate(ctxWithRole(valuepath.RoleMember))
	require.NoError(t, err)
	assert.Equal(t, Allow, d.Decision)
	assert.Equal(t, "allow-all", d.RuleID)
}

// TestEvaluate_MissingFieldFaultsNotDecisions is spec.md §8 scenario S6.
func TestEvaluate_MissingFieldFaultsNotDecisions(t *testing.T) {
	e := NewEvaluator()
	require.NoError(t, e.AddPolicy(Policy{ID: "p", Name: "p"}))

	ctx := &valuepath.EvaluationContext{
		Identity: valuepath.Identity{UserID: ""},
		Tenant:   valuepath.Tenant{TenantID: "t1"},
		Resource: valuepath.Resource{ResourceType: valuepath.ResourceRoom, ResourceID: "r1"},
	}
	_, err := e.Evaluate(ctx)
	assert.Error(t, err)
}

// TestEvaluate_PriorityOrderRespected exercises invariant 5: higher-priority
// rules are considered before lower-priority ones regardless of declaration order.
func TestEvaluate_PriorityOrderRespected(t *testing.T) {
	e := NewEvaluator()
	require.NoError(t, e.AddPolicy(Policy{
		ID:                 "ordered",
		Name:               "ordered",
		CombiningAlgorithm: FirstApplicable,
		DefaultEffect:      Deny,
		Rules: []Rule{
			{ID: "low", Effect: Deny, Priority: 1},
			{ID: "high", Effect: Allow, Priority: 100},
		},
	}))

	d, err := e.Evaluate(ctxWithRole(valuepath.RoleMember))
	require.NoError(t, err)
	assert.Equal(t, "high", d.RuleID)
	assert.Equal(t, Allow, d.Decision)
}

// TestEvaluate_EmptyConditionRuleMatchesAll exercises invariant 6.
func TestEvaluate_EmptyConditionRuleMatchesAll(t *testing.T) {
	e := NewEvaluator()
	require.NoError(t, e.AddPolicy(Policy{
		ID:            "catchall",
		Name:          "catchall",
		DefaultEffect: Deny,
		Rules: []Rule{
			{ID: "allow-everyone", Effect: Allow, Priority: 1},
		},
	}))

	d, err := e.Evaluate(ctxWithRole(valuepath.RoleGuest))
	require.NoError(t, err)
	assert.Equal(t, Allow, d.Decision)
	assert.Equal(t, "allow-everyone", d.RuleID)
}

// TestEvaluate_DefaultEffectReachable exercises invariant 7: a policy with no
// matching rules falls through to its configured default_effect.
func TestEvaluate_DefaultEffectReachable(t *testing.T) {
	e := NewEvaluator()
	require.NoError(t, e.AddPolicy(Policy{
		ID:            "strict",
		Name:          "strict",
		DefaultEffect: Allow,
		Rules: []Rule{
			{
				ID:     "deny-guests",
				Effect: Deny,
				Conditions: []condition.Condition{
					{Field: "role", Operator: condition.Equals, Value: "guest"},
				},
			},
		},
	}))

	d, err := e.Evaluate(ctxWithRole(valuepath.RoleMember))
	require.NoError(t, err)
	assert.Equal(t, Allow, d.Decision)
	assert.True(t, d.IsDefault)
}

// TestEvaluate_CrossPolicyDenyDominance exercises invariant 8: an explicit
// deny in one policy wins over another policy's allow, even when the
// denying policy was added last.
func TestEvaluate_CrossPolicyDenyDominance(t *testing.T) {
	e := NewEvaluator()
	require.NoError(t, e.AddPolicy(Policy{
		ID:            "allow-policy",
		Name:          "allow-policy",
		DefaultEffect: Deny,
		Rules:         []Rule{{ID: "allow-all", Effect: Allow, Priority: 1}},
	}))
	require.NoError(t, e.AddPolicy(Policy{
		ID:            "deny-policy",
		Name:          "deny-policy",
		DefaultEffect: Deny,
		Rules: []Rule{
			{
				ID:     "deny-guests",
				Effect: Deny,
				Conditions: []condition.Condition{
					{Field: "role", Operator: condition.Equals, Value: "guest"},
				},
			},
		},
	}))

	d, err := e.Evaluate(ctxWithRole(valuepath.RoleGuest))
	require.NoError(t, err)
	assert.Equal(t, Deny, d.Decision)
	assert.Equal(t, "deny-policy", d.PolicyID)
}

// TestEvaluate_CrossPolicyDefaultDenyDominatesAllow exercises invariant 8
// in its stricter form: a policy that falls through to its default deny
// (no rule matched) still outweighs another policy's explicit allow.
func TestEvaluate_CrossPolicyDefaultDenyDominatesAllow(t *testing.T) {
	e := NewEvaluator()
	require.NoError(t, e.AddPolicy(Policy{
		ID:            "allow-policy",
		Name:          "allow-policy",
		DefaultEffect: Deny,
		Rules:         []Rule{{ID: "allow-all", Effect: Allow, Priority: 1}},
	}))
	require.NoError(t, e.AddPolicy(Policy{
		ID:            "silent-policy",
		Name:          "silent-policy",
		DefaultEffect: Deny,
		Rules: []Rule{
			{
				ID:     "allow-admins-only",
				Effect: Allow,
				Conditions: []condition.Condition{
					{Field: "role", Operator: condition.Equals, Value: "admin"},
				},
			},
		},
	}))

	d, err := e.Evaluate(ctxWithRole(valuepath.RoleMember))
	require.NoError(t, err)
	assert.Equal(t, Deny, d.Decision)
	assert.Equal(t, "silent-policy", d.PolicyID)
	assert.True(t, d.IsDefault)
}

// TestEvaluate_Purity exercises invariant 9: identical inputs produce
// identical decisions (ignoring timing).
func TestEvaluate_Purity(t *testing.T) {
	e := NewEvaluator()
	require.NoError(t, e.AddPolicy(Policy{
		ID:            "basic",
		Name:          "basic",
		DefaultEffect: Deny,
		Rules: []Rule{
			{
				ID:       "allow-members",
				Effect:   Allow,
				Priority: 10,
				Conditions: []condition.Condition{
					{Field: "role", Operator: condition.Equals, Value: "member"},
				},
			},
		},
	}))

	ctx1 := ctxWithRole(valuepath.RoleMember)
	ctx2 := ctxWithRole(valuepath.RoleMember)

	d1, err := e.Evaluate(ctx1)
	require.NoError(t, err)
	d2, err := e.Evaluate(ctx2)
	require.NoError(t, err)

	assert.Equal(t, d1.Decision, d2.Decision)
	assert.Equal(t, d1.Reason, d2.Reason)
	assert.Equal(t, d1.RuleID, d2.RuleID)
	assert.Equal(t, d1.PolicyID, d2.PolicyID)
	assert.Equal(t, d1.IsDefault, d2.IsDefault)
}

func TestEvaluate_NoPoliciesLoadedDefaultsDeny(t *testing.T) {
	e := NewEvaluator()
	d, err := e.Evaluate(ctxWithRole(valuepath.RoleMember))
	require.NoError(t, err)
	assert.Equal(t, Deny, d.Decision)
	assert.True(t, d.IsDefault)
}

func TestAddPolicy_RejectsInvalid(t *testing.T) {
	e := NewEvaluator()
	err := e.AddPolicy(Policy{Name: "missing-id"})
	assert.Error(t, err)
}
