package pdp

import (
	"context"
	"fmt"

	"github.com/meshward/policyguard/pkg/canonicalize"
	"github.com/meshward/policyguard/pkg/cidchain"
	"github.com/meshward/policyguard/pkg/policy"
)

// NativePDP is the default PolicyDecisionPoint, backed directly by the
// policy.Evaluator rule engine.
type NativePDP struct {
	evaluator     *policy.Evaluator
	policyVersion string
}

// NewNativePDP wraps an already-loaded Evaluator. policyVersion identifies
// the active policy set for the PolicyRef returned with every decision.
func NewNativePDP(evaluator *policy.Evaluator, policyVersion string) *NativePDP {
	return &NativePDP{evaluator: evaluator, policyVersion: policyVersion}
}

// Evaluate implements PolicyDecisionPoint. Fail-closed: any context
// cancellation or evaluator error yields a deny decision.
func (n *NativePDP) Evaluate(ctx context.Context, req *DecisionRequest) (*DecisionResponse, error) {
	policyRef := fmt.Sprintf("native:%s", n.policyVersion)

	if req == nil || req.Context == nil {
		return denyFailClosed(BackendNative, policyRef, "DENY_NIL_REQUEST"), nil
	}

	select {
	case <-ctx.Done():
		return denyFailClosed(BackendNative, policyRef, "DENY_TIMEOUT"), ctx.Err()
	default:
	}

	decision, err := n.evaluator.Evaluate(req.Context)
	if err != nil {
		return denyFailClosed(BackendNative, policyRef, "DENY_EVALUATION_ERROR"), err
	}

	resp := &DecisionResponse{
		Allow:     decision.Decision == policy.Allow,
		Decision:  *decision,
		PolicyRef: policyRef,
	}
	hash, err := ComputeDecisionHash(resp)
	if err != nil {
		return denyFailClosed(BackendNative, policyRef, "DENY_HASH_FAILURE"), err
	}
	resp.DecisionHash = hash
	return resp, nil
}

// Backend implements PolicyDecisionPoint.
func (n *NativePDP) Backend() Backend { return BackendNative }

// PolicyHash implements PolicyDecisionPoint. Hashes the loaded policy set's
// identity and version fields, not the full rule bodies, keeping it cheap
// to recompute on every request.
func (n *NativePDP) PolicyHash() string {
	policies := n.evaluator.Policies()
	ids := make([]string, len(policies))
	for i, p := range policies {
		ids[i] = p.ID + "@" + p.Version
	}
	canonical, err := canonicalize.CanonicalizeJSON(ids)
	if err != nil {
		return "sha256:unknown"
	}
	return cidchain.CID(canonical)
}
