// Package pdp defines the Policy Decision Point abstraction: a stable
// interface in front of whichever evaluation engine actually decides a
// request, so that callers (the HTTP surface, edge workers, batch
// re-evaluation jobs) never need to know whether a decision came from the
// native rule evaluator or a CEL expression set.
//
// Every implementation MUST be fail-closed: on internal error it returns a
// deny decision and a non-nil error, never a silent allow.
package pdp

import (
	"context"
	"fmt"
	"time"

	"github.com/meshward/policyguard/pkg/canonicalize"
	"github.com/meshward/policyguard/pkg/cidchain"
	"github.com/meshward/policyguard/pkg/policy"
	"github.com/meshward/policyguard/pkg/valuepath"
)

// Backend identifies the evaluation engine behind a PolicyDecisionPoint.
type Backend string

const (
	BackendNative Backend = "native"
	BackendCEL    Backend = "cel"
)

// DecisionRequest is the structured input to a policy evaluation, carrying
// an EvaluationContext plus request metadata that does not participate in
// condition evaluation but is useful for tracing and provenance.
type DecisionRequest struct {
	Context   *valuepath.EvaluationContext `json:"context"`
	RequestID string                       `json:"request_id,omitempty"`
	Timestamp time.Time                    `json:"timestamp"`
}

// DecisionResponse is the canonical output of a policy evaluation,
// independent of which backend produced it.
type DecisionResponse struct {
	Allow        bool   `json:"allow"`
	Decision     policy.PolicyDecision `json:"decision"`
	PolicyRef    string `json:"policy_ref"`
	DecisionHash string `json:"decision_hash"`
}

// PolicyDecisionPoint is the stable interface for policy evaluation.
type PolicyDecisionPoint interface {
	// Evaluate runs the policy evaluation. MUST be fail-closed.
	Evaluate(ctx context.Context, req *DecisionRequest) (*DecisionResponse, error)

	// Backend returns the backend identifier.
	Backend() Backend

	// PolicyHash returns a content-addressed hash of the active policy set.
	PolicyHash() string
}

// ComputeDecisionHash produces a deterministic hash of a decision using the
// canonicalizer and the cidchain content-addressing scheme, binding a
// decision to a verifiable identifier independent of the backend that
// produced it.
func ComputeDecisionHash(resp *DecisionResponse) (string, error) {
	hashInput := struct {
		Allow     bool                  `json:"allow"`
		Decision  policy.PolicyDecision `json:"decision"`
		PolicyRef string                `json:"policy_ref"`
	}{
		Allow:     resp.Allow,
		Decision:  resp.Decision,
		PolicyRef: resp.PolicyRef,
	}

	canonical, err := canonicalize.CanonicalizeJSON(hashInput)
	if err != nil {
		return "", fmt.Errorf("pdp: decision hash canonicalization failed: %w", err)
	}

	return cidchain.CID(canonical), nil
}

func denyFailClosed(backend Backend, policyRef, reasonCode string) *DecisionResponse {
	resp := &DecisionResponse{
		Allow:     false,
		PolicyRef: policyRef,
		Decision: policy.PolicyDecision{
			Decision:  policy.Deny,
			Reason:    reasonCode,
			IsDefault: true,
		},
	}
	hash, _ := ComputeDecisionHash(resp)
	resp.DecisionHash = hash
	return resp
}
