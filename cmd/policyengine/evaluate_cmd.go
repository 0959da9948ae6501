package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/meshward/policyguard/pkg/pdp"
	"github.com/meshward/policyguard/pkg/policy"
	"github.com/meshward/policyguard/pkg/valuepath"
)

// runEvaluateCmd implements `policyengine evaluate`: load one or more
// policy documents and a request context, run the configured PDP backend,
// and print the resulting decision.
//
// Exit codes:
//
//	0 = evaluated, decision allow
//	1 = evaluated, decision deny
//	2 = runtime error (bad flags, malformed input, evaluation failure)
func runEvaluateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		policyPath  string
		contextPath string
		backend     string
		jsonOutput  bool
	)

	cmd.StringVar(&policyPath, "policy", "", "Path to a policy YAML document (REQUIRED)")
	cmd.StringVar(&contextPath, "context", "", "Path to a JSON EvaluationContext document (REQUIRED)")
	cmd.StringVar(&backend, "backend", "native", "PDP backend: native (pkg/condition) or cel (conditions compiled to CEL)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the decision as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if policyPath == "" || contextPath == "" {
		fmt.Fprintln(stderr, "Error: --policy and --context are required")
		return 2
	}

	evalCtx, err := loadEvaluationContext(contextPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	var point pdp.PolicyDecisionPoint
	switch backend {
	case "native":
		point, err = loadNativePDP(policyPath)
	case "cel":
		point, err = loadCELPDP(policyPath)
	default:
		fmt.Fprintf(stderr, "Error: unknown backend %q\n", backend)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	req := &pdp.DecisionRequest{
		Context:   evalCtx,
		RequestID: uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}

	resp, err := point.Evaluate(context.Background(), req)
	if err != nil {
		if resp == nil {
			fmt.Fprintf(stderr, "Error: evaluation failed: %v\n", err)
			return 2
		}
		fmt.Fprintf(stderr, "Warning: evaluation degraded to fail-closed deny: %v\n", err)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		fmt.Fprintf(stdout, "decision:     %s\n", resp.Decision.Decision)
		fmt.Fprintf(stdout, "reason:       %s\n", resp.Decision.Reason)
		fmt.Fprintf(stdout, "rule:         %s\n", resp.Decision.RuleID)
		fmt.Fprintf(stdout, "policy:       %s\n", resp.Decision.PolicyID)
		fmt.Fprintf(stdout, "backend:      %s\n", point.Backend())
		fmt.Fprintf(stdout, "decision_hash: %s\n", resp.DecisionHash)
	}

	if !resp.Allow {
		return 1
	}
	return 0
}

func loadEvaluationContext(path string) (*valuepath.EvaluationContext, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read context file: %w", err)
	}
	var ctx valuepath.EvaluationContext
	if err := json.Unmarshal(raw, &ctx); err != nil {
		return nil, fmt.Errorf("parse context file: %w", err)
	}
	if err := ctx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid context: %w", err)
	}
	return &ctx, nil
}

func loadNativePDP(policyPath string) (*pdp.NativePDP, error) {
	raw, err := os.ReadFile(policyPath)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	evaluator := policy.NewEvaluator()
	if err := evaluator.LoadPolicyYAML(raw); err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	version := "unversioned"
	if policies := evaluator.Policies(); len(policies) > 0 {
		version = policies[0].Version
	}
	return pdp.NewNativePDP(evaluator, version), nil
}

func loadCELPDP(policyPath string) (*pdp.CELPDP, error) {
	raw, err := os.ReadFile(policyPath)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	policies, err := policy.ParseYAML(raw)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	for i := range policies {
		if err := policies[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid policy %q: %w", policies[i].ID, err)
		}
	}

	version := "unversioned"
	if len(policies) > 0 {
		version = policies[0].Version
	}
	return pdp.NewCELPDP(policies, version)
}
