// Package sandbox runs policy evaluation logic compiled to WebAssembly
// inside an isolated edge worker, for deployments that ship policy as
// portable bytecode rather than invoking pkg/policy directly in-process
// (e.g. evaluation at a CDN edge location next to the request).
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// BlobStore fetches a compiled WASM module by content hash. It is a narrow
// local interface so this package does not import policystore;
// pkg/policystore.PackStore does not implement it, since its Get returns a
// parsed Pack rather than raw module bytes.
type BlobStore interface {
	GetBlob(ctx context.Context, ref string) ([]byte, error)
}

// Sandbox executes a compiled policy module against a JSON-encoded
// DecisionRequest and returns a JSON-encoded DecisionResponse.
type Sandbox interface {
	// Run executes the module referenced by ref with the given input.
	Run(ctx context.Context, ref string, input []byte) ([]byte, error)

	// Close releases sandbox resources.
	Close(ctx context.Context) error
}

// Config bounds a sandbox execution's resource use.
type Config struct {
	MemoryLimitBytes int64
	CPUTimeLimit     time.Duration
}

// Deterministic error codes for sandbox limit violations.
const (
	ErrComputeTimeExhausted   = "ERR_COMPUTE_TIME_EXHAUSTED"
	ErrComputeMemoryExhausted = "ERR_COMPUTE_MEMORY_EXHAUSTED"
	ErrComputeOutputExhausted = "ERR_COMPUTE_OUTPUT_EXHAUSTED"
)

// OutputMaxBytes bounds a single execution's combined stdout+stderr.
const OutputMaxBytes = 1024 * 1024

// Error is a typed, deterministic sandbox limit violation.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// InProcessSandbox runs the referenced module natively, with no isolation.
// Intended for local development and tests only.
type InProcessSandbox struct {
	run func(ctx context.Context, ref string, input []byte) ([]byte, error)
}

// NewInProcessSandbox wraps an in-process evaluation function, letting
// tests and single-process deployments exercise the Sandbox interface
// without a real WASM module.
func NewInProcessSandbox(run func(ctx context.Context, ref string, input []byte) ([]byte, error)) *InProcessSandbox {
	return &InProcessSandbox{run: run}
}

// Run implements Sandbox.
func (s *InProcessSandbox) Run(ctx context.Context, ref string, input []byte) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return s.run(ctx, ref, input)
}

// Close implements Sandbox.
func (s *InProcessSandbox) Close(ctx context.Context) error { return nil }

// WasiSandbox enforces strict confinement using WebAssembly (wazero): no
// filesystem, no network, deny-by-default WASI, with memory and time
// limits applied per execution.
type WasiSandbox struct {
	runtime wazero.Runtime
	store   BlobStore
	config  Config
}

// NewWasiSandbox creates a confined sandbox backed by store for fetching
// compiled modules.
func NewWasiSandbox(ctx context.Context, store BlobStore, config Config) (*WasiSandbox, error) {
	rConfig := wazero.NewRuntimeConfig()
	if config.MemoryLimitBytes > 0 {
		pages := uint32(config.MemoryLimitBytes / 65536)
		if pages == 0 {
			pages = 1
		}
		rConfig = rConfig.WithMemoryLimitPages(pages)
	}

	r := wazero.NewRuntimeWithConfig(ctx, rConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("sandbox: instantiate WASI: %w", err)
	}

	return &WasiSandbox{runtime: r, store: store, config: config}, nil
}

// Run implements Sandbox.
func (s *WasiSandbox) Run(ctx context.Context, ref string, input []byte) ([]byte, error) {
	wasmBytes, err := s.store.GetBlob(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("sandbox: load module %q: %w", ref, err)
	}

	execCtx := ctx
	if s.config.CPUTimeLimit > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, s.config.CPUTimeLimit)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	moduleConfig := wazero.NewModuleConfig().
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithName("policy-module")

	compiled, err := s.runtime.CompileModule(execCtx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("sandbox: compile module %q: %w", ref, err)
	}
	defer func() { _ = compiled.Close(execCtx) }()

	mod, err := s.runtime.InstantiateModule(execCtx, compiled, moduleConfig)
	if err != nil {
		if execCtx.Err() != nil {
			return nil, &Error{
				Code:    ErrComputeTimeExhausted,
				Message: fmt.Sprintf("execution exceeded time limit (%s)", s.config.CPUTimeLimit),
			}
		}
		if isMemoryError(err) {
			return nil, &Error{
				Code:    ErrComputeMemoryExhausted,
				Message: fmt.Sprintf("execution exceeded memory limit (%d bytes)", s.config.MemoryLimitBytes),
			}
		}
		return nil, fmt.Errorf("sandbox: execution failed: %w", err)
	}
	defer func() { _ = mod.Close(execCtx) }()

	if stdout.Len()+stderr.Len() > OutputMaxBytes {
		return nil, &Error{
			Code:    ErrComputeOutputExhausted,
			Message: fmt.Sprintf("output size %d exceeds limit %d", stdout.Len()+stderr.Len(), OutputMaxBytes),
		}
	}

	return stdout.Bytes(), nil
}

// Close implements Sandbox.
func (s *WasiSandbox) Close(ctx context.Context) error {
	return s.runtime.Close(ctx)
}

func isMemoryError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsAny(msg, "memory") && (containsAny(msg, "limit") || containsAny(msg, "grow") || containsAny(msg, "exceeded"))
}

func containsAny(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
