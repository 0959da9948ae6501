package policystore

import (
	"context"
	"time"

	"github.com/meshward/policyguard/pkg/policy"
)

// PolicyDocumentStore persists individual policy documents keyed by
// policy ID. SQLStore is the only implementation; the interface exists so
// callers (and tests) can depend on the contract instead of database/sql.
type PolicyDocumentStore interface {
	SavePolicy(ctx context.Context, p *policy.Policy) error
	GetPolicy(ctx context.Context, id string) (*policy.Policy, error)
	ListPolicies(ctx context.Context) ([]policy.Policy, error)
	DeletePolicy(ctx context.Context, id string) error
}

// PackBlobStore persists whole policy Packs as content-addressed blobs,
// keyed by cidchain CID rather than a policy ID. PackStore is the only
// implementation.
type PackBlobStore interface {
	Put(ctx context.Context, pk *policy.Pack) (string, error)
	Get(ctx context.Context, cid string) (*policy.Pack, error)
	Exists(ctx context.Context, cid string) (bool, error)
}

// MutationLock serializes policy-store mutation (reload, pack swap)
// across engine instances. RedisLock is the only implementation.
type MutationLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	Extend(ctx context.Context, ttl time.Duration) error
}

var (
	_ PolicyDocumentStore = (*SQLStore)(nil)
	_ PackBlobStore       = (*PackStore)(nil)
	_ MutationLock        = (*RedisLock)(nil)
)
