// Package policystore provides durable persistence and distributed
// coordination for policy documents: a SQL-backed document store, an
// S3-backed content-addressed blob store for full policy packs, and a
// Redis-backed lock serializing mutation across engine instances (it does
// not serialize evaluation).
package policystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/meshward/policyguard/pkg/policy"
	"github.com/meshward/policyguard/pkg/policyerr"
)

// SQLStore persists policy documents in a relational table keyed by policy
// ID, storing the full document as a JSON column alongside queryable
// version/name columns.
//
// Expected schema:
//
//	CREATE TABLE policies (
//	    id         TEXT PRIMARY KEY,
//	    version    TEXT NOT NULL,
//	    name       TEXT NOT NULL,
//	    document   JSONB NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an already-opened *sql.DB. Callers are responsible for
// opening it with "postgres" as the driver name.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// SavePolicy upserts a policy document by ID.
func (s *SQLStore) SavePolicy(ctx context.Context, p *policy.Policy) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: marshal policy: %v", policyerr.ErrSerialization, err)
	}

	const query = `
		INSERT INTO policies (id, version, name, document, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			name = EXCLUDED.name,
			document = EXCLUDED.document,
			updated_at = now()
	`
	if _, err := s.db.ExecContext(ctx, query, p.ID, p.Version, p.Name, doc); err != nil {
		return fmt.Errorf("policystore: save policy %q: %w", p.ID, err)
	}
	return nil
}

// GetPolicy retrieves a policy by ID. Returns policyerr.ErrNotFound if no
// row exists.
func (s *SQLStore) GetPolicy(ctx context.Context, id string) (*policy.Policy, error) {
	row := s.db.QueryRowContext(ctx, `SELECT document FROM policies WHERE id = $1`, id)

	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: policy %q", policyerr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("policystore: get policy %q: %w", id, err)
	}

	var p policy.Policy
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("%w: unmarshal policy %q: %v", policyerr.ErrSerialization, id, err)
	}
	return &p, nil
}

// ListPolicies returns every stored policy document, ordered by ID.
func (s *SQLStore) ListPolicies(ctx context.Context) ([]policy.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM policies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("policystore: list policies: %w", err)
	}
	defer rows.Close()

	var out []policy.Policy
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("policystore: scan policy row: %w", err)
		}
		var p policy.Policy
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("%w: unmarshal policy row: %v", policyerr.ErrSerialization, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("policystore: iterate policy rows: %w", err)
	}
	return out, nil
}

// DeletePolicy removes a policy document by ID. Deleting a nonexistent ID
// is not an error.
func (s *SQLStore) DeletePolicy(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM policies WHERE id = $1`, id); err != nil {
		return fmt.Errorf("policystore: delete policy %q: %w", id, err)
	}
	return nil
}
