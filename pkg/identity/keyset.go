package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KeySet signs and verifies bearer tokens, supporting key rotation without
// invalidating tokens issued under a prior key.
type KeySet interface {
	// Sign creates a signed token with the current active key.
	Sign(claims jwt.Claims) (string, error)
	// KeyFunc resolves the verification key from a token's kid header.
	KeyFunc() jwt.Keyfunc
}

// InMemoryKeySet holds Ed25519 signing keys in memory, keyed by key ID.
// Intended for single-process deployments and tests; multi-instance
// deployments should back KeySet with a shared store instead.
type InMemoryKeySet struct {
	mu         sync.RWMutex
	currentKID string
	keys       map[string]ed25519.PrivateKey
}

// NewInMemoryKeySet creates a key set with one freshly generated key.
func NewInMemoryKeySet() (*InMemoryKeySet, error) {
	ks := &InMemoryKeySet{keys: make(map[string]ed25519.PrivateKey)}
	if err := ks.Rotate(); err != nil {
		return nil, err
	}
	return ks, nil
}

// Rotate generates a new signing key and makes it current, retaining prior
// keys for verification of tokens already issued. At most 10 keys are
// kept: when an 11th is added, one earlier key (not necessarily the
// oldest) is dropped, and tokens signed under it no longer verify.
func (ks *InMemoryKeySet) Rotate() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("identity: generate key: %w", err)
	}

	kid := fmt.Sprintf("key-%d", time.Now().UnixNano())
	ks.keys[kid] = priv
	ks.currentKID = kid

	if len(ks.keys) > 10 {
		for k := range ks.keys {
			if k != kid {
				delete(ks.keys, k)
				break
			}
		}
	}
	return nil
}

// Sign implements KeySet.
func (ks *InMemoryKeySet) Sign(claims jwt.Claims) (string, error) {
	ks.mu.RLock()
	key := ks.keys[ks.currentKID]
	kid := ks.currentKID
	ks.mu.RUnlock()

	if key == nil {
		return "", fmt.Errorf("identity: no active signing key")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

// KeyFunc implements KeySet.
func (ks *InMemoryKeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("identity: unexpected signing method %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("identity: missing kid in token header")
		}
		ks.mu.RLock()
		defer ks.mu.RUnlock()
		key, exists := ks.keys[kid]
		if !exists {
			return nil, fmt.Errorf("identity: unknown key id %q", kid)
		}
		return key.Public(), nil
	}
}
