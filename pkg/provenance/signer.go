// Package provenance signs and verifies PolicyDecision and Policy
// documents with Ed25519, binding a decision or document to the key that
// produced it so downstream consumers can attribute and audit it.
package provenance

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/meshward/policyguard/pkg/canonicalize"
	"github.com/meshward/policyguard/pkg/policyerr"
)

// Signer produces and verifies Ed25519 signatures over canonicalized
// payloads.
type Signer struct {
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	keyID string
}

// NewSigner generates a fresh Ed25519 key pair.
func NewSigner(keyID string) (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("provenance: generate key: %w", err)
	}
	return &Signer{priv: priv, pub: pub, keyID: keyID}, nil
}

// NewSignerFromKey wraps an existing private key.
func NewSignerFromKey(priv ed25519.PrivateKey, keyID string) *Signer {
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey), keyID: keyID}
}

// DeriveForTenant derives a tenant-scoped signing key from this signer's
// key material using HKDF-SHA256, so every tenant gets a distinct,
// deterministic key pair without the operator storing one per tenant.
func (s *Signer) DeriveForTenant(tenantID string) (*Signer, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID must not be empty", policyerr.ErrInvalidFieldValue)
	}

	seed := s.priv.Seed()
	reader := hkdf.New(sha256.New, seed, []byte("policyguard-tenant-kdf"), []byte(tenantID))

	tenantSeed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, tenantSeed); err != nil {
		return nil, fmt.Errorf("provenance: derive tenant key: %w", err)
	}

	priv := ed25519.NewKeyFromSeed(tenantSeed)
	return NewSignerFromKey(priv, s.keyID+":"+tenantID), nil
}

// PublicKeyHex returns the signer's public key, hex-encoded.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.pub)
}

// KeyID identifies which key produced a signature, for key rotation and
// multi-tenant key derivation.
func (s *Signer) KeyID() string {
	return s.keyID
}

// Sign canonicalizes v and returns a hex-encoded Ed25519 signature over
// the canonical bytes.
func (s *Signer) Sign(v interface{}) (string, error) {
	payload, err := canonicalPayload(v)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ed25519.Sign(s.priv, payload)), nil
}

// Verify checks a hex-encoded signature against the canonical form of v
// using this signer's public key.
func (s *Signer) Verify(v interface{}, sigHex string) (bool, error) {
	return VerifyWithKey(s.pub, v, sigHex)
}

// VerifyWithKey checks a hex-encoded signature against the canonical form
// of v using an explicit public key, for verifying payloads signed by a
// different signer (e.g. a derived tenant key).
func VerifyWithKey(pub ed25519.PublicKey, v interface{}, sigHex string) (bool, error) {
	payload, err := canonicalPayload(v)
	if err != nil {
		return false, err
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("%w: signature hex: %v", policyerr.ErrValidation, err)
	}
	return ed25519.Verify(pub, payload, sig), nil
}

func canonicalPayload(v interface{}) ([]byte, error) {
	canonical, err := canonicalize.CanonicalizeJSON(v)
	if err != nil {
		return nil, fmt.Errorf("provenance: canonicalize payload: %w", err)
	}
	return canonical, nil
}
