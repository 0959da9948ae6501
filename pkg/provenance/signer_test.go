package provenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshward/policyguard/pkg/policy"
)

func sampleDecision() policy.PolicyDecision {
	return policy.PolicyDecision{
		Decision: policy.Allow,
		Reason:   "rule matched",
		RuleID:   "r1",
		PolicyID: "p1",
	}
}

func TestSigner_SignVerify_RoundTrip(t *testing.T) {
	s, err := NewSigner("key-1")
	require.NoError(t, err)

	sig, err := s.Sign(sampleDecision())
	require.NoError(t, err)
	assert.NotEmpty(t, sig)

	ok, err := s.Verify(sampleDecision(), sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSigner_Verify_TamperedPayloadFails(t *testing.T) {
	s, err := NewSigner("key-1")
	require.NoError(t, err)

	sig, err := s.Sign(sampleDecision())
	require.NoError(t, err)

	tampered := sampleDecision()
	tampered.Decision = policy.Deny

	ok, err := s.Verify(tampered, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSigner_Verify_WrongKeyFails(t *testing.T) {
	s1, err := NewSigner("key-1")
	require.NoError(t, err)
	s2, err := NewSigner("key-2")
	require.NoError(t, err)

	sig, err := s1.Sign(sampleDecision())
	require.NoError(t, err)

	ok, err := s2.Verify(sampleDecision(), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSigner_DeriveForTenant_Deterministic(t *testing.T) {
	master, err := NewSigner("master")
	require.NoError(t, err)

	t1a, err := master.DeriveForTenant("tenant-a")
	require.NoError(t, err)
	t1b, err := master.DeriveForTenant("tenant-a")
	require.NoError(t, err)
	t2, err := master.DeriveForTenant("tenant-b")
	require.NoError(t, err)

	assert.Equal(t, t1a.PublicKeyHex(), t1b.PublicKeyHex())
	assert.NotEqual(t, t1a.PublicKeyHex(), t2.PublicKeyHex())
}

func TestSigner_DeriveForTenant_EmptyTenantRejected(t *testing.T) {
	master, err := NewSigner("master")
	require.NoError(t, err)
	_, err = master.DeriveForTenant("")
	assert.Error(t, err)
}

func TestVerifyWithKey_InvalidSignatureHex(t *testing.T) {
	s, err := NewSigner("key-1")
	require.NoError(t, err)
	_, err = s.Verify(sampleDecision(), "not-hex!!")
	assert.Error(t, err)
}
