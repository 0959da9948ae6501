package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshward/policyguard/pkg/valuepath"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	ks, err := NewInMemoryKeySet()
	require.NoError(t, err)
	tm := NewTokenManager(ks)

	id := valuepath.Identity{UserID: "u1", Email: "u1@example.com", Groups: []string{"eng"}}
	tenant := valuepath.Tenant{TenantID: "t1"}

	tok, err := tm.GenerateToken(id, tenant, "member", time.Hour)
	require.NoError(t, err)

	claims, err := tm.ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "t1", claims.TenantID)
	assert.Equal(t, "member", claims.Role)

	assert.Equal(t, "u1", claims.ToIdentity().UserID)
	assert.Equal(t, "example.com", claims.ToIdentity().EmailDomain)
	assert.Equal(t, "t1", claims.ToTenant().TenantID)

	role, ok := claims.ToRole()
	require.True(t, ok)
	assert.Equal(t, valuepath.RoleMember, role)
}

func TestTokenManager_BuildContext(t *testing.T) {
	ks, err := NewInMemoryKeySet()
	require.NoError(t, err)
	tm := NewTokenManager(ks)

	tok, err := tm.GenerateToken(valuepath.Identity{UserID: "u2"}, valuepath.Tenant{TenantID: "t2"}, "admin", time.Hour)
	require.NoError(t, err)

	ctx, err := tm.BuildContext(tok)
	require.NoError(t, err)
	assert.Equal(t, "u2", ctx.Identity.UserID)
	assert.Equal(t, "t2", ctx.Tenant.TenantID)
	require.NotNil(t, ctx.Role)
	assert.Equal(t, valuepath.RoleAdmin, *ctx.Role)
}

func TestTokenManager_ExpiredTokenRejected(t *testing.T) {
	ks, err := NewInMemoryKeySet()
	require.NoError(t, err)
	tm := NewTokenManager(ks)

	tok, err := tm.GenerateToken(valuepath.Identity{UserID: "u3"}, valuepath.Tenant{TenantID: "t3"}, "", -time.Hour)
	require.NoError(t, err)

	_, err = tm.ParseToken(tok)
	assert.Error(t, err)
}

func TestTokenManager_WrongKeySetRejected(t *testing.T) {
	ks1, err := NewInMemoryKeySet()
	require.NoError(t, err)
	ks2, err := NewInMemoryKeySet()
	require.NoError(t, err)

	tm1 := NewTokenManager(ks1)
	tm2 := NewTokenManager(ks2)

	tok, err := tm1.GenerateToken(valuepath.Identity{UserID: "u4"}, valuepath.Tenant{TenantID: "t4"}, "", time.Hour)
	require.NoError(t, err)

	_, err = tm2.ParseToken(tok)
	assert.Error(t, err)
}

func TestClaims_ToRole_UnrecognizedReturnsFalse(t *testing.T) {
	c := &Claims{Role: "not-a-role"}
	_, ok := c.ToRole()
	assert.False(t, ok)
}

func TestClaims_ToRole_AbsentReturnsFalse(t *testing.T) {
	c := &Claims{}
	_, ok := c.ToRole()
	assert.False(t, ok)
}

func TestKeySet_RotatePreservesOldKeyVerification(t *testing.T) {
	ks, err := NewInMemoryKeySet()
	require.NoError(t, err)
	tm := NewTokenManager(ks)

	tok, err := tm.GenerateToken(valuepath.Identity{UserID: "u5"}, valuepath.Tenant{TenantID: "t5"}, "", time.Hour)
	require.NoError(t, err)

	require.NoError(t, ks.Rotate())

	_, err = tm.ParseToken(tok)
	assert.NoError(t, err)
}
