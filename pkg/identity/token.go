// Package identity turns a bearer JWT into the EvaluationContext identity
// and tenant scopes the policy engine evaluates against.
package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meshward/policyguard/pkg/policyerr"
	"github.com/meshward/policyguard/pkg/valuepath"
)

// Claims extends the standard JWT registered claims with the fields the
// policy engine needs to populate Identity, Tenant, and Role.
type Claims struct {
	jwt.RegisteredClaims
	Email     string   `json:"email,omitempty"`
	Groups    []string `json:"groups,omitempty"`
	TenantID  string   `json:"tenant_id,omitempty"`
	Role      string   `json:"role,omitempty"`
	IsService bool     `json:"is_service,omitempty"`
}

// TokenManager validates bearer tokens with a KeySet and projects their
// claims into the policy engine's value model.
type TokenManager struct {
	keySet KeySet
}

// NewTokenManager creates a TokenManager backed by ks.
func NewTokenManager(ks KeySet) *TokenManager {
	return &TokenManager{keySet: ks}
}

// GenerateToken issues a signed bearer token carrying the given identity,
// tenant, and optional role, valid for duration.
func (tm *TokenManager) GenerateToken(id valuepath.Identity, tenant valuepath.Tenant, role string, duration time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			Issuer:    "policyguard",
		},
		Email:     id.Email,
		Groups:    id.Groups,
		TenantID:  tenant.TenantID,
		Role:      role,
		IsService: id.IsService,
	}
	return tm.keySet.Sign(claims)
}

// ParseToken validates tokenString and returns its claims.
func (tm *TokenManager) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, tm.keySet.KeyFunc())
	if err != nil {
		return nil, fmt.Errorf("%w: jwt: %v", policyerr.ErrValidation, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: token not valid", policyerr.ErrValidation)
	}
	return claims, nil
}

// ToIdentity projects claims into an Identity scope.
func (c *Claims) ToIdentity() valuepath.Identity {
	id := valuepath.Identity{
		UserID:    c.Subject,
		Email:     c.Email,
		Groups:    c.Groups,
		IsService: c.IsService,
	}
	if idx := strings.LastIndex(c.Email, "@"); idx >= 0 {
		id.EmailDomain = c.Email[idx+1:]
	}
	return id
}

// ToTenant projects claims into a Tenant scope.
func (c *Claims) ToTenant() valuepath.Tenant {
	return valuepath.Tenant{TenantID: c.TenantID}
}

// ToRole parses the claims' role string, returning false if the claim is
// absent or unrecognized so callers can leave EvaluationContext.Role nil.
func (c *Claims) ToRole() (valuepath.Role, bool) {
	if c.Role == "" {
		return 0, false
	}
	return valuepath.ParseRole(c.Role)
}

// BuildContext assembles the identity, tenant, and role scopes of an
// EvaluationContext from a bearer token, leaving Resource, Action, and
// Environment for the caller to fill in from the request being authorized.
func (tm *TokenManager) BuildContext(tokenString string) (*valuepath.EvaluationContext, error) {
	claims, err := tm.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}

	ctx := &valuepath.EvaluationContext{
		Identity: claims.ToIdentity(),
		Tenant:   claims.ToTenant(),
	}
	if role, ok := claims.ToRole(); ok {
		ctx.Role = &role
	}
	return ctx, nil
}
