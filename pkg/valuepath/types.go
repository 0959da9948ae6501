// Package valuepath defines the request context entities and the dotted
// path resolver that maps a field path like "identity.user_id" to a
// dynamic value for condition evaluation.
package valuepath

import (
	"fmt"
	"strings"
	"time"

	"github.com/meshward/policyguard/pkg/policyerr"
)

// ResourceType enumerates the kinds of resource a request can target.
type ResourceType string

const (
	ResourceTenant    ResourceType = "tenant"
	ResourceRoom      ResourceType = "room"
	ResourceMessage   ResourceType = "message"
	ResourceWorkspace ResourceType = "workspace"
	ResourceDocument  ResourceType = "document"
	ResourceTool      ResourceType = "tool"
	ResourceReceipt   ResourceType = "receipt"
)

// ActionType enumerates the broad category of an action.
type ActionType string

const (
	ActionRead    ActionType = "read"
	ActionWrite   ActionType = "write"
	ActionCreate  ActionType = "create"
	ActionDelete  ActionType = "delete"
	ActionExecute ActionType = "execute"
	ActionAdmin   ActionType = "admin"
)

// Role is a totally ordered sum type: guest < member < admin < owner.
type Role int

const (
	RoleGuest Role = iota
	RoleMember
	RoleAdmin
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleGuest:
		return "guest"
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// ParseRole parses the lowercase tag form of a role.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "guest":
		return RoleGuest, true
	case "member":
		return RoleMember, true
	case "admin":
		return RoleAdmin, true
	case "owner":
		return RoleOwner, true
	default:
		return 0, false
	}
}

// MarshalJSON renders a Role as its lowercase tag form, matching the string
// form Resolve produces for the "role" scope.
func (r Role) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// UnmarshalJSON parses a Role from its lowercase tag form.
func (r *Role) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	role, ok := ParseRole(s)
	if !ok {
		return fmt.Errorf("%w: unrecognized role %q", policyerr.ErrInvalidFieldValue, s)
	}
	*r = role
	return nil
}

// TenantType distinguishes the platform operator's own tenant from a
// customer tenant.
type TenantType string

const (
	TenantPlatform TenantType = "platform"
	TenantCustomer TenantType = "customer"
)

// Identity describes the caller making the request.
type Identity struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email,omitempty"`
	EmailDomain string   `json:"email_domain,omitempty"`
	Groups      []string `json:"groups,omitempty"`
	IsService   bool     `json:"is_service"`
}

// Tenant describes the tenant a request is scoped to.
type Tenant struct {
	TenantID   string     `json:"tenant_id"`
	TenantType TenantType `json:"tenant_type,omitempty"`
}

// Resource describes the object the request acts on.
type Resource struct {
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id"`
	OwnerID      *string      `json:"owner_id,omitempty"`
	AgreementID  *string      `json:"agreement_id,omitempty"`
}

// Action describes what the caller is trying to do.
type Action struct {
	ActionType ActionType `json:"action_type"`
	ActionName string     `json:"action_name,omitempty"`
}

// Environment carries request metadata and free-form attributes.
type Environment struct {
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// EvaluationContext is the full request context handed to the evaluator.
type EvaluationContext struct {
	Identity    Identity       `json:"identity"`
	Tenant      Tenant         `json:"tenant"`
	Resource    Resource       `json:"resource"`
	Action      Action         `json:"action"`
	Role        *Role          `json:"role,omitempty"`
	Environment Environment    `json:"environment"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// Validate enforces the non-empty-identifier invariant from spec.md §3.
func (c *EvaluationContext) Validate() error {
	if c.Identity.UserID == "" {
		return fmt.Errorf("%w: identity.user_id", policyerr.ErrMissingField)
	}
	if c.Tenant.TenantID == "" {
		return fmt.Errorf("%w: tenant.tenant_id", policyerr.ErrMissingField)
	}
	if c.Resource.ResourceID == "" {
		return fmt.Errorf("%w: resource.resource_id", policyerr.ErrMissingField)
	}
	return nil
}
