package valuepath

import (
	"strings"
)

// Resolve maps a dotted field path to a dynamic value per spec.md §4.3.
// It returns (value, true) on success or (nil, false) when the path does
// not resolve (empty path, unknown scope, unknown field, or a path with
// three or more segments).
func Resolve(ctx *EvaluationContext, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")

	switch len(segments) {
	case 1:
		return resolveScope(ctx, segments[0])
	case 2:
		return resolveField(ctx, segments[0], segments[1])
	default:
		return nil, false
	}
}

func resolveScope(ctx *EvaluationContext, scope string) (interface{}, bool) {
	switch scope {
	case "identity":
		return identityMap(ctx.Identity), true
	case "tenant":
		return tenantMap(ctx.Tenant), true
	case "resource":
		return resourceMap(ctx.Resource), true
	case "action":
		return actionMap(ctx.Action), true
	case "role":
		if ctx.Role == nil {
			return nil, false
		}
		return ctx.Role.String(), true
	case "environment":
		return environmentMap(ctx.Environment), true
	case "attributes":
		return toAnyMap(ctx.Attributes), true
	default:
		return nil, false
	}
}

func resolveField(ctx *EvaluationContext, scope, field string) (interface{}, bool) {
	switch scope {
	case "identity":
		switch field {
		case "user_id":
			return ctx.Identity.UserID, true
		case "email":
			return ctx.Identity.Email, true
		case "email_domain":
			return ctx.Identity.EmailDomain, true
		case "groups":
			return toAnySlice(ctx.Identity.Groups), true
		case "is_service":
			return ctx.Identity.IsService, true
		default:
			return nil, false
		}
	case "tenant":
		switch field {
		case "tenant_id":
			return ctx.Tenant.TenantID, true
		case "tenant_type":
			return string(ctx.Tenant.TenantType), true
		default:
			return nil, false
		}
	case "resource":
		switch field {
		case "resource_type":
			return strings.ToLower(string(ctx.Resource.ResourceType)), true
		case "resource_id":
			return ctx.Resource.ResourceID, true
		case "owner_id":
			if ctx.Resource.OwnerID == nil {
				return nil, false
			}
			return *ctx.Resource.OwnerID, true
		case "agreement_id":
			if ctx.Resource.AgreementID == nil {
				return nil, false
			}
			return *ctx.Resource.AgreementID, true
		default:
			return nil, false
		}
	case "action":
		switch field {
		case "action_type":
			return strings.ToLower(string(ctx.Action.ActionType)), true
		case "action_name":
			return ctx.Action.ActionName, true
		default:
			return nil, false
		}
	case "environment":
		switch field {
		case "timestamp":
			if ctx.Environment.Timestamp == nil {
				return nil, false
			}
			return ctx.Environment.Timestamp.Format(timeLayout), true
		case "request_id":
			if ctx.Environment.RequestID == "" {
				return nil, false
			}
			return ctx.Environment.RequestID, true
		case "ip_address":
			if ctx.Environment.IPAddress == "" {
				return nil, false
			}
			return ctx.Environment.IPAddress, true
		case "user_agent":
			if ctx.Environment.UserAgent == "" {
				return nil, false
			}
			return ctx.Environment.UserAgent, true
		case "attributes":
			// environment.attributes with no third segment: whole map.
			return toAnyMap(ctx.Environment.Attributes), true
		default:
			v, ok := ctx.Environment.Attributes[field]
			return v, ok
		}
	case "attributes":
		v, ok := ctx.Attributes[field]
		return v, ok
	default:
		return nil, false
	}
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

func identityMap(i Identity) map[string]interface{} {
	return map[string]interface{}{
		"user_id":      i.UserID,
		"email":        i.Email,
		"email_domain": i.EmailDomain,
		"groups":       toAnySlice(i.Groups),
		"is_service":   i.IsService,
	}
}

func tenantMap(t Tenant) map[string]interface{} {
	return map[string]interface{}{
		"tenant_id":   t.TenantID,
		"tenant_type": string(t.TenantType),
	}
}

func resourceMap(r Resource) map[string]interface{} {
	m := map[string]interface{}{
		"resource_type": strings.ToLower(string(r.ResourceType)),
		"resource_id":   r.ResourceID,
	}
	if r.OwnerID != nil {
		m["owner_id"] = *r.OwnerID
	}
	if r.AgreementID != nil {
		m["agreement_id"] = *r.AgreementID
	}
	return m
}

func actionMap(a Action) map[string]interface{} {
	return map[string]interface{}{
		"action_type": strings.ToLower(string(a.ActionType)),
		"action_name": a.ActionName,
	}
}

func environmentMap(e Environment) map[string]interface{} {
	m := map[string]interface{}{
		"request_id": e.RequestID,
		"ip_address": e.IPAddress,
		"user_agent": e.UserAgent,
	}
	if e.Timestamp != nil {
		m["timestamp"] = e.Timestamp.Format(timeLayout)
	}
	if e.Attributes != nil {
		m["attributes"] = toAnyMap(e.Attributes)
	}
	return m
}

func toAnySlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func toAnyMap(m map[string]any) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
