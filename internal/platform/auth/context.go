package auth

import (
	"context"
	"regexp"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
	TenantIDKey  contextKey = "tenant_id"
)

// Roles recognised by the accumulator API. admin satisfies every RequireRole check.
const (
	RoleMember  = "member"
	RoleAnalyst = "analyst"
	RoleIngest  = "ingest"
	RoleAdmin   = "admin"
)

var tenantPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidTenantID reports whether id is a well-formed tenant identifier.
func ValidTenantID(id string) bool {
	return tenantPattern.MatchString(id)
}

// WithTenant binds the authenticated tenant to ctx.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// TenantFromContext returns the authenticated tenant, or "" when none is bound.
func TenantFromContext(ctx context.Context) string {
	t, _ := ctx.Value(TenantIDKey).(string)
	return t
}

func WithRoles(ctx context.Context, roles ...string) context.Context {
	return context.WithValue(ctx, UserRolesKey, roles)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
