package middleware

import (
	"context"

	"github.com/angelmondragon/starter-billing/pkg/enums"
)

type contextKey string

const (
	ctxUserID         contextKey = "user_id"
	ctxRole           contextKey = "actor_role"
	ctxOrganizationID contextKey = "organization_id"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.MemberRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.MemberRole); ok {
		return v
	}
	return ""
}

// OrganizationIDFromContext returns the session's active organization, or "" when the
// caller is anonymous or has not selected one.
func OrganizationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxOrganizationID).(string); ok {
		return v
	}
	return ""
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithRole injects the caller's role into the context.
func WithRole(ctx context.Context, role enums.MemberRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}

// WithOrganizationID injects the active organization into the context for downstream handlers.
func WithOrganizationID(ctx context.Context, organizationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxOrganizationID, organizationID)
}
