package auth

import "context"

type userContextKey struct{}

type user struct {
	id    string
	roles []string
}

// ContextWithUser attaches the authenticated user and roles to the context.
func ContextWithUser(ctx context.Context, userID string, roles []string) context.Context {
	return context.WithValue(ctx, userContextKey{}, &user{id: userID, roles: roles})
}

// UserIDFromContext extracts the authenticated user id if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	u, ok := ctx.Value(userContextKey{}).(*user)
	if !ok || u == nil || u.id == "" {
		return "", false
	}
	return u.id, true
}

// RolesFromContext extracts the authenticated user's roles.
func RolesFromContext(ctx context.Context) ([]string, bool) {
	if ctx == nil {
		return nil, false
	}
	u, ok := ctx.Value(userContextKey{}).(*user)
	if !ok || u == nil {
		return nil, false
	}
	return u.roles, true
}

// HasRole reports whether the context user carries the role.
func HasRole(ctx context.Context, role string) bool {
	roles, ok := RolesFromContext(ctx)
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
