package magiclink

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}
var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithSessionContext sets the SessionObject in the given context
func WithSessionContext(r context.Context, session *SessionObject) context.Context {
	return context.WithValue(r, sessionCtxKey, session)
}

// SessionFromContext extracts the SessionObject from the standard context
func SessionFromContext(ctx context.Context) (*SessionObject, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(*SessionObject)
	return raw, ok
}

// GetRouterSession extracts the SessionObject from the router context
func GetRouterSession(ctx router.Context, key string) (*SessionObject, bool) {
	if key == "" {
		key = SessionKeyVerified
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	session, ok := raw.(*SessionObject)
	return session, ok
}

// IsAdmin is a convenience check against the session stored in the standard
// context. Degraded sessions never pass.
func IsAdmin(ctx context.Context) bool {
	session, ok := SessionFromContext(ctx)
	if !ok || session == nil {
		return false
	}
	return session.Verified && session.Role.IsAdmin()
}

// IsAdminFromRouter is the router context variant of IsAdmin.
func IsAdminFromRouter(ctx router.Context) bool {
	session, ok := GetRouterSession(ctx, "")
	if !ok || session == nil {
		return false
	}
	return session.Verified && session.Role.IsAdmin()
}
