package auth

import "context"

type userIDContextKey struct{}
type tokenContextKey struct{}

// ContextWithUserID publishes the authenticated user id for downstream
// handlers. Zero means anonymous.
func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext extracts the authenticated user id.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	v, ok := ctx.Value(userIDContextKey{}).(int64)
	if !ok || v == 0 {
		return 0, false
	}
	return v, true
}

// ContextWithToken stores the raw bearer token inside the context so logout
// can revoke exactly the token the request presented.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
