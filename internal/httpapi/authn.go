package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"adminhub.org/internal/audit"
	"adminhub.org/internal/auth"
	"adminhub.org/internal/rbac"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

type userContextKey struct{}

func contextWithUser(ctx context.Context, u *rbac.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

func userFromContext(ctx context.Context) (*rbac.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*rbac.User)
	return u, ok
}

// withAuth authenticates every matched route that is not public, publishes
// the user into the context and enforces the route's permission unless the
// route or the user is exempt.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		info, known := a.currentRoute(r)
		if known && info.Public {
			next.ServeHTTP(w, r)
			return
		}
		if !known {
			// Unregistered paths under /api are never served anonymously.
			if strings.HasPrefix(r.URL.Path, "/api/") {
				writeError(w, r, http.StatusUnauthorized, "missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		user, err := a.guard.Authenticate(r.Context(), token, audit.ClientIP(r))
		if err != nil {
			handleAuthError(w, r, err)
			return
		}

		if !info.SkipPerm && !user.IsSuperuser {
			ok, err := a.resolver.CheckUserAPIPermission(r.Context(), user.ID, info.Path, info.Method)
			if err != nil {
				a.log.Error("permission check failed",
					zap.Int64("user_id", user.ID),
					zap.String("path", info.Path),
					zap.Error(err))
				writeError(w, r, http.StatusInternalServerError, "permission check failed")
				return
			}
			if !ok {
				writeError(w, r, http.StatusForbidden, "权限不足")
				return
			}
		}

		ctx := auth.ContextWithUserID(r.Context(), user.ID)
		ctx = auth.ContextWithToken(ctx, token)
		ctx = contextWithUser(ctx, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) currentRoute(r *http.Request) (routeInfo, bool) {
	route := mux.CurrentRoute(r)
	if route == nil {
		return routeInfo{}, false
	}
	info, ok := a.routes[route.GetName()]
	return info, ok
}

// requireSuperuser gates the admin-only endpoints.
func (a *API) requireSuperuser(w http.ResponseWriter, r *http.Request) (*rbac.User, bool) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return nil, false
	}
	if !user.IsSuperuser {
		writeError(w, r, http.StatusForbidden, "权限不足")
		return nil, false
	}
	return user, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
