package httpapi

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"adminhub.org/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Username     string    `json:"username"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleAccessToken(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := a.guard.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	access, expiresAt, refresh, err := a.guard.IssueTokens(user)
	if err != nil {
		a.log.Error("token issue failed", zap.Int64("user_id", user.ID), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		Username:     user.Username,
	})
}

func (a *API) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}

	access, expiresAt, err := a.guard.RefreshAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: access,
		ExpiresAt:   expiresAt,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	token, _ := auth.TokenFromContext(r.Context())
	a.guard.Logout(token, user.ID)
	writeJSON(w, http.StatusOK, map[string]any{"msg": "logged out"})
}

func (a *API) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleUserPermissions(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	perms, err := a.resolver.UserPermissions(r.Context(), user.ID)
	if err != nil {
		a.log.Error("permission resolve failed", zap.Int64("user_id", user.ID), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "permission resolve failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": perms, "total": len(perms)})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !auth.VerifyPassword(user.PasswordHash, req.OldPassword) {
		handleAuthError(w, r, auth.ErrBadCredentials)
		return
	}
	if err := auth.ValidatePasswordStrength(req.NewPassword, a.cfg.Auth.PasswordMinLength); err != nil {
		handleAuthError(w, r, err)
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "password hash failed")
		return
	}
	if err := a.store.Users().UpdatePassword(r.Context(), user.ID, hash); err != nil {
		a.log.Error("password update failed", zap.Int64("user_id", user.ID), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "password update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"msg": "password updated"})
}
