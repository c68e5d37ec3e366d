package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"adminhub.org/internal/auth"
	"adminhub.org/internal/rbac"
)

type userRequest struct {
	ID          int64   `json:"id,omitempty"`
	Username    string  `json:"username"`
	Nickname    string  `json:"nickname"`
	Email       string  `json:"email"`
	Password    string  `json:"password,omitempty"`
	IsActive    bool    `json:"is_active"`
	IsSuperuser bool    `json:"is_superuser"`
	RoleIDs     []int64 `json:"role_ids"`
}

type userWithRoles struct {
	*rbac.User
	RoleIDs []int64 `json:"role_ids"`
}

func (a *API) handleUserList(w http.ResponseWriter, r *http.Request) {
	page, err := parsePositiveInt(r.URL.Query().Get("page"), 1, 1, 10000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "page "+err.Error())
		return
	}
	pageSize, err := parsePositiveInt(r.URL.Query().Get("page_size"), 10, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "page_size "+err.Error())
		return
	}

	users, total, err := a.store.Users().List(r.Context(), r.URL.Query().Get("username"), page, pageSize)
	if err != nil {
		a.log.Error("user list failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "user list failed")
		return
	}
	data := make([]userWithRoles, 0, len(users))
	for _, u := range users {
		roleIDs, err := a.store.Users().RoleIDs(r.Context(), u.ID)
		if err != nil {
			a.log.Error("user roles lookup failed", zap.Int64("user_id", u.ID), zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "user list failed")
			return
		}
		data = append(data, userWithRoles{User: u, RoleIDs: roleIDs})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":      data,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (a *API) handleUserGet(w http.ResponseWriter, r *http.Request) {
	id, err := queryInt64(r, "user_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.store.Users().Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err, a.log, "user get failed")
		return
	}
	roleIDs, err := a.store.Users().RoleIDs(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err, a.log, "user get failed")
		return
	}
	writeJSON(w, http.StatusOK, userWithRoles{User: user, RoleIDs: roleIDs})
}

func (a *API) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}
	if err := auth.ValidatePasswordStrength(req.Password, a.cfg.Auth.PasswordMinLength); err != nil {
		handleAuthError(w, r, err)
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "password hash failed")
		return
	}

	user := &rbac.User{
		Username:     req.Username,
		Nickname:     req.Nickname,
		Email:        req.Email,
		PasswordHash: hash,
		IsActive:     req.IsActive,
		IsSuperuser:  req.IsSuperuser,
	}
	if err := a.store.Users().Create(r.Context(), user); err != nil {
		if errors.Is(err, rbac.ErrAlreadyExists) {
			writeError(w, r, http.StatusUnprocessableEntity, "用户名已存在")
			return
		}
		handleStoreError(w, r, err, a.log, "user create failed")
		return
	}
	if len(req.RoleIDs) > 0 {
		if err := a.store.Users().SetRoles(r.Context(), user.ID, req.RoleIDs); err != nil {
			handleStoreError(w, r, err, a.log, "user create failed")
			return
		}
	}
	writeJSON(w, http.StatusCreated, userWithRoles{User: user, RoleIDs: req.RoleIDs})
}

func (a *API) handleUserUpdate(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID <= 0 {
		writeError(w, r, http.StatusBadRequest, "id is required")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, r, http.StatusBadRequest, "username is required")
		return
	}

	existing, err := a.store.Users().Find(r.Context(), req.ID)
	if err != nil {
		handleStoreError(w, r, err, a.log, "user update failed")
		return
	}
	// Demoting or disabling the last enabled superuser would lock everyone
	// out of the admin surface.
	losesSuperuser := existing.IsActive && existing.IsSuperuser &&
		(!req.IsActive || !req.IsSuperuser)
	if losesSuperuser {
		if ok := a.ensureNotLastSuperuser(w, r); !ok {
			return
		}
	}

	existing.Username = req.Username
	existing.Nickname = req.Nickname
	existing.Email = req.Email
	existing.IsActive = req.IsActive
	existing.IsSuperuser = req.IsSuperuser
	if err := a.store.Users().Update(r.Context(), existing); err != nil {
		if errors.Is(err, rbac.ErrAlreadyExists) {
			writeError(w, r, http.StatusUnprocessableEntity, "用户名已存在")
			return
		}
		handleStoreError(w, r, err, a.log, "user update failed")
		return
	}
	if req.RoleIDs != nil {
		if err := a.store.Users().SetRoles(r.Context(), existing.ID, req.RoleIDs); err != nil {
			handleStoreError(w, r, err, a.log, "user update failed")
			return
		}
	}
	a.resolver.InvalidateUser(existing.ID)
	writeJSON(w, http.StatusOK, userWithRoles{User: existing, RoleIDs: req.RoleIDs})
}

func (a *API) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	id, err := queryInt64(r, "user_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target, err := a.store.Users().Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err, a.log, "user delete failed")
		return
	}
	if target.IsActive && target.IsSuperuser {
		if ok := a.ensureNotLastSuperuser(w, r); !ok {
			return
		}
	}
	if err := a.store.Users().Delete(r.Context(), id); err != nil {
		handleStoreError(w, r, err, a.log, "user delete failed")
		return
	}
	a.resolver.InvalidateUser(id)
	writeJSON(w, http.StatusOK, map[string]any{"msg": "deleted"})
}

// ensureNotLastSuperuser rejects the request when removing one enabled
// superuser would leave none. Reports whether the caller may proceed.
func (a *API) ensureNotLastSuperuser(w http.ResponseWriter, r *http.Request) bool {
	n, err := a.store.Users().ActiveSuperuserCount(r.Context())
	if err != nil {
		a.log.Error("superuser count failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "superuser count failed")
		return false
	}
	if n <= 1 {
		writeError(w, r, http.StatusUnprocessableEntity, "系统至少保留一个启用的超级管理员")
		return false
	}
	return true
}
