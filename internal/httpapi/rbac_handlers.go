package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"adminhub.org/internal/rbac"
)

type roleRequest struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
	Desc string `json:"desc"`
}

type rolePermissionsRequest struct {
	RoleID        int64   `json:"role_id"`
	PermissionIDs []int64 `json:"permission_ids"`
}

type userRolesRequest struct {
	UserID  int64   `json:"user_id"`
	RoleIDs []int64 `json:"role_ids"`
}

type roleWithStats struct {
	*rbac.Role
	UserCount int `json:"user_count"`
}

func (a *API) handleRoleList(w http.ResponseWriter, r *http.Request) {
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

	roles, total, err := a.store.Roles().List(r.Context(), r.URL.Query().Get("role_name"), page, pageSize)
	if err != nil {
		a.log.Error("role list failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "role list failed")
		return
	}
	data := make([]roleWithStats, 0, len(roles))
	for _, role := range roles {
		n, err := a.store.Roles().UserCount(r.Context(), role.ID)
		if err != nil {
			a.log.Error("role user count failed", zap.Int64("role_id", role.ID), zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "role list failed")
			return
		}
		data = append(data, roleWithStats{Role: role, UserCount: n})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":      data,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (a *API) handleRoleGet(w http.ResponseWriter, r *http.Request) {
	id, err := queryInt64(r, "role_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.store.Roles().Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err, a.log, "role get failed")
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleRoleCreate(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	exists, err := a.store.Roles().ExistsByName(r.Context(), req.Name)
	if err != nil {
		handleStoreError(w, r, err, a.log, "role create failed")
		return
	}
	if exists {
		writeError(w, r, http.StatusUnprocessableEntity, "角色名称已存在")
		return
	}
	role := &rbac.Role{Name: req.Name, Desc: req.Desc}
	if err := a.store.Roles().Create(r.Context(), role); err != nil {
		handleStoreError(w, r, err, a.log, "role create failed")
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleRoleUpdate(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID <= 0 {
		writeError(w, r, http.StatusBadRequest, "id is required")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	role := &rbac.Role{ID: req.ID, Name: req.Name, Desc: req.Desc}
	if err := a.store.Roles().Update(r.Context(), role); err != nil {
		handleStoreError(w, r, err, a.log, "role update failed")
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleRoleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := queryInt64(r, "role_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.store.Roles().Delete(r.Context(), id); err != nil {
		handleStoreError(w, r, err, a.log, "role delete failed")
		return
	}
	// Every member of the role just lost its grants.
	a.resolver.InvalidateAll()
	writeJSON(w, http.StatusOK, map[string]any{"msg": "deleted"})
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := queryInt64(r, "role_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tree, err := a.resolver.RolePermissionsTree(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err, a.log, "role permissions failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": tree})
}

func (a *API) handleSetRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req rolePermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RoleID <= 0 {
		writeError(w, r, http.StatusBadRequest, "role_id is required")
		return
	}
	if _, err := a.store.Roles().Find(r.Context(), req.RoleID); err != nil {
		handleStoreError(w, r, err, a.log, "role permissions update failed")
		return
	}
	if err := a.store.Permissions().SetForRole(r.Context(), req.RoleID, req.PermissionIDs); err != nil {
		handleStoreError(w, r, err, a.log, "role permissions update failed")
		return
	}
	a.resolver.InvalidateAll()
	writeJSON(w, http.StatusOK, map[string]any{"msg": "updated"})
}

func (a *API) handleSetUserRoles(w http.ResponseWriter, r *http.Request) {
	var req userRolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID <= 0 {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}
	if _, err := a.store.Users().Find(r.Context(), req.UserID); err != nil {
		handleStoreError(w, r, err, a.log, "user roles update failed")
		return
	}
	if err := a.store.Users().SetRoles(r.Context(), req.UserID, req.RoleIDs); err != nil {
		handleStoreError(w, r, err, a.log, "user roles update failed")
		return
	}
	a.resolver.InvalidateUser(req.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"msg": "updated"})
}

func handleStoreError(w http.ResponseWriter, r *http.Request, err error, log *zap.Logger, msg string) {
	switch {
	case errors.Is(err, rbac.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, rbac.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "resource already exists")
	default:
		log.Error(msg, zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, msg)
	}
}
