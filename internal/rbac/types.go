package rbac

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("rbac: not found")
	ErrAlreadyExists = errors.New("rbac: already exists")
)

// PermissionType is the tier of a permission node.
type PermissionType string

const (
	// PermissionModule is a top-level menu bucket (parent_id is always 0).
	PermissionModule PermissionType = "module"
	// PermissionFeature is a submenu under a module.
	PermissionFeature PermissionType = "feature"
	// PermissionAction binds directly to a reachable API endpoint.
	PermissionAction PermissionType = "action"
)

// User is an admin-backend account.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Nickname     string     `json:"nickname,omitempty"`
	Email        string     `json:"email,omitempty"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	IsSuperuser  bool       `json:"is_superuser"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Role groups permissions. Deleting a role cascades to its permission links,
// not to its users.
type Role struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Desc      string    `json:"desc,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Permission is one node of the module→feature→action hierarchy. The graph is
// a rooted forest: a feature's parent is a module, an action's parent is a
// feature, and modules have ParentID 0.
type Permission struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Code        string         `json:"code"`
	Description string         `json:"description,omitempty"`
	Type        PermissionType `json:"permission_type"`
	ParentID    int64          `json:"parent_id"`
	Order       int            `json:"order"`
	IsActive    bool           `json:"is_active"`
	// APIPath/APIMethod are set only on action permissions that bind to a
	// reachable endpoint.
	APIPath   string    `json:"api_path,omitempty"`
	APIMethod string    `json:"api_method,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// APIRoute is one discovered authenticated endpoint.
type APIRoute struct {
	ID        int64     `json:"id"`
	Path      string    `json:"path"`
	Method    string    `json:"method"`
	Summary   string    `json:"summary"`
	Tags      string    `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
