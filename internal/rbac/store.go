package rbac

import (
	"context"
	"time"
)

// Store describes persistence operations required by the RBAC subsystem.
type Store interface {
	Users() UserStore
	Roles() RoleStore
	Permissions() PermissionStore
	Routes() RouteStore
}

// UserStore manages accounts and their role memberships.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id int64) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	// First returns the lowest-id user. Serves the debug bypass token only.
	First(ctx context.Context) (*User, error)
	List(ctx context.Context, usernameFilter string, page, pageSize int) ([]*User, int, error)
	Update(ctx context.Context, u *User) error
	// Delete removes the account; role links go with it. Callers enforce the
	// last-superuser rule before calling.
	Delete(ctx context.Context, id int64) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	// ActiveSuperuserCount counts enabled superuser accounts.
	ActiveSuperuserCount(ctx context.Context) (int, error)
	RoleIDs(ctx context.Context, userID int64) ([]int64, error)
	SetRoles(ctx context.Context, userID int64, roleIDs []int64) error
}

// RoleStore manages roles.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id int64) (*Role, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	List(ctx context.Context, nameFilter string, page, pageSize int) ([]*Role, int, error)
	Update(ctx context.Context, role *Role) error
	// Delete removes the role and its role-permission links. Users holding
	// the role simply lose its grants.
	Delete(ctx context.Context, id int64) error
	UserCount(ctx context.Context, roleID int64) (int, error)
}

// PermissionStore manages the permission catalog and role links.
type PermissionStore interface {
	Create(ctx context.Context, p *Permission) error
	Find(ctx context.Context, id int64) (*Permission, error)
	FindByCode(ctx context.Context, code string) (*Permission, error)
	UpdateParent(ctx context.Context, id, parentID int64) error
	DeleteByCode(ctx context.Context, code string) error
	ForRole(ctx context.Context, roleID int64) ([]*Permission, error)
	SetForRole(ctx context.Context, roleID int64, permissionIDs []int64) error
}

// RouteStore manages discovered API route records.
type RouteStore interface {
	List(ctx context.Context) ([]*APIRoute, error)
	FindByPathMethod(ctx context.Context, path, method string) (*APIRoute, error)
	Create(ctx context.Context, route *APIRoute) error
	Update(ctx context.Context, route *APIRoute) error
	Delete(ctx context.Context, id int64) error
}
