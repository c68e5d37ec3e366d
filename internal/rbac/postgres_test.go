package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(db), mock
}

func TestUserFind(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "username", "nickname", "email", "password_hash",
		"is_active", "is_superuser", "last_login", "created_at", "updated_at",
	}).AddRow(int64(1), "alice", "Alice", "alice@example.com", "hash",
		true, false, nil, now, now)
	mock.ExpectQuery(`select .+ from users where id=\$1`).WithArgs(int64(1)).WillReturnRows(rows)

	u, err := store.Users().Find(context.Background(), 1)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if u.Username != "alice" || u.LastLogin != nil {
		t.Fatalf("unexpected user %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUserFindNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select .+ from users where id=\$1`).WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.Users().Find(context.Background(), 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserUpdatePasswordMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`update users set password_hash=\$2`).WithArgs(int64(404), "hash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Users().UpdatePassword(context.Background(), 404, "hash"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserSetRolesTx(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`delete from user_roles where user_id=\$1`).WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into user_roles`).WithArgs(int64(1), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into user_roles`).WithArgs(int64(1), int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.Users().SetRoles(context.Background(), 1, []int64{10, 11}); err != nil {
		t.Fatalf("SetRoles: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUserList(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`select count\(\*\) from users`).WithArgs("%ali%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`select .+ from users where username ilike \$1 or nickname ilike \$1`).
		WithArgs("%ali%", 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "username", "nickname", "email", "password_hash",
			"is_active", "is_superuser", "last_login", "created_at", "updated_at",
		}).AddRow(int64(1), "alice", "Alice", "", "hash", true, false, nil, now, now))

	users, total, err := store.Users().List(context.Background(), "ali", 1, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(users) != 1 || users[0].Username != "alice" {
		t.Fatalf("unexpected page: total=%d users=%+v", total, users)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUserUpdateDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`update users`).
		WithArgs(int64(1), "root", "", "", true, false).
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "users_username_key"`))

	err := store.Users().Update(context.Background(), &User{ID: 1, Username: "root", IsActive: true})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestUserDeleteMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`delete from users where id=\$1`).WithArgs(int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Users().Delete(context.Background(), 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActiveSuperuserCount(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select count\(\*\) from users where is_active and is_superuser`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := store.Users().ActiveSuperuserCount(context.Background())
	if err != nil {
		t.Fatalf("ActiveSuperuserCount: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
}

func TestRoleCreateDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`insert into roles`).WithArgs("管理员", "").
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "roles_name_key"`))

	err := store.Roles().Create(context.Background(), &Role{Name: "管理员"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestRoleList(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`select count\(\*\) from roles`).WithArgs("%admin%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(`select id, name, description, created_at, updated_at`).
		WithArgs("%admin%", 10, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}).
			AddRow(int64(1), "admin", "", now, now).
			AddRow(int64(2), "admin-ro", "", now, now))

	roles, total, err := store.Roles().List(context.Background(), "admin", 2, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 12 || len(roles) != 2 {
		t.Fatalf("unexpected page: total=%d len=%d", total, len(roles))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRoleDeleteCascades(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`delete from role_permissions where role_id=\$1`).WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`delete from user_roles where role_id=\$1`).WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`delete from roles where id=\$1`).WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.Roles().Delete(context.Background(), 5); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRoleDeleteMissingRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`delete from role_permissions where role_id=\$1`).WithArgs(int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`delete from user_roles where role_id=\$1`).WithArgs(int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`delete from roles where id=\$1`).WithArgs(int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if err := store.Roles().Delete(context.Background(), 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPermissionFindByCode(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "name", "code", "description", "permission_type", "parent_id",
		"sort_order", "is_active", "api_path", "api_method", "created_at", "updated_at",
	}).AddRow(int64(7), "查询用户", "action.user.list.get", "", "action", int64(3),
		0, true, "/api/v1/user/list", "GET", now, now)
	mock.ExpectQuery(`select .+ from permissions where code=\$1`).
		WithArgs("action.user.list.get").WillReturnRows(rows)

	p, err := store.Permissions().FindByCode(context.Background(), "action.user.list.get")
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if p.Type != PermissionAction || p.APIPath != "/api/v1/user/list" {
		t.Fatalf("unexpected permission %+v", p)
	}
}

func TestPermissionSetForRoleTx(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`delete from role_permissions where role_id=\$1`).WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into role_permissions`).WithArgs(int64(5), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.Permissions().SetForRole(context.Background(), 5, []int64{7}); err != nil {
		t.Fatalf("SetForRole: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRouteFindByPathMethod(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`from api_routes where path=\$1 and method=\$2`).
		WithArgs("/api/v1/role/list", "GET").
		WillReturnRows(sqlmock.NewRows([]string{"id", "path", "method", "summary", "tags", "created_at", "updated_at"}).
			AddRow(int64(1), "/api/v1/role/list", "GET", "查看角色列表", "role", now, now))

	route, err := store.Routes().FindByPathMethod(context.Background(), "/api/v1/role/list", "GET")
	if err != nil {
		t.Fatalf("FindByPathMethod: %v", err)
	}
	if route.Summary != "查看角色列表" {
		t.Fatalf("unexpected route %+v", route)
	}
}
