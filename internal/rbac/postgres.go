package rbac

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// SQLStore implements Store over PostgreSQL via database/sql.
type SQLStore struct {
	db          *sql.DB
	users       *userStore
	roles       *roleStore
	permissions *permStore
	routes      *routeStore
}

var _ Store = (*SQLStore)(nil)

// OpenStore opens a pooled connection and wraps it in a SQLStore.
func OpenStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewSQLStore(db), nil
}

// NewSQLStore wraps an existing handle. Tests pass a sqlmock handle here.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		db:          db,
		users:       &userStore{db: db},
		roles:       &roleStore{db: db},
		permissions: &permStore{db: db},
		routes:      &routeStore{db: db},
	}
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Users() UserStore             { return s.users }
func (s *SQLStore) Roles() RoleStore             { return s.roles }
func (s *SQLStore) Permissions() PermissionStore { return s.permissions }
func (s *SQLStore) Routes() RouteStore           { return s.routes }

// --- users ---

type userStore struct {
	db *sql.DB
}

const userColumns = `id, username, nickname, email, password_hash, is_active, is_superuser, last_login, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.Username, &u.Nickname, &u.Email, &u.PasswordHash,
		&u.IsActive, &u.IsSuperuser, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *User) error {
	err := s.db.QueryRowContext(ctx, `
		insert into users(username, nickname, email, password_hash, is_active, is_superuser)
		values ($1,$2,$3,$4,$5,$6)
		returning id, created_at, updated_at
	`, u.Username, u.Nickname, u.Email, u.PasswordHash, u.IsActive, u.IsSuperuser).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrAlreadyExists
	}
	return err
}

func (s *userStore) Find(ctx context.Context, id int64) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id))
}

func (s *userStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where username=$1`, username))
}

func (s *userStore) First(ctx context.Context) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users order by id asc limit 1`))
}

func (s *userStore) List(ctx context.Context, usernameFilter string, page, pageSize int) ([]*User, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10
	}
	pattern := "%" + usernameFilter + "%"

	var total int
	if err := s.db.QueryRowContext(ctx, `
		select count(*) from users where username ilike $1 or nickname ilike $1
	`, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+`
		from users
		where username ilike $1 or nickname ilike $1
		order by id asc
		limit $2 offset $3
	`, pattern, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, u)
	}
	return res, total, rows.Err()
}

func (s *userStore) Update(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set username=$2, nickname=$3, email=$4, is_active=$5, is_superuser=$6, updated_at=now()
		where id=$1
	`, u.ID, u.Username, u.Nickname, u.Email, u.IsActive, u.IsSuperuser)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrAlreadyExists
		}
		return err
	}
	return requireRow(res)
}

func (s *userStore) Delete(ctx context.Context, id int64) error {
	// user_roles rows go with the account via the FK cascade.
	res, err := s.db.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) ActiveSuperuserCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from users where is_active and is_superuser
	`).Scan(&n)
	return n, err
}

func (s *userStore) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `update users set last_login=$2, updated_at=now() where id=$1`, id, at)
	return err
}

func (s *userStore) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `update users set password_hash=$2, updated_at=now() where id=$1`, id, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) RoleIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `select role_id from user_roles where user_id=$1 order by role_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *userStore) SetRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id=$1`, userID); err != nil {
		return err
	}
	for _, rid := range roleIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles(user_id, role_id) values ($1,$2) on conflict do nothing
		`, userID, rid); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// --- roles ---

type roleStore struct {
	db *sql.DB
}

func (s *roleStore) Create(ctx context.Context, role *Role) error {
	err := s.db.QueryRowContext(ctx, `
		insert into roles(name, description) values ($1,$2)
		returning id, created_at, updated_at
	`, role.Name, role.Desc).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrAlreadyExists
	}
	return err
}

func (s *roleStore) Find(ctx context.Context, id int64) (*Role, error) {
	var r Role
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, created_at, updated_at from roles where id=$1
	`, id).Scan(&r.ID, &r.Name, &r.Desc, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *roleStore) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from roles where name=$1)`, name).Scan(&exists)
	return exists, err
}

func (s *roleStore) List(ctx context.Context, nameFilter string, page, pageSize int) ([]*Role, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10
	}
	pattern := "%" + nameFilter + "%"

	var total int
	if err := s.db.QueryRowContext(ctx, `
		select count(*) from roles where name ilike $1
	`, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, created_at, updated_at
		from roles
		where name ilike $1
		order by id asc
		limit $2 offset $3
	`, pattern, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []*Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Desc, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, 0, err
		}
		res = append(res, &r)
	}
	return res, total, rows.Err()
}

func (s *roleStore) Update(ctx context.Context, role *Role) error {
	res, err := s.db.ExecContext(ctx, `
		update roles set name=$2, description=$3, updated_at=now() where id=$1
	`, role.ID, role.Name, role.Desc)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrAlreadyExists
		}
		return err
	}
	return requireRow(res)
}

func (s *roleStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from user_roles where role_id=$1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from roles where id=$1`, id)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *roleStore) UserCount(ctx context.Context, roleID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from user_roles where role_id=$1`, roleID).Scan(&n)
	return n, err
}

// --- permissions ---

type permStore struct {
	db *sql.DB
}

const permColumns = `id, name, code, description, permission_type, parent_id, sort_order, is_active, coalesce(api_path,''), coalesce(api_method,''), created_at, updated_at`

func scanPermission(row interface{ Scan(...any) error }) (*Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Name, &p.Code, &p.Description, &p.Type, &p.ParentID,
		&p.Order, &p.IsActive, &p.APIPath, &p.APIMethod, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *permStore) Create(ctx context.Context, p *Permission) error {
	err := s.db.QueryRowContext(ctx, `
		insert into permissions(name, code, description, permission_type, parent_id, sort_order, is_active, api_path, api_method)
		values ($1,$2,$3,$4,$5,$6,$7,nullif($8,''),nullif($9,''))
		returning id, created_at, updated_at
	`, p.Name, p.Code, p.Description, p.Type, p.ParentID, p.Order, p.IsActive, p.APIPath, p.APIMethod).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrAlreadyExists
	}
	return err
}

func (s *permStore) Find(ctx context.Context, id int64) (*Permission, error) {
	return scanPermission(s.db.QueryRowContext(ctx, `select `+permColumns+` from permissions where id=$1`, id))
}

func (s *permStore) FindByCode(ctx context.Context, code string) (*Permission, error) {
	return scanPermission(s.db.QueryRowContext(ctx, `select `+permColumns+` from permissions where code=$1`, code))
}

func (s *permStore) UpdateParent(ctx context.Context, id, parentID int64) error {
	res, err := s.db.ExecContext(ctx, `
		update permissions set parent_id=$2, updated_at=now() where id=$1
	`, id, parentID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *permStore) DeleteByCode(ctx context.Context, code string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		delete from role_permissions where permission_id in (select id from permissions where code=$1)
	`, code); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from permissions where code=$1`, code); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *permStore) ForRole(ctx context.Context, roleID int64) ([]*Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+permColumns+`
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id=$1
		order by p.id asc
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *permStore) SetForRole(ctx context.Context, roleID int64, permissionIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id=$1`, roleID); err != nil {
		return err
	}
	for _, pid := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions(role_id, permission_id) values ($1,$2) on conflict do nothing
		`, roleID, pid); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// --- routes ---

type routeStore struct {
	db *sql.DB
}

func (s *routeStore) List(ctx context.Context) ([]*APIRoute, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, path, method, summary, tags, created_at, updated_at
		from api_routes order by id asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*APIRoute
	for rows.Next() {
		var r APIRoute
		if err := rows.Scan(&r.ID, &r.Path, &r.Method, &r.Summary, &r.Tags, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, &r)
	}
	return res, rows.Err()
}

func (s *routeStore) FindByPathMethod(ctx context.Context, path, method string) (*APIRoute, error) {
	var r APIRoute
	err := s.db.QueryRowContext(ctx, `
		select id, path, method, summary, tags, created_at, updated_at
		from api_routes where path=$1 and method=$2
	`, path, method).Scan(&r.ID, &r.Path, &r.Method, &r.Summary, &r.Tags, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *routeStore) Create(ctx context.Context, route *APIRoute) error {
	err := s.db.QueryRowContext(ctx, `
		insert into api_routes(path, method, summary, tags) values ($1,$2,$3,$4)
		returning id, created_at, updated_at
	`, route.Path, route.Method, route.Summary, route.Tags).
		Scan(&route.ID, &route.CreatedAt, &route.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrAlreadyExists
	}
	return err
}

func (s *routeStore) Update(ctx context.Context, route *APIRoute) error {
	res, err := s.db.ExecContext(ctx, `
		update api_routes set summary=$2, tags=$3, updated_at=now() where id=$1
	`, route.ID, route.Summary, route.Tags)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *routeStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from api_routes where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
