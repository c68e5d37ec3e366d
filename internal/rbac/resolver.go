package rbac

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type cacheEntry struct {
	perms    []*Permission
	storedAt time.Time
}

// Resolver derives a user's effective permission set: the union of all role
// grants, deduplicated by id and filtered to active entries. Resolved sets are
// cached per user with a TTL; invalidation is explicit.
type Resolver struct {
	store      Store
	ttl        time.Duration
	maxEntries int
	log        *zap.Logger
	now        func() time.Time

	mu    sync.Mutex
	cache map[int64]*cacheEntry
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverClock overrides the time source in tests.
func WithResolverClock(fn func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewResolver constructs a Resolver. Non-positive ttl or maxEntries fall back
// to one hour and 1000 entries.
func NewResolver(store Store, ttl time.Duration, maxEntries int, log *zap.Logger, opts ...ResolverOption) *Resolver {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Resolver{
		store:      store,
		ttl:        ttl,
		maxEntries: maxEntries,
		log:        log.Named("resolver"),
		now:        time.Now,
		cache:      make(map[int64]*cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UserPermissions returns the user's effective permission set, from cache when
// fresh.
func (r *Resolver) UserPermissions(ctx context.Context, userID int64) ([]*Permission, error) {
	now := r.now()

	r.mu.Lock()
	if e, ok := r.cache[userID]; ok && now.Sub(e.storedAt) < r.ttl {
		perms := e.perms
		r.mu.Unlock()
		return perms, nil
	}
	r.mu.Unlock()

	perms, err := r.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if len(r.cache) >= r.maxEntries {
		r.evictOldest()
	}
	r.cache[userID] = &cacheEntry{perms: perms, storedAt: now}
	r.mu.Unlock()
	return perms, nil
}

func (r *Resolver) resolve(ctx context.Context, userID int64) ([]*Permission, error) {
	roleIDs, err := r.store.Users().RoleIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{})
	var union []*Permission
	for _, rid := range roleIDs {
		perms, err := r.store.Permissions().ForRole(ctx, rid)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			if !p.IsActive {
				continue
			}
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			union = append(union, p)
		}
	}
	sort.Slice(union, func(i, j int) bool { return union[i].ID < union[j].ID })
	return union, nil
}

// evictOldest drops the oldest 20% of entries (at least one). Caller holds the
// mutex.
func (r *Resolver) evictOldest() {
	type aged struct {
		userID   int64
		storedAt time.Time
	}
	entries := make([]aged, 0, len(r.cache))
	for id, e := range r.cache {
		entries = append(entries, aged{userID: id, storedAt: e.storedAt})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].storedAt.Before(entries[j].storedAt) })
	drop := len(entries) / 5
	if drop < 1 {
		drop = 1
	}
	for _, e := range entries[:drop] {
		delete(r.cache, e.userID)
	}
}

// CheckUserPermission reports whether the user's effective set contains the
// code.
func (r *Resolver) CheckUserPermission(ctx context.Context, userID int64, code string) (bool, error) {
	perms, err := r.UserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p.Code == code {
			return true, nil
		}
	}
	return false, nil
}

// CheckUserAPIPermission reports whether the user's effective set grants the
// endpoint, either through the bound api_path/api_method pair or through the
// deterministic action code.
func (r *Resolver) CheckUserAPIPermission(ctx context.Context, userID int64, path, method string) (bool, error) {
	perms, err := r.UserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	code := GeneratePermissionCode(PermissionAction, path, method)
	for _, p := range perms {
		if p.APIPath == path && p.APIMethod == method {
			return true, nil
		}
		if p.Code == code {
			return true, nil
		}
	}
	return false, nil
}

// RolePermissionsTree renders one role's active permissions as a two-level
// tree.
func (r *Resolver) RolePermissionsTree(ctx context.Context, roleID int64) ([]*Node, error) {
	perms, err := r.store.Permissions().ForRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	active := perms[:0:0]
	for _, p := range perms {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return BuildTree(active), nil
}

// InvalidateUser drops one user's cached set.
func (r *Resolver) InvalidateUser(userID int64) {
	r.mu.Lock()
	delete(r.cache, userID)
	r.mu.Unlock()
}

// InvalidateAll drops every cached set. Role-permission edits call this; there
// is no reverse role→user index to invalidate more narrowly.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	r.cache = make(map[int64]*cacheEntry)
	r.mu.Unlock()
}

// CacheLen reports the number of cached users.
func (r *Resolver) CacheLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
