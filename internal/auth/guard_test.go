package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"adminhub.org/internal/rbac"
)

type fakeDirectory struct {
	users     map[int64]*rbac.User
	lastLogin map[int64]time.Time
}

func newFakeDirectory(users ...*rbac.User) *fakeDirectory {
	d := &fakeDirectory{users: make(map[int64]*rbac.User), lastLogin: make(map[int64]time.Time)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *fakeDirectory) Find(_ context.Context, id int64) (*rbac.User, error) {
	if u, ok := d.users[id]; ok {
		return u, nil
	}
	return nil, rbac.ErrNotFound
}

func (d *fakeDirectory) FindByUsername(_ context.Context, username string) (*rbac.User, error) {
	for _, u := range d.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, rbac.ErrNotFound
}

func (d *fakeDirectory) First(_ context.Context) (*rbac.User, error) {
	var first *rbac.User
	for _, u := range d.users {
		if first == nil || u.ID < first.ID {
			first = u
		}
	}
	if first == nil {
		return nil, rbac.ErrNotFound
	}
	return first, nil
}

func (d *fakeDirectory) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	d.lastLogin[id] = at
	return nil
}

func testGuard(t *testing.T, dir UserDirectory, opts ...GuardOption) *Guard {
	t.Helper()
	iss, err := NewTokenIssuer("test-secret", "HS256")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	limiter := NewFixedWindowLimiter(true, 60, time.Minute)
	return NewGuard(iss, dir, limiter, nil, opts...)
}

func accessTokenFor(t *testing.T, g *Guard, u *rbac.User) string {
	t.Helper()
	token, _, err := g.issuer.IssueAccessToken(u.ID, u.Username, u.IsSuperuser)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	return token
}

func TestAuthenticateResolvesActiveUser(t *testing.T) {
	alice := &rbac.User{ID: 1, Username: "alice", IsActive: true}
	g := testGuard(t, newFakeDirectory(alice))
	token := accessTokenFor(t, g, alice)

	user, err := g.Authenticate(context.Background(), token, "10.0.0.1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.ID != 1 {
		t.Fatalf("unexpected user %d", user.ID)
	}
}

func TestAuthenticateUnknownUser(t *testing.T) {
	ghost := &rbac.User{ID: 99, Username: "ghost", IsActive: true}
	g := testGuard(t, newFakeDirectory())
	token := accessTokenFor(t, g, ghost)

	if _, err := g.Authenticate(context.Background(), token, "10.0.0.1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAuthenticateInactiveUser(t *testing.T) {
	bob := &rbac.User{ID: 2, Username: "bob", IsActive: false}
	g := testGuard(t, newFakeDirectory(bob))
	token := accessTokenFor(t, g, bob)

	if _, err := g.Authenticate(context.Background(), token, "10.0.0.1"); !errors.Is(err, ErrUserDisabled) {
		t.Fatalf("expected ErrUserDisabled, got %v", err)
	}
}

func TestAuthenticateIPWhitelist(t *testing.T) {
	alice := &rbac.User{ID: 1, Username: "alice", IsActive: true}
	g := testGuard(t, newFakeDirectory(alice), WithIPWhitelist([]string{"10.0.0.1"}))
	token := accessTokenFor(t, g, alice)

	if _, err := g.Authenticate(context.Background(), token, "10.0.0.1"); err != nil {
		t.Fatalf("whitelisted IP should pass: %v", err)
	}
	if _, err := g.Authenticate(context.Background(), token, "10.9.9.9"); !errors.Is(err, ErrIPNotAllowed) {
		t.Fatalf("expected ErrIPNotAllowed, got %v", err)
	}
}

func TestAuthenticateRateLimited(t *testing.T) {
	alice := &rbac.User{ID: 1, Username: "alice", IsActive: true}
	iss, err := NewTokenIssuer("test-secret", "HS256")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	limiter := NewFixedWindowLimiter(true, 3, time.Minute)
	g := NewGuard(iss, newFakeDirectory(alice), limiter, nil)
	token := accessTokenFor(t, g, alice)

	for i := 0; i < 3; i++ {
		if _, err := g.Authenticate(context.Background(), token, "10.0.0.1"); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if _, err := g.Authenticate(context.Background(), token, "10.0.0.1"); !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("expected ErrTooManyRequests, got %v", err)
	}
}

func TestLogoutBlacklistsToken(t *testing.T) {
	alice := &rbac.User{ID: 1, Username: "alice", IsActive: true}
	g := testGuard(t, newFakeDirectory(alice))
	token := accessTokenFor(t, g, alice)

	if _, err := g.Authenticate(context.Background(), token, "10.0.0.1"); err != nil {
		t.Fatalf("pre-logout authenticate: %v", err)
	}

	g.Logout(token, alice.ID)

	if _, err := g.Authenticate(context.Background(), token, "10.0.0.1"); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked after logout, got %v", err)
	}
}

func TestDevBypassOnlyInDebug(t *testing.T) {
	alice := &rbac.User{ID: 1, Username: "alice", IsActive: true}

	prod := testGuard(t, newFakeDirectory(alice))
	if _, err := prod.Authenticate(context.Background(), "dev", "10.0.0.1"); err == nil {
		t.Fatal("dev token must not work outside debug mode")
	}

	dbg := testGuard(t, newFakeDirectory(alice), WithDebugBypass(true))
	user, err := dbg.Authenticate(context.Background(), "dev", "10.0.0.1")
	if err != nil {
		t.Fatalf("debug dev bypass: %v", err)
	}
	if user.ID != 1 {
		t.Fatalf("expected first user, got %d", user.ID)
	}
}

func TestLoginDoesNotDistinguishFailures(t *testing.T) {
	hash, err := HashPassword("Correct1horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	alice := &rbac.User{ID: 1, Username: "alice", IsActive: true, PasswordHash: hash}
	g := testGuard(t, newFakeDirectory(alice))

	if _, err := g.Login(context.Background(), "alice", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("wrong password: expected ErrBadCredentials, got %v", err)
	}
	if _, err := g.Login(context.Background(), "nobody", "whatever"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("unknown user: expected ErrBadCredentials, got %v", err)
	}

	user, err := g.Login(context.Background(), "alice", "Correct1horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.ID != 1 {
		t.Fatalf("unexpected user %d", user.ID)
	}
}

func TestRefreshRequiresActiveUser(t *testing.T) {
	alice := &rbac.User{ID: 1, Username: "alice", IsActive: true}
	dir := newFakeDirectory(alice)
	g := testGuard(t, dir)

	refresh, _, err := g.issuer.IssueRefreshToken(alice.ID)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	access, _, err := g.RefreshAccessToken(context.Background(), refresh)
	if err != nil {
		t.Fatalf("RefreshAccessToken: %v", err)
	}
	if access == "" {
		t.Fatal("expected access token")
	}

	alice.IsActive = false
	if _, _, err := g.RefreshAccessToken(context.Background(), refresh); !errors.Is(err, ErrUserDisabled) {
		t.Fatalf("expected ErrUserDisabled, got %v", err)
	}
}
