package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"adminhub.org/internal/obs"
	"adminhub.org/internal/rbac"
)

// devBypassToken authenticates as the first user when debug mode is on. Never
// honored in production configurations.
const devBypassToken = "dev"

// UserDirectory is the slice of user persistence the guard needs.
type UserDirectory interface {
	Find(ctx context.Context, id int64) (*rbac.User, error)
	FindByUsername(ctx context.Context, username string) (*rbac.User, error)
	First(ctx context.Context) (*rbac.User, error)
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

// Guard is the session gatekeeper: it authenticates bearer tokens, enforces
// the IP whitelist and per-identity rate limits, and tracks revoked tokens.
type Guard struct {
	issuer    *TokenIssuer
	users     UserDirectory
	limiter   *FixedWindowLimiter
	whitelist map[string]struct{}
	debug     bool
	log       *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	blacklist map[string]struct{}
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithIPWhitelist restricts authentication to the listed client IPs. An empty
// list admits every IP.
func WithIPWhitelist(ips []string) GuardOption {
	return func(g *Guard) {
		for _, ip := range ips {
			if ip != "" {
				g.whitelist[ip] = struct{}{}
			}
		}
	}
}

// WithDebugBypass enables the "dev" bypass token.
func WithDebugBypass(enabled bool) GuardOption {
	return func(g *Guard) { g.debug = enabled }
}

// WithGuardClock overrides the time source in tests.
func WithGuardClock(fn func() time.Time) GuardOption {
	return func(g *Guard) {
		if fn != nil {
			g.now = fn
		}
	}
}

// NewGuard constructs a Guard.
func NewGuard(issuer *TokenIssuer, users UserDirectory, limiter *FixedWindowLimiter, log *zap.Logger, opts ...GuardOption) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Guard{
		issuer:    issuer,
		users:     users,
		limiter:   limiter,
		whitelist: make(map[string]struct{}),
		log:       log.Named("guard"),
		now:       time.Now,
		blacklist: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate resolves a bearer token to an active user. Checks run in a
// fixed order: IP whitelist, pre-identity rate limit, revocation, token
// verification, account lookup and status. After identity is known one more
// request is accrued against the "{ip}:{userID}" counter, matching the
// unauthenticated accrual already charged to the bare IP.
func (g *Guard) Authenticate(ctx context.Context, token, ip string) (*rbac.User, error) {
	if ip == "" {
		ip = "0.0.0.0"
	}
	if len(g.whitelist) > 0 {
		if _, ok := g.whitelist[ip]; !ok {
			obs.AuthFailure("ip_not_allowed")
			g.log.Warn("ip rejected by whitelist", zap.String("ip", ip))
			return nil, ErrIPNotAllowed
		}
	}
	if !g.limiter.Allow(ip, 0) {
		obs.AuthFailure("rate_limited")
		return nil, ErrTooManyRequests
	}
	if g.isRevoked(token) {
		obs.AuthFailure("token_revoked")
		return nil, ErrTokenRevoked
	}

	var user *rbac.User
	var err error
	if g.debug && token == devBypassToken {
		user, err = g.users.First(ctx)
		if err != nil {
			if errors.Is(err, rbac.ErrNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, err
		}
	} else {
		claims, verr := g.issuer.VerifyAccessToken(token)
		if verr != nil {
			obs.AuthFailure("token_invalid")
			return nil, verr
		}
		user, err = g.users.Find(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, rbac.ErrNotFound) {
				obs.AuthFailure("user_not_found")
				return nil, ErrUserNotFound
			}
			return nil, err
		}
	}
	if !user.IsActive {
		obs.AuthFailure("user_disabled")
		return nil, ErrUserDisabled
	}

	// Accrue against the authenticated key. The verdict is deliberately
	// ignored: the pre-identity check already gated this request, this call
	// only charges the per-user counter for subsequent ones.
	g.limiter.Allow(ip, user.ID)
	return user, nil
}

// Login verifies a username/password pair. Unknown usernames and wrong
// passwords return the same error so the endpoint cannot be used to enumerate
// accounts.
func (g *Guard) Login(ctx context.Context, username, password string) (*rbac.User, error) {
	user, err := g.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			obs.AuthFailure("bad_credentials")
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if !VerifyPassword(user.PasswordHash, password) {
		obs.AuthFailure("bad_credentials")
		return nil, ErrBadCredentials
	}
	if !user.IsActive {
		obs.AuthFailure("user_disabled")
		return nil, ErrUserDisabled
	}
	if err := g.users.UpdateLastLogin(ctx, user.ID, g.now().UTC()); err != nil {
		g.log.Warn("last login update failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	return user, nil
}

// IssueTokens mints an access and refresh token pair for a user.
func (g *Guard) IssueTokens(user *rbac.User) (access string, accessExp time.Time, refresh string, err error) {
	access, accessExp, err = g.issuer.IssueAccessToken(user.ID, user.Username, user.IsSuperuser)
	if err != nil {
		return "", time.Time{}, "", err
	}
	refresh, _, err = g.issuer.IssueRefreshToken(user.ID)
	if err != nil {
		return "", time.Time{}, "", err
	}
	return access, accessExp, refresh, nil
}

// RefreshAccessToken exchanges a valid refresh token for a fresh access token.
// The account is re-resolved so disabled or deleted users cannot refresh.
func (g *Guard) RefreshAccessToken(ctx context.Context, refreshToken string) (string, time.Time, error) {
	if g.isRevoked(refreshToken) {
		return "", time.Time{}, ErrTokenRevoked
	}
	userID, err := g.issuer.VerifyRefreshToken(refreshToken)
	if err != nil {
		obs.AuthFailure("refresh_invalid")
		return "", time.Time{}, err
	}
	user, err := g.users.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return "", time.Time{}, ErrUserNotFound
		}
		return "", time.Time{}, err
	}
	if !user.IsActive {
		return "", time.Time{}, ErrUserDisabled
	}
	return g.issuer.IssueAccessToken(user.ID, user.Username, user.IsSuperuser)
}

// Peek resolves the identity claims of a token without touching rate limits
// or the user store. Audit capture uses it; failures mean anonymous.
func (g *Guard) Peek(token string) (userID int64, username string) {
	if token == "" || g.isRevoked(token) {
		return 0, ""
	}
	claims, err := g.issuer.VerifyAccessToken(token)
	if err != nil {
		return 0, ""
	}
	return claims.UserID, claims.Username
}

// Logout revokes the presented token and drops the user's rate counters. The
// blacklist is process-local; tokens still expire on their own schedule.
func (g *Guard) Logout(token string, userID int64) {
	if token != "" {
		g.mu.Lock()
		g.blacklist[token] = struct{}{}
		g.mu.Unlock()
	}
	g.limiter.PurgeUser(userID)
	g.log.Info("session revoked", zap.Int64("user_id", userID))
}

func (g *Guard) isRevoked(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.blacklist[token]
	return ok
}
