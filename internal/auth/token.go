package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const refreshSubject = "refresh"

// AccessClaims is the claim set carried by access tokens.
type AccessClaims struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	IsSuperuser bool   `json:"is_superuser"`
	jwt.RegisteredClaims
}

// refreshClaims is the claim set carried by refresh tokens. Subject is always
// "refresh" so a refresh token can never pass an access-token check.
type refreshClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies access and refresh tokens with a symmetric
// key. TTLs, audience and issuer are settings, not constants.
type TokenIssuer struct {
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	audience   string
	issuer     string
	now        func() time.Time
}

// IssuerOption configures TokenIssuer behavior.
type IssuerOption func(*TokenIssuer)

// WithAudience sets the aud claim added to and required from tokens.
func WithAudience(aud string) IssuerOption {
	return func(i *TokenIssuer) { i.audience = strings.TrimSpace(aud) }
}

// WithIssuer sets the iss claim added to and required from tokens.
func WithIssuer(iss string) IssuerOption {
	return func(i *TokenIssuer) { i.issuer = strings.TrimSpace(iss) }
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(i *TokenIssuer) {
		if ttl > 0 {
			i.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) IssuerOption {
	return func(i *TokenIssuer) {
		if ttl > 0 {
			i.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) IssuerOption {
	return func(i *TokenIssuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewTokenIssuer constructs a TokenIssuer. The algorithm must be one of the
// HMAC family; anything else is rejected at construction rather than at the
// first sign call.
func NewTokenIssuer(secret, algorithm string, opts ...IssuerOption) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	method := jwt.GetSigningMethod(algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("auth: unsupported signing algorithm " + algorithm)
	}
	iss := &TokenIssuer{
		secret:     []byte(secret),
		method:     method,
		accessTTL:  7 * 24 * time.Hour,
		refreshTTL: 30 * 24 * time.Hour,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss, nil
}

// AccessTTL reports the configured access token lifetime.
func (i *TokenIssuer) AccessTTL() time.Duration { return i.accessTTL }

// IssueAccessToken signs an access token for the given identity.
func (i *TokenIssuer) IssueAccessToken(userID int64, username string, isSuperuser bool) (string, time.Time, error) {
	now := i.now().UTC()
	exp := now.Add(i.accessTTL)
	claims := AccessClaims{
		UserID:      userID,
		Username:    username,
		IsSuperuser: isSuperuser,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	i.stampRegistered(&claims.RegisteredClaims)
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueRefreshToken signs a refresh token for the given user. Refresh tokens
// only mint new access tokens; they never authenticate API calls directly.
func (i *TokenIssuer) IssueRefreshToken(userID int64) (string, time.Time, error) {
	now := i.now().UTC()
	exp := now.Add(i.refreshTTL)
	claims := refreshClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   refreshSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	i.stampRegistered(&claims.RegisteredClaims)
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (i *TokenIssuer) stampRegistered(rc *jwt.RegisteredClaims) {
	if i.audience != "" {
		rc.Audience = jwt.ClaimStrings{i.audience}
	}
	if i.issuer != "" {
		rc.Issuer = i.issuer
	}
}

// VerifyAccessToken validates signature, expiry and, when configured, audience
// and issuer. Each failure mode maps to a distinct typed error; all of them
// are non-retriable without a fresh token.
func (i *TokenIssuer) VerifyAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.Subject == refreshSubject {
		return nil, ErrTokenMalformed
	}
	if claims.UserID == 0 {
		return nil, ErrTokenNoUserID
	}
	return claims, nil
}

// VerifyRefreshToken validates a refresh token and returns the user id it was
// issued for.
func (i *TokenIssuer) VerifyRefreshToken(token string) (int64, error) {
	claims := &refreshClaims{}
	if err := i.parse(token, claims); err != nil {
		return 0, err
	}
	if claims.Subject != refreshSubject {
		return 0, ErrTokenNotRefresh
	}
	if claims.UserID == 0 {
		return 0, ErrTokenNoUserID
	}
	return claims.UserID, nil
}

func (i *TokenIssuer) parse(token string, claims jwt.Claims) error {
	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
	if i.audience != "" {
		opts = append(opts, jwt.WithAudience(i.audience))
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != i.method.Alg() {
			return nil, ErrTokenAlgorithm
		}
		return i.secret, nil
	}, opts...)
	if err != nil {
		return mapJWTError(err)
	}
	if !parsed.Valid {
		return ErrTokenMalformed
	}
	return nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, ErrTokenAlgorithm):
		return ErrTokenAlgorithm
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrTokenAudience
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrTokenIssuer
	default:
		return ErrTokenMalformed
	}
}
