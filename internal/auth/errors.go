package auth

import "fmt"

// Kind classifies a failure so the HTTP layer can map it to a status class
// without string matching.
type Kind int

const (
	// KindAuthentication means identity could not be established (401).
	KindAuthentication Kind = iota + 1
	// KindAuthorization means identity was established but is disallowed (403).
	KindAuthorization
	// KindRateLimit means too many requests in the current window (429).
	KindRateLimit
	// KindValidation means malformed input independent of identity (422).
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindRateLimit:
		return "rate_limit"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a typed failure with a stable machine-readable code. Messages are
// safe to return to callers; no internals leak through them.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Authentication builds a 401-class error.
func Authentication(code, message string) *Error {
	return &Error{Kind: KindAuthentication, Code: code, Message: message}
}

// Authorization builds a 403-class error.
func Authorization(code, message string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: message}
}

// RateLimited builds a 429-class error.
func RateLimited(code, message string) *Error {
	return &Error{Kind: KindRateLimit, Code: code, Message: message}
}

// Validation builds a 422-class error.
func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// Stable error instances reused across the guard and token service.
var (
	ErrTokenExpired    = Authentication("token_expired", "登录已过期")
	ErrTokenAlgorithm  = Authentication("token_bad_algorithm", "无效的签名算法")
	ErrTokenAudience   = Authentication("token_bad_audience", "无效的Token受众")
	ErrTokenIssuer     = Authentication("token_bad_issuer", "无效的Token签发者")
	ErrTokenMalformed  = Authentication("token_invalid", "无效的Token")
	ErrTokenRevoked    = Authentication("token_revoked", "Token已被吊销")
	ErrTokenNoUserID   = Authentication("token_missing_user", "Token中缺少用户标识")
	ErrTokenNotRefresh = Authentication("token_not_refresh", "不是刷新令牌")
	ErrUserNotFound    = Authentication("user_not_found", "用户不存在或已被删除")
	ErrBadCredentials  = Authentication("bad_credentials", "用户名或密码错误")
	ErrUserDisabled    = Authorization("user_disabled", "用户已被禁用")
	ErrIPNotAllowed    = Authorization("ip_not_allowed", "IP地址未授权访问")
	ErrTooManyRequests = RateLimited("too_many_requests", "请求过于频繁，请稍后再试")
)
