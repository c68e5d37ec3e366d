package auth

import (
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored hash. The bcrypt
// comparison does not distinguish a wrong password from a corrupt hash, so
// callers cannot learn which one failed.
func VerifyPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePasswordStrength enforces the password policy. Returns a typed
// validation error naming the first unmet rule.
func ValidatePasswordStrength(password string, minLength int) error {
	if minLength <= 0 {
		minLength = 8
	}
	if len(password) < minLength {
		return Validation("password_too_short", fmt.Sprintf("密码长度不能少于%d个字符", minLength))
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		return Validation("password_needs_upper", "密码必须包含至少一个大写字母")
	}
	if !hasLower {
		return Validation("password_needs_lower", "密码必须包含至少一个小写字母")
	}
	if !hasDigit {
		return Validation("password_needs_digit", "密码必须包含至少一个数字")
	}
	return nil
}
