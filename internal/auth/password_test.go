package auth

import (
	"errors"
	"testing"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("S3cret-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "S3cret-password" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !VerifyPassword(hash, "S3cret-password") {
		t.Fatal("expected correct password to verify")
	}
	if VerifyPassword(hash, "wrong-password") {
		t.Fatal("expected wrong password to fail")
	}
}

func TestHashPasswordEmpty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestVerifyPasswordCorruptHash(t *testing.T) {
	if VerifyPassword("not-a-bcrypt-hash", "whatever") {
		t.Fatal("corrupt hash must not verify")
	}
	if VerifyPassword("", "whatever") {
		t.Fatal("empty hash must not verify")
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	cases := []struct {
		name     string
		password string
		wantCode string
	}{
		{"too short", "Ab1", "password_too_short"},
		{"no upper", "abcdefg1", "password_needs_upper"},
		{"no lower", "ABCDEFG1", "password_needs_lower"},
		{"no digit", "Abcdefgh", "password_needs_digit"},
		{"valid", "Abcdefg1", ""},
	}
	for _, tc := range cases {
		err := ValidatePasswordStrength(tc.password, 8)
		if tc.wantCode == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		var ae *Error
		if !errors.As(err, &ae) {
			t.Fatalf("%s: expected typed error, got %v", tc.name, err)
		}
		if ae.Code != tc.wantCode {
			t.Fatalf("%s: expected code %s, got %s", tc.name, tc.wantCode, ae.Code)
		}
		if ae.Kind != KindValidation {
			t.Fatalf("%s: expected validation kind, got %v", tc.name, ae.Kind)
		}
	}
}
