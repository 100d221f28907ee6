package goOTP

import (
	"errors"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		ok    bool
	}{
		{email: "alice@example.com", ok: true},
		{email: "a@b.com", ok: true},
		{email: "first.last+tag@sub.example.org", ok: true},
		{email: "", ok: false},
		{email: "alice", ok: false},
		{email: "alice@", ok: false},
		{email: "@example.com", ok: false},
		{email: "alice example.com", ok: false},
	}

	for _, tt := range tests {
		err := validateEmail(tt.email)
		if tt.ok && err != nil {
			t.Errorf("validateEmail(%q) = %v, want nil", tt.email, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidEmail) {
			t.Errorf("validateEmail(%q) = %v, want ErrInvalidEmail", tt.email, err)
		}
	}
}

func TestValidateSignupRejectsMalformedEmail(t *testing.T) {
	env := newTestEnv(t, nil)

	req := env.signupRequest()
	req.Email = "not-an-address"
	if err := env.engine.validateSignup(&req); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}

	req = env.signupRequest()
	if err := env.engine.validateSignup(&req); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}
