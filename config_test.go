package goOTP

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigNeedsSigningKey(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected default config without a signing key to be invalid")
	}
	cfg.Session.PrivateKey = []byte(strings.Repeat("s", 32))
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config with a key to be valid, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "otp length 8 alphanumeric",
			mutate:    func(c *Config) { c.OTP.Length = 8; c.OTP.Alphanumeric = true },
			wantValid: true,
		},
		{
			name:      "otp length too short",
			mutate:    func(c *Config) { c.OTP.Length = 4 },
			wantValid: false,
		},
		{
			name:      "otp length too long",
			mutate:    func(c *Config) { c.OTP.Length = 13 },
			wantValid: false,
		},
		{
			name:      "cooldown not shorter than ttl",
			mutate:    func(c *Config) { c.OTP.ResendCooldown = c.OTP.CodeTTL },
			wantValid: false,
		},
		{
			name:      "zero cooldown",
			mutate:    func(c *Config) { c.OTP.ResendCooldown = 0 },
			wantValid: true,
		},
		{
			name:      "zero attempts",
			mutate:    func(c *Config) { c.OTP.MaxAttempts = 0 },
			wantValid: false,
		},
		{
			name:      "short pepper",
			mutate:    func(c *Config) { c.OTP.Pepper = []byte("short") },
			wantValid: false,
		},
		{
			name:      "hs256 short secret",
			mutate:    func(c *Config) { c.Session.PrivateKey = []byte("too-short") },
			wantValid: false,
		},
		{
			name:      "unsupported signing method",
			mutate:    func(c *Config) { c.Session.SigningMethod = "rs256" },
			wantValid: false,
		},
		{
			name:      "ed25519 without public key",
			mutate:    func(c *Config) { c.Session.SigningMethod = "ed25519" },
			wantValid: false,
		},
		{
			name:      "leeway valid",
			mutate:    func(c *Config) { c.Session.Leeway = 45 * time.Second },
			wantValid: true,
		},
		{
			name:      "leeway invalid",
			mutate:    func(c *Config) { c.Session.Leeway = 3 * time.Minute },
			wantValid: false,
		},
		{
			name:      "reset ttl too long",
			mutate:    func(c *Config) { c.Session.ResetTTL = 2 * time.Hour },
			wantValid: false,
		},
		{
			name:      "admin ttl zero",
			mutate:    func(c *Config) { c.Session.AdminTTL = 0 },
			wantValid: false,
		},
		{
			name:      "weak argon2 memory",
			mutate:    func(c *Config) { c.Password.Memory = 1024 },
			wantValid: false,
		},
		{
			name:      "password bounds inverted",
			mutate:    func(c *Config) { c.Password.MinLength = 20; c.Password.MaxLength = 10 },
			wantValid: false,
		},
		{
			name:      "async delivery without workers",
			mutate:    func(c *Config) { c.Delivery.Async = true; c.Delivery.Workers = 0 },
			wantValid: false,
		},
		{
			name:      "audit without buffer",
			mutate:    func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 },
			wantValid: false,
		},
		{
			name:      "empty key prefix",
			mutate:    func(c *Config) { c.Redis.KeyPrefix = "" },
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestBuildRequiresCollaborators(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	if _, err := New().WithConfig(testConfig()).Build(); !errors.Is(err, ErrMissingRedis) {
		t.Fatalf("expected ErrMissingRedis, got %v", err)
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).WithDeliverer(&captureDeliverer{}).Build(); err == nil {
		t.Fatal("expected error without a credential store")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).WithCredentialStore(newMockCredentialStore()).Build(); err == nil {
		t.Fatal("expected error without a deliverer")
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithCredentialStore(newMockCredentialStore()).WithDeliverer(&captureDeliverer{})
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected a used builder to fail")
	}
}

func TestWithConfigCopiesKeyMaterial(t *testing.T) {
	cfg := testConfig()
	b := New().WithConfig(cfg)
	cfg.Session.PrivateKey[0] = 'X'
	cfg.OTP.Pepper[0] = 'X'

	if b.config.Session.PrivateKey[0] == 'X' || b.config.OTP.Pepper[0] == 'X' {
		t.Fatal("builder must not share key material with the caller")
	}
}

func TestAlphanumericCodes(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.OTP.Alphanumeric = true
		c.OTP.Length = 8
	})
	ctx := context.Background()

	if _, err := env.engine.RequestSignupCode(ctx, env.signupRequest()); err != nil {
		t.Fatalf("RequestSignupCode failed: %v", err)
	}
	code := env.deliverer.Last(t).Code
	if len(code) != 8 {
		t.Fatalf("expected 8 symbols, got %q", code)
	}
	if _, err := env.engine.VerifySignupCode(ctx, testEmail, strings.ToLower(code)); err != nil {
		t.Fatalf("lower-case entry should verify, got %v", err)
	}
}

func TestLoginThrottleConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Login.MaxAttempts = 5
	cfg.Login.Window = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected a window to be required")
	}
	cfg.Login.MaxAttempts = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled throttle needs no window, got %v", err)
	}
}
