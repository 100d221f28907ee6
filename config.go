package goOTP

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goOTP/internal/otp"
)

// Config is the full engine configuration. Start from DefaultConfig and
// override what you need; Build validates the result.
type Config struct {
	OTP      OTPConfig
	Session  SessionConfig
	Password PasswordConfig
	Login    LoginConfig
	Delivery DeliveryConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Redis    RedisConfig
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls code shape, lifetime and throttling.
type OTPConfig struct {
	Length         int
	Alphanumeric   bool
	CodeTTL        time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int

	// Pepper keys the code digest. When empty, Build generates a random one,
	// which invalidates outstanding codes on restart.
	Pepper []byte
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig holds signing material and per-role lifetimes.
type SessionConfig struct {
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string
	VerifyKeys    map[string][]byte
	Issuer        string
	Audience      string
	Leeway        time.Duration

	UserTTL  time.Duration
	AdminTTL time.Duration
	ResetTTL time.Duration

	// EnableRevocation makes Logout record the token id until expiry and
	// Validate consult that set. Off means logout is client-side discard.
	EnableRevocation bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id cost parameters and the length policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	MaxLength      int
	UpgradeOnLogin bool
}

/*
====================================
LOGIN THROTTLE CONFIG
====================================
*/

// LoginConfig throttles failed password logins with fixed-window counters
// per key and, optionally, per client IP. MaxAttempts 0 disables it.
// Counters apply to unknown keys too, so throttling reveals nothing about
// registration.
type LoginConfig struct {
	MaxAttempts      int
	Window           time.Duration
	EnableIPThrottle bool
}

/*
====================================
DELIVERY CONFIG
====================================
*/

// DeliveryConfig controls how plaintext codes are handed to the Deliverer.
type DeliveryConfig struct {
	// Async queues deliveries on a bounded worker pool instead of sending
	// inline. Async signups never report DeliveryFailed.
	Async     bool
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

type RedisConfig struct {
	KeyPrefix string
}

// DefaultConfig returns production defaults. Signing keys are left empty
// and must be supplied.
func DefaultConfig() Config {
	return Config{
		OTP: OTPConfig{
			Length:         6,
			CodeTTL:        10 * time.Minute,
			ResendCooldown: 60 * time.Second,
			MaxAttempts:    5,
		},
		Session: SessionConfig{
			SigningMethod: "hs256",
			Issuer:        "gootp",
			UserTTL:       24 * time.Hour,
			AdminTTL:      time.Hour,
			ResetTTL:      10 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      8,
			MaxLength:      128,
			UpgradeOnLogin: true,
		},
		Login: LoginConfig{
			MaxAttempts:      10,
			Window:           15 * time.Minute,
			EnableIPThrottle: false,
		},
		Delivery: DeliveryConfig{
			Async:     false,
			QueueSize: 256,
			Workers:   2,
			Timeout:   10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Redis: RedisConfig{
			KeyPrefix: "gotp",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.OTP.Pepper = cloneBytes(cfg.OTP.Pepper)
	out.Session.PrivateKey = cloneBytes(cfg.Session.PrivateKey)
	out.Session.PublicKey = cloneBytes(cfg.Session.PublicKey)
	if cfg.Session.VerifyKeys != nil {
		out.Session.VerifyKeys = make(map[string][]byte, len(cfg.Session.VerifyKeys))
		for kid, key := range cfg.Session.VerifyKeys {
			out.Session.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// OTP
	if c.OTP.Length < otp.MinLength || c.OTP.Length > otp.MaxLength {
		return fmt.Errorf("OTP Length must be between %d and %d", otp.MinLength, otp.MaxLength)
	}
	if c.OTP.CodeTTL <= 0 {
		return errors.New("OTP CodeTTL must be > 0")
	}
	if c.OTP.ResendCooldown < 0 {
		return errors.New("OTP ResendCooldown must be >= 0")
	}
	if c.OTP.ResendCooldown >= c.OTP.CodeTTL {
		return errors.New("OTP ResendCooldown must be shorter than CodeTTL")
	}
	if c.OTP.MaxAttempts < 1 || c.OTP.MaxAttempts > 65535 {
		return errors.New("OTP MaxAttempts must be between 1 and 65535")
	}
	if len(c.OTP.Pepper) > 0 && len(c.OTP.Pepper) < 16 {
		return errors.New("OTP Pepper must be at least 16 bytes")
	}

	// Session
	switch c.Session.SigningMethod {
	case "hs256":
		if len(c.Session.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.Session.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.Session.PublicKey) == 0 && len(c.Session.VerifyKeys) == 0 {
			return errors.New("ed25519 requires PublicKey or VerifyKeys")
		}
	default:
		return errors.New("unsupported session signing method")
	}
	if c.Session.UserTTL <= 0 || c.Session.AdminTTL <= 0 {
		return errors.New("Session UserTTL and AdminTTL must be > 0")
	}
	if c.Session.ResetTTL <= 0 || c.Session.ResetTTL > time.Hour {
		return errors.New("Session ResetTTL must be in (0, 1h]")
	}
	if c.Session.Leeway < 0 || c.Session.Leeway > 2*time.Minute {
		return errors.New("Session Leeway must be between 0 and 2m")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 || c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MinLength must be >= 1 and <= MaxLength")
	}

	// Login
	if c.Login.MaxAttempts < 0 {
		return errors.New("Login MaxAttempts must be >= 0")
	}
	if c.Login.MaxAttempts > 0 && c.Login.Window <= 0 {
		return errors.New("Login Window must be > 0 when throttling is enabled")
	}

	// Delivery
	if c.Delivery.Timeout <= 0 {
		return errors.New("Delivery Timeout must be > 0")
	}
	if c.Delivery.Async && (c.Delivery.QueueSize <= 0 || c.Delivery.Workers <= 0) {
		return errors.New("async Delivery requires QueueSize and Workers > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Redis.KeyPrefix == "" {
		return errors.New("Redis KeyPrefix must not be empty")
	}

	return nil
}
