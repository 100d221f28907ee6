package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/credstore"
	"github.com/MrEthical07/goOTP/delivery"
)

var ErrParsingConfig = errors.New("gootp: failed to parse configuration")

// appConfig is read from the environment. A .env file in the working
// directory is loaded first when present.
type appConfig struct {
	HTTPAddr          string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	TrustProxyHeaders bool          `env:"HTTP_TRUST_PROXY_HEADERS" envDefault:"false"`
	MetricsPath       string        `env:"METRICS_PATH" envDefault:"/metrics"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	RedisURL  string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"gotp"`

	MongoURL        string        `env:"MONGODB_URL"`
	MongoDatabase   string        `env:"MONGODB_DATABASE" envDefault:"gootp"`
	MongoCollection string        `env:"MONGODB_COLLECTION" envDefault:"identities"`
	MongoTimeout    time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
	MongoRetries    int           `env:"MONGODB_RETRY_ATTEMPTS" envDefault:"3"`

	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	MailFrom             string `env:"MAIL_FROM" envDefault:"no-reply@example.com"`
	MailReplyTo          string `env:"MAIL_REPLY_TO"`
	DevMailDir           string `env:"DEV_MAIL_DIR" envDefault:"./mail"`
	ProductName          string `env:"PRODUCT_NAME" envDefault:"goOTP"`

	// Secrets are base64 encoded.
	SigningKey string `env:"SESSION_SIGNING_KEY,required"`
	OTPPepper  string `env:"OTP_PEPPER"`

	SessionIssuer    string        `env:"SESSION_ISSUER" envDefault:"gootp"`
	SessionAudience  string        `env:"SESSION_AUDIENCE"`
	UserTTL          time.Duration `env:"SESSION_USER_TTL" envDefault:"24h"`
	AdminTTL         time.Duration `env:"SESSION_ADMIN_TTL" envDefault:"1h"`
	ResetTTL         time.Duration `env:"SESSION_RESET_TTL" envDefault:"10m"`
	EnableRevocation bool          `env:"SESSION_ENABLE_REVOCATION" envDefault:"false"`

	CodeLength     int           `env:"OTP_LENGTH" envDefault:"6"`
	Alphanumeric   bool          `env:"OTP_ALPHANUMERIC" envDefault:"false"`
	CodeTTL        time.Duration `env:"OTP_CODE_TTL" envDefault:"10m"`
	ResendCooldown time.Duration `env:"OTP_RESEND_COOLDOWN" envDefault:"60s"`
	MaxAttempts    int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`

	LoginMaxAttempts int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"10"`
	LoginWindow      time.Duration `env:"LOGIN_WINDOW" envDefault:"15m"`
	LoginIPThrottle  bool          `env:"LOGIN_IP_THROTTLE" envDefault:"false"`

	AsyncDelivery bool   `env:"DELIVERY_ASYNC" envDefault:"false"`
	AuditEnabled  bool   `env:"AUDIT_ENABLED" envDefault:"true"`
	AuditSink     string `env:"AUDIT_SINK" envDefault:"log"` // "log" or "stdout"
}

func loadConfig() (appConfig, error) {
	// The .env file is optional.
	_ = godotenv.Load()

	var cfg appConfig
	if err := env.Parse(&cfg); err != nil {
		return appConfig{}, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// engineConfig maps the environment onto goOTP.Config. Build validates the
// result.
func (c appConfig) engineConfig() (goOTP.Config, error) {
	cfg := goOTP.DefaultConfig()

	key, err := base64.StdEncoding.DecodeString(c.SigningKey)
	if err != nil {
		return goOTP.Config{}, fmt.Errorf("SESSION_SIGNING_KEY: %w", err)
	}
	cfg.Session.PrivateKey = key
	if c.OTPPepper != "" {
		pepper, err := base64.StdEncoding.DecodeString(c.OTPPepper)
		if err != nil {
			return goOTP.Config{}, fmt.Errorf("OTP_PEPPER: %w", err)
		}
		cfg.OTP.Pepper = pepper
	}

	cfg.Session.Issuer = c.SessionIssuer
	cfg.Session.Audience = c.SessionAudience
	cfg.Session.UserTTL = c.UserTTL
	cfg.Session.AdminTTL = c.AdminTTL
	cfg.Session.ResetTTL = c.ResetTTL
	cfg.Session.EnableRevocation = c.EnableRevocation

	cfg.OTP.Length = c.CodeLength
	cfg.OTP.Alphanumeric = c.Alphanumeric
	cfg.OTP.CodeTTL = c.CodeTTL
	cfg.OTP.ResendCooldown = c.ResendCooldown
	cfg.OTP.MaxAttempts = c.MaxAttempts

	cfg.Login.MaxAttempts = c.LoginMaxAttempts
	cfg.Login.Window = c.LoginWindow
	cfg.Login.EnableIPThrottle = c.LoginIPThrottle

	cfg.Delivery.Async = c.AsyncDelivery
	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Redis.KeyPrefix = c.KeyPrefix

	return cfg, nil
}

func (c appConfig) mongoConfig() credstore.MongoConfig {
	return credstore.MongoConfig{
		ConnectionURL:  c.MongoURL,
		Database:       c.MongoDatabase,
		Collection:     c.MongoCollection,
		ConnectTimeout: c.MongoTimeout,
		RetryAttempts:  c.MongoRetries,
		MaxPoolSize:    100,
		RetryInterval:  time.Second,
	}
}

func (c appConfig) postmarkConfig() delivery.PostmarkConfig {
	return delivery.PostmarkConfig{
		ServerToken:  c.PostmarkServerToken,
		AccountToken: c.PostmarkAccountToken,
		From:         c.MailFrom,
		ReplyTo:      c.MailReplyTo,
	}
}
