package goOTP

import (
	"errors"
	"io"
	"log/slog"

	"github.com/MrEthical07/goOTP/internal/audit"
	"github.com/MrEthical07/goOTP/internal/otp"
	"github.com/MrEthical07/goOTP/internal/rate"
	"github.com/MrEthical07/goOTP/internal/stores"
	"github.com/MrEthical07/goOTP/jwt"
	"github.com/MrEthical07/goOTP/password"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder can be used once.
type Builder struct {
	config      Config
	redis       redis.UniversalClient
	credentials CredentialStore
	deliverer   Deliverer
	auditSink   AuditSink
	logger      *slog.Logger
	clock       Clock
	random      io.Reader

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing verification records and the
// revocation set.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

func (b *Builder) WithDeliverer(d Deliverer) *Builder {
	b.deliverer = d
	return b
}

// WithAuditSink sets the audit destination. Events flow only when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for records, tokens and audit timestamps.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithRandom overrides crypto/rand for code generation, salts and a
// generated pepper.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, ErrMissingRedis
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	if b.deliverer == nil {
		return nil, errors.New("deliverer required")
	}

	engine := &Engine{
		config:      cfg,
		credentials: b.credentials,
		logger:      b.logger,
		clock:       b.clock,
		random:      b.random,
		alphabet:    otp.Digits,
	}
	if engine.logger == nil {
		engine.logger = slog.Default()
	}
	if engine.clock == nil {
		engine.clock = systemClock{}
	}
	if cfg.OTP.Alphanumeric {
		engine.alphabet = otp.Alphanumeric
	}
	engine.newCode = func() (string, error) {
		return otp.NewCode(engine.random, engine.alphabet, cfg.OTP.Length)
	}

	engine.pepper = cloneBytes(cfg.OTP.Pepper)
	if len(engine.pepper) == 0 {
		pepper, err := otp.NewPepper(b.random)
		if err != nil {
			return nil, err
		}
		engine.pepper = pepper
		engine.logger.Warn("no OTP pepper configured; outstanding codes will not survive a restart")
	}

	// -------- STORES --------
	engine.store = stores.NewVerificationStore(b.redis, cfg.Redis.KeyPrefix+":vr")
	if cfg.Session.EnableRevocation {
		engine.revocations = stores.NewRevocationStore(b.redis, cfg.Redis.KeyPrefix+":rv")
	}
	if cfg.Login.MaxAttempts > 0 {
		engine.logins = rate.New(b.redis, cfg.Redis.KeyPrefix+":rl", rate.Config{
			MaxAttempts:      cfg.Login.MaxAttempts,
			Window:           cfg.Login.Window,
			EnableIPThrottle: cfg.Login.EnableIPThrottle,
		})
	}

	// -------- PASSWORD --------
	ph, err := password.NewWithRand(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	}, b.random)
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph
	engine.hashPassword = ph.Hash

	// Login against unknown keys verifies against this hash so both paths
	// cost one Argon2 evaluation.
	dummy, err := ph.Hash("gootp-timing-equalizer")
	if err != nil {
		return nil, err
	}
	engine.dummyHash = dummy

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.Session.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Session.PrivateKey),
		PublicKey:     cloneBytes(cfg.Session.PublicKey),
		KeyID:         cfg.Session.KeyID,
		VerifyKeys:    cfg.Session.VerifyKeys,
		Issuer:        cfg.Session.Issuer,
		Audience:      cfg.Session.Audience,
		Leeway:        cfg.Session.Leeway,
		Now:           engine.clock.Now,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	// -------- OBSERVABILITY --------
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     engine.logger,
	}, b.auditSink)
	engine.delivery = newDeliveryDispatcher(cfg.Delivery, b.deliverer, engine.reportDelivery)

	b.built = true

	return engine, nil
}
