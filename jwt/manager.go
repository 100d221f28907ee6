package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

const (
	KindSession = "session"
	KindReset   = "pwreset"

	minHMACKeyLength = 32
)

var (
	// ErrExpired is returned for a well-signed token whose exp has passed.
	ErrExpired = errors.New("token expired")
	// ErrInvalid covers every other rejection: signature, algorithm, kid,
	// issuer, audience, kind or malformed input.
	ErrInvalid = errors.New("token invalid")
)

// Config holds process-scoped key material. It is injected once at
// construction; rotating keys means building a new Manager.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte

	// Now overrides the clock used for iat/exp and validation.
	Now func() time.Time
}

// Manager issues and parses signed tokens. It is safe for concurrent use.
type Manager struct {
	config Config
}

// SessionClaims is the payload of a bearer session token.
type SessionClaims struct {
	Role string `json:"role"`
	Kind string `json:"knd"`
	jwt.RegisteredClaims
}

// ResetClaims is the payload of a password-reset authorization. Fingerprint
// is derived from the password hash current at issue time.
type ResetClaims struct {
	Email       string `json:"email"`
	Fingerprint string `json:"fp"`
	Kind        string `json:"knd"`
	jwt.RegisteredClaims
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < minHMACKeyLength {
			return nil, fmt.Errorf("hs256 requires a key of at least %d bytes", minHMACKeyLength)
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Manager{config: cfg}, nil
}

// CreateSession signs a session for subject valid for ttl from now.
func (j *Manager) CreateSession(subject, role string, ttl time.Duration) (string, *SessionClaims, error) {
	if ttl <= 0 {
		return "", nil, errors.New("invalid session ttl")
	}
	claims := &SessionClaims{
		Role:             role,
		Kind:             KindSession,
		RegisteredClaims: j.registered(subject, ttl),
	}
	token, err := j.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// ParseSession verifies token and returns its claims. Reset authorizations
// are rejected with ErrInvalid.
func (j *Manager) ParseSession(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := j.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.Kind != KindSession || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// CreateReset signs a reset authorization for subject.
func (j *Manager) CreateReset(subject, email, fingerprint string, ttl time.Duration) (string, *ResetClaims, error) {
	if ttl <= 0 {
		return "", nil, errors.New("invalid reset ttl")
	}
	claims := &ResetClaims{
		Email:            email,
		Fingerprint:      fingerprint,
		Kind:             KindReset,
		RegisteredClaims: j.registered(subject, ttl),
	}
	token, err := j.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

func (j *Manager) ParseReset(token string) (*ResetClaims, error) {
	claims := &ResetClaims{}
	if err := j.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.Kind != KindReset || claims.Subject == "" || claims.Fingerprint == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (j *Manager) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := j.config.Now()
	rc := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    j.config.Issuer,
	}
	if j.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{j.config.Audience}
	}
	return rc
}

func (j *Manager) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(j.getMethod(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.getSignKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(signKey)
}

func (j *Manager) parse(tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithTimeFunc(j.config.Now),
		jwt.WithExpirationRequired(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, j.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !token.Valid {
		return ErrInvalid
	}
	return nil
}

func (j *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != j.getMethod().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(j.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := j.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return j.keyBytesToVerifyKey(key)
	}

	if j.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != j.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	return j.getVerifyKey()
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(j.config.PrivateKey)
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPublicKey(j.config.PublicKey)
	}
}

func (j *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
