package goOTP

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/MrEthical07/goOTP/internal/audit"
	"github.com/MrEthical07/goOTP/internal/rate"
	"github.com/MrEthical07/goOTP/internal/stores"
	"github.com/MrEthical07/goOTP/jwt"
	"github.com/MrEthical07/goOTP/password"
)

// Engine runs the signup, login, session and password-reset flows. All
// methods are safe for concurrent use.
type Engine struct {
	config      Config
	store       *stores.VerificationStore
	revocations *stores.RevocationStore
	logins      *rate.Limiter
	credentials CredentialStore
	delivery    *deliveryDispatcher
	audit       *audit.Dispatcher
	metrics     *Metrics

	passwordHash *password.Hasher
	dummyHash    string
	jwtManager   *jwt.Manager

	logger   *slog.Logger
	clock    Clock
	random   io.Reader
	pepper   []byte
	alphabet string
	newCode  func() (string, error)

	hashPassword func(plain string) (string, error)
}

// Close drains pending deliveries and audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.delivery.Close()
	if e.audit != nil {
		e.audit.Close()
	}
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// DeliveryBacklog reports queued async deliveries.
func (e *Engine) DeliveryBacklog() int {
	if e == nil {
		return 0
	}
	return e.delivery.Backlog()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// reportDelivery is called once per delivery attempt, from the request
// goroutine in sync mode or from a worker in async mode.
func (e *Engine) reportDelivery(ctx context.Context, d Delivery, err error) {
	if err == nil {
		e.metricInc(MetricDeliverySuccess)
		return
	}

	if errors.Is(err, errDeliveryQueueFull) {
		e.metricInc(MetricDeliveryDropped)
	} else {
		e.metricInc(MetricDeliveryFailure)
	}
	e.logger.WarnContext(ctx, "code delivery failed",
		slog.String("purpose", d.Purpose.String()),
		slog.String("email", d.Email),
		slog.Any("error", err),
	)
	e.emitAudit(ctx, auditEventDeliveryFailure, false, auditFields{email: d.Email, purpose: d.Purpose}, err, nil)
}

// unavailable logs the backend cause and returns the opaque public error.
func (e *Engine) unavailable(ctx context.Context, op string, err error) error {
	e.logger.ErrorContext(ctx, "backend failure", slog.String("op", op), slog.Any("error", err))
	return ErrUnavailable
}

// mapVerificationStoreError translates store outcomes into public errors.
func (e *Engine) mapVerificationStoreError(ctx context.Context, op string, err error) error {
	var cooldown *stores.CooldownError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &cooldown):
		return &ResendTooSoonError{RetryAfter: cooldown.Remaining}
	case errors.Is(err, stores.ErrNoPendingRecord):
		return ErrNoPendingSignup
	case errors.Is(err, stores.ErrRecordNotFound):
		return ErrCodeExpiredOrNotFound
	case errors.Is(err, stores.ErrCodeMismatch):
		return ErrInvalidCode
	case errors.Is(err, stores.ErrAttemptsExhausted):
		return ErrTooManyAttempts
	default:
		return e.unavailable(ctx, op, err)
	}
}

// resetFingerprint binds a reset authorization to the password hash it was
// issued against. Any password change invalidates outstanding authorizations.
func (e *Engine) resetFingerprint(passwordHash string) string {
	mac := hmac.New(sha256.New, e.pepper)
	mac.Write([]byte("reset-fingerprint\x00"))
	mac.Write([]byte(passwordHash))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
