package goOTP

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goOTP/internal/rate"
	"github.com/MrEthical07/goOTP/jwt"
)

// Login authenticates a USER by email and password.
func (e *Engine) Login(ctx context.Context, email, plainPassword string) (Session, error) {
	if e == nil {
		return Session{}, ErrEngineNotReady
	}
	return e.login(ctx, RoleUser, normalizeEmail(email), plainPassword)
}

// LoginAdmin authenticates an ADMIN by username and password. USER
// identities with the same key are never considered.
func (e *Engine) LoginAdmin(ctx context.Context, username, plainPassword string) (Session, error) {
	if e == nil {
		return Session{}, ErrEngineNotReady
	}
	return e.login(ctx, RoleAdmin, normalizeKey(username), plainPassword)
}

func (e *Engine) login(ctx context.Context, role Role, key, plainPassword string) (Session, error) {
	successMetric, failureMetric := MetricLoginSuccess, MetricLoginFailure
	if role == RoleAdmin {
		successMetric, failureMetric = MetricAdminLoginSuccess, MetricAdminLoginFailure
	}

	ip := clientIPFromContext(ctx)
	if e.logins != nil {
		if err := e.logins.CheckLogin(ctx, string(role), key, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricLoginThrottled)
				e.emitAudit(ctx, auditEventLoginFailure, false, auditFields{email: key}, ErrLoginThrottled, nil)
				return Session{}, ErrLoginThrottled
			}
			return Session{}, e.unavailable(ctx, "login.throttle", err)
		}
	}

	fail := func(userID string) (Session, error) {
		e.metricInc(failureMetric)
		if e.logins != nil && key != "" {
			if err := e.logins.RecordFailure(ctx, string(role), key, ip); err != nil {
				e.logger.WarnContext(ctx, "login failure not counted", slog.Any("error", err))
			}
		}
		e.emitAudit(ctx, auditEventLoginFailure, false, auditFields{userID: userID, email: key}, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"role": string(role)}
		})
		return Session{}, ErrInvalidCredentials
	}

	if key == "" || plainPassword == "" {
		return fail("")
	}

	identity, err := e.credentials.FindByEmailOrUsername(ctx, role, key)
	if err != nil {
		if !errors.Is(err, ErrIdentityNotFound) {
			return Session{}, e.unavailable(ctx, "credentials.find", err)
		}
		// Unknown keys pay for one hash evaluation like known ones.
		_, _ = e.passwordHash.Verify(plainPassword, e.dummyHash)
		return fail("")
	}

	ok, err := e.passwordHash.Verify(plainPassword, identity.PasswordHash)
	if err != nil {
		e.logger.ErrorContext(ctx, "stored password hash unreadable",
			slog.String("user_id", identity.ID),
			slog.Any("error", err),
		)
		return fail(identity.ID)
	}
	if !ok {
		return fail(identity.ID)
	}

	if e.config.Password.UpgradeOnLogin {
		e.upgradeHash(ctx, identity, plainPassword)
	}

	session, err := e.issueSession(ctx, identity)
	if err != nil {
		return Session{}, err
	}
	if e.logins != nil {
		if err := e.logins.ResetLogin(ctx, string(role), key); err != nil {
			e.logger.WarnContext(ctx, "login throttle not cleared", slog.Any("error", err))
		}
	}

	e.metricInc(successMetric)
	e.emitAudit(ctx, auditEventLoginSuccess, true, auditFields{userID: identity.ID, tokenID: session.TokenID}, nil, func() map[string]string {
		return map[string]string{"role": string(role)}
	})
	return session, nil
}

// upgradeHash rehashes with the current parameters. Failures are logged and
// do not fail the login.
func (e *Engine) upgradeHash(ctx context.Context, identity Identity, plainPassword string) {
	needs, err := e.passwordHash.NeedsRehash(identity.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.hashPassword(plainPassword)
	if err != nil {
		e.logger.WarnContext(ctx, "password rehash failed", slog.String("user_id", identity.ID), slog.Any("error", err))
		return
	}
	if err := e.credentials.UpdatePasswordHash(ctx, identity.ID, hash); err != nil {
		e.logger.WarnContext(ctx, "password rehash not stored", slog.String("user_id", identity.ID), slog.Any("error", err))
		return
	}
	e.metricInc(MetricPasswordRehashed)
}

func (e *Engine) sessionTTL(role Role) time.Duration {
	if role == RoleAdmin {
		return e.config.Session.AdminTTL
	}
	return e.config.Session.UserTTL
}

func (e *Engine) issueSession(ctx context.Context, identity Identity) (Session, error) {
	token, claims, err := e.jwtManager.CreateSession(identity.ID, string(identity.Role), e.sessionTTL(identity.Role))
	if err != nil {
		return Session{}, e.unavailable(ctx, "session.sign", err)
	}

	e.metricInc(MetricSessionCreated)
	return Session{
		Token:     token,
		TokenID:   claims.ID,
		Subject:   claims.Subject,
		Role:      identity.Role,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Validate verifies a session token and returns its claims. With revocation
// enabled a logged-out token reports ErrTokenRevoked.
func (e *Engine) Validate(ctx context.Context, token string) (Claims, error) {
	if e == nil {
		return Claims{}, ErrEngineNotReady
	}

	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	claims, err := e.parseSession(token)
	if err != nil {
		e.metricInc(MetricSessionRejected)
		return Claims{}, err
	}

	if e.revocations != nil {
		revoked, err := e.revocations.IsRevoked(ctx, claims.TokenID)
		if err != nil {
			return Claims{}, e.unavailable(ctx, "revocation.check", err)
		}
		if revoked {
			e.metricInc(MetricSessionRejected)
			return Claims{}, ErrTokenRevoked
		}
	}

	return claims, nil
}

// Authorize validates token and requires the exact role. There is no role
// hierarchy: an ADMIN token does not satisfy RoleUser.
func (e *Engine) Authorize(ctx context.Context, token string, required Role) (Claims, error) {
	claims, err := e.Validate(ctx, token)
	if err != nil {
		return Claims{}, err
	}
	if claims.Role != required {
		e.metricInc(MetricSessionForbidden)
		return Claims{}, ErrForbidden
	}
	return claims, nil
}

// Logout ends a session. Without revocation the token simply stays valid
// until it expires and the client is expected to discard it. Invalid tokens
// are acknowledged without effect.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	claims, err := e.parseSession(token)
	if err != nil {
		return nil
	}

	if e.revocations != nil {
		ttl := claims.ExpiresAt.Sub(e.clock.Now())
		if err := e.revocations.Revoke(ctx, claims.TokenID, ttl); err != nil {
			return e.unavailable(ctx, "revocation.revoke", err)
		}
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, auditFields{userID: claims.Subject, tokenID: claims.TokenID}, nil, nil)
	return nil
}

func (e *Engine) parseSession(token string) (Claims, error) {
	parsed, err := e.jwtManager.ParseSession(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}

	role := Role(parsed.Role)
	if !role.Valid() || parsed.IssuedAt == nil || parsed.ExpiresAt == nil {
		return Claims{}, ErrTokenInvalid
	}
	return Claims{
		Subject:   parsed.Subject,
		Role:      role,
		TokenID:   parsed.ID,
		IssuedAt:  parsed.IssuedAt.Time,
		ExpiresAt: parsed.ExpiresAt.Time,
	}, nil
}
