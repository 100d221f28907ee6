package goOTP

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goOTP/internal/stores"
)

// RequestSignupCode stages a signup profile and sends a verification code to
// its email. The password is hashed before it is staged; nothing is created
// until the code is confirmed.
func (e *Engine) RequestSignupCode(ctx context.Context, req SignupRequest) (IssueResult, error) {
	if e == nil {
		return IssueResult{}, ErrEngineNotReady
	}

	req.Email = normalizeEmail(req.Email)
	if err := e.validateSignup(&req); err != nil {
		e.emitAudit(ctx, auditEventCodeIssueFailure, false, auditFields{email: req.Email, purpose: PurposeSignup}, err, nil)
		return IssueResult{}, err
	}

	if err := e.ensureEmailAvailable(ctx, req.Email); err != nil {
		e.emitAudit(ctx, auditEventCodeIssueFailure, false, auditFields{email: req.Email, purpose: PurposeSignup}, err, nil)
		return IssueResult{}, err
	}

	// Throttled requests must not reach Argon2. The issue script re-checks atomically.
	if err := e.store.CheckCooldown(ctx, uint8(PurposeSignup), req.Email, e.clock.Now(), e.config.OTP.ResendCooldown); err != nil {
		mapped := e.mapVerificationStoreError(ctx, "verification.cooldown", err)
		if _, tooSoon := mapped.(*ResendTooSoonError); tooSoon {
			e.metricInc(MetricCodeResendTooSoon)
		}
		e.auditIssue(ctx, req.Email, PurposeSignup, IssueResult{}, mapped)
		return IssueResult{}, mapped
	}

	hash, err := e.hashPassword(req.Password)
	if err != nil {
		return IssueResult{}, e.unavailable(ctx, "password.hash", err)
	}

	result, err := e.issue(ctx, issueRequest{
		email:   req.Email,
		purpose: PurposeSignup,
		profile: &stores.PendingProfile{
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			PasswordHash: hash,
		},
		mode:    issueFresh,
		deliver: true,
	})
	e.auditIssue(ctx, req.Email, PurposeSignup, result, err)
	return result, err
}

// ResendSignupCode issues a fresh code for an in-flight signup, keeping the
// staged profile. The previous code stops working.
func (e *Engine) ResendSignupCode(ctx context.Context, email string) (IssueResult, error) {
	if e == nil {
		return IssueResult{}, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return IssueResult{}, err
	}

	result, err := e.issue(ctx, issueRequest{
		email:   email,
		purpose: PurposeSignup,
		mode:    issueResend,
		deliver: true,
	})
	e.auditIssue(ctx, email, PurposeSignup, result, err)
	return result, err
}

// VerifySignupCode confirms a signup code, creates the USER identity from
// the staged profile and opens a session for it.
func (e *Engine) VerifySignupCode(ctx context.Context, email, code string) (SignupResult, error) {
	if e == nil {
		return SignupResult{}, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return SignupResult{}, err
	}

	record, err := e.verify(ctx, email, PurposeSignup, code)
	if err != nil {
		e.emitAudit(ctx, auditEventCodeVerifyFailure, false, auditFields{email: email, purpose: PurposeSignup}, err, nil)
		return SignupResult{}, err
	}
	if record.Profile == nil {
		e.logger.ErrorContext(ctx, "signup record without profile")
		return SignupResult{}, ErrCodeExpiredOrNotFound
	}

	identity, err := e.credentials.CreateIdentity(ctx, NewIdentity{
		EmailOrUsername: email,
		PasswordHash:    record.Profile.PasswordHash,
		Role:            RoleUser,
		FirstName:       record.Profile.FirstName,
		LastName:        record.Profile.LastName,
		CreatedAt:       e.clock.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			e.metricInc(MetricSignupDuplicate)
			e.emitAudit(ctx, auditEventCodeVerifyFailure, false, auditFields{email: email, purpose: PurposeSignup}, ErrEmailAlreadyRegistered, nil)
			return SignupResult{}, ErrEmailAlreadyRegistered
		}
		// The code was spent by verify; put it back so the user can retry.
		if restoreErr := e.store.Restore(ctx, email, record, e.clock.Now()); restoreErr != nil {
			e.logger.WarnContext(ctx, "signup record restore failed", slog.String("email", email), slog.Any("error", restoreErr))
		}
		return SignupResult{}, e.unavailable(ctx, "credentials.create", err)
	}

	e.metricInc(MetricSignupCompleted)
	e.emitAudit(ctx, auditEventCodeVerified, true, auditFields{userID: identity.ID, email: email, purpose: PurposeSignup}, nil, nil)
	e.emitAudit(ctx, auditEventIdentityCreated, true, auditFields{userID: identity.ID, email: email}, nil, func() map[string]string {
		return map[string]string{"role": string(identity.Role)}
	})

	session, err := e.issueSession(ctx, identity)
	if err != nil {
		return SignupResult{}, err
	}
	return SignupResult{Identity: identity, Session: session}, nil
}

// CreateAdmin provisions an ADMIN identity. It is a privileged operation
// and is not reachable over HTTP.
func (e *Engine) CreateAdmin(ctx context.Context, username, plainPassword string) (Identity, error) {
	if e == nil {
		return Identity{}, ErrEngineNotReady
	}

	username = normalizeKey(username)
	if err := validateUsername(username); err != nil {
		return Identity{}, err
	}
	if err := e.validatePassword(plainPassword); err != nil {
		return Identity{}, err
	}

	hash, err := e.hashPassword(plainPassword)
	if err != nil {
		return Identity{}, e.unavailable(ctx, "password.hash", err)
	}

	identity, err := e.credentials.CreateIdentity(ctx, NewIdentity{
		EmailOrUsername: username,
		PasswordHash:    hash,
		Role:            RoleAdmin,
		CreatedAt:       e.clock.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			return Identity{}, ErrDuplicateIdentity
		}
		return Identity{}, e.unavailable(ctx, "credentials.create", err)
	}

	e.emitAudit(ctx, auditEventIdentityCreated, true, auditFields{userID: identity.ID}, nil, func() map[string]string {
		return map[string]string{"role": string(RoleAdmin)}
	})
	return identity, nil
}

func (e *Engine) ensureEmailAvailable(ctx context.Context, email string) error {
	_, err := e.credentials.FindByEmailOrUsername(ctx, RoleUser, email)
	switch {
	case err == nil:
		return ErrEmailAlreadyRegistered
	case errors.Is(err, ErrIdentityNotFound):
		return nil
	default:
		return e.unavailable(ctx, "credentials.find", err)
	}
}

func (e *Engine) auditIssue(ctx context.Context, email string, purpose Purpose, result IssueResult, err error) {
	fields := auditFields{email: email, purpose: purpose}
	if err != nil {
		e.emitAudit(ctx, auditEventCodeIssueFailure, false, fields, err, nil)
		return
	}
	e.emitAudit(ctx, auditEventCodeIssued, true, fields, nil, func() map[string]string {
		return map[string]string{
			"expires_at": result.ExpiresAt.UTC().Format(time.RFC3339),
		}
	})
}
