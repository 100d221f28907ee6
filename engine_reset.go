package goOTP

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
)

// RequestResetCode starts a password reset. The result is the same whether
// or not the email is registered: unknown emails get a decoy record that is
// never delivered, so throttling applies to them too.
func (e *Engine) RequestResetCode(ctx context.Context, email string) (IssueResult, error) {
	if e == nil {
		return IssueResult{}, ErrEngineNotReady
	}
	return e.issueReset(ctx, email)
}

// ResendResetCode replaces the outstanding reset code. It is subject to the
// same cooldown as RequestResetCode and answers identically for unknown
// emails.
func (e *Engine) ResendResetCode(ctx context.Context, email string) (IssueResult, error) {
	if e == nil {
		return IssueResult{}, ErrEngineNotReady
	}
	return e.issueReset(ctx, email)
}

func (e *Engine) issueReset(ctx context.Context, email string) (IssueResult, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return IssueResult{}, err
	}

	known := true
	if _, err := e.credentials.FindByEmailOrUsername(ctx, RoleUser, email); err != nil {
		if !errors.Is(err, ErrIdentityNotFound) {
			return IssueResult{}, e.unavailable(ctx, "credentials.find", err)
		}
		known = false
	}

	result, err := e.issue(ctx, issueRequest{
		email:   email,
		purpose: PurposePasswordReset,
		mode:    issueFresh,
		deliver: known,
	})
	// Delivery outcome would reveal whether the email exists.
	result.DeliveryFailed = false

	fields := auditFields{email: email, purpose: PurposePasswordReset}
	if err != nil {
		e.emitAudit(ctx, auditEventCodeIssueFailure, false, fields, err, nil)
		return result, err
	}
	if known {
		e.auditIssue(ctx, email, PurposePasswordReset, result, nil)
	}
	return result, nil
}

// VerifyResetCode confirms a reset code and returns a short-lived
// authorization for CompleteReset.
func (e *Engine) VerifyResetCode(ctx context.Context, email, code string) (ResetAuthorization, error) {
	if e == nil {
		return ResetAuthorization{}, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return ResetAuthorization{}, err
	}

	fields := auditFields{email: email, purpose: PurposePasswordReset}
	if _, err := e.verify(ctx, email, PurposePasswordReset, code); err != nil {
		e.emitAudit(ctx, auditEventCodeVerifyFailure, false, fields, err, nil)
		return ResetAuthorization{}, err
	}

	identity, err := e.credentials.FindByEmailOrUsername(ctx, RoleUser, email)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			// Decoy record, or the identity disappeared since issuance.
			return ResetAuthorization{}, ErrCodeExpiredOrNotFound
		}
		return ResetAuthorization{}, e.unavailable(ctx, "credentials.find", err)
	}

	token, claims, err := e.jwtManager.CreateReset(identity.ID, email, e.resetFingerprint(identity.PasswordHash), e.config.Session.ResetTTL)
	if err != nil {
		return ResetAuthorization{}, e.unavailable(ctx, "reset.sign", err)
	}

	e.metricInc(MetricPasswordResetAuthorized)
	fields.userID = identity.ID
	e.emitAudit(ctx, auditEventCodeVerified, true, fields, nil, nil)
	return ResetAuthorization{Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// CompleteReset sets a new password using an authorization from
// VerifyResetCode. The authorization is bound to the password hash it was
// issued against, so it stops working once any password change lands.
// Two concurrent calls with the same authorization may both succeed; the
// later write wins.
func (e *Engine) CompleteReset(ctx context.Context, email, newPassword, authorization string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	fields := auditFields{email: email, purpose: PurposePasswordReset}
	reject := func(userID string) error {
		e.metricInc(MetricPasswordResetRejected)
		fields.userID = userID
		e.emitAudit(ctx, auditEventResetRejected, false, fields, ErrUnauthorizedReset, nil)
		return ErrUnauthorizedReset
	}

	claims, err := e.jwtManager.ParseReset(authorization)
	if err != nil || claims.Email != email {
		return reject("")
	}

	if err := e.validatePassword(newPassword); err != nil {
		return err
	}

	identity, err := e.credentials.FindByEmailOrUsername(ctx, RoleUser, email)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return reject(claims.Subject)
		}
		return e.unavailable(ctx, "credentials.find", err)
	}
	if identity.ID != claims.Subject {
		return reject(identity.ID)
	}
	expected := e.resetFingerprint(identity.PasswordHash)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(claims.Fingerprint)) != 1 {
		return reject(identity.ID)
	}

	hash, err := e.hashPassword(newPassword)
	if err != nil {
		return e.unavailable(ctx, "password.hash", err)
	}
	if err := e.credentials.UpdatePasswordHash(ctx, identity.ID, hash); err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return reject(identity.ID)
		}
		return e.unavailable(ctx, "credentials.update", err)
	}

	if e.logins != nil {
		if err := e.logins.ResetLogin(ctx, string(RoleUser), email); err != nil {
			e.logger.WarnContext(ctx, "login throttle not cleared", slog.Any("error", err))
		}
	}

	e.metricInc(MetricPasswordResetCompleted)
	e.emitAudit(ctx, auditEventPasswordReset, true, auditFields{userID: identity.ID, email: email, tokenID: claims.ID}, nil, nil)
	return nil
}
