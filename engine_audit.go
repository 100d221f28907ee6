package goOTP

import (
	"context"
	"errors"
)

const (
	auditEventCodeIssued        = "code_issued"
	auditEventCodeIssueFailure  = "code_issue_failure"
	auditEventCodeVerified      = "code_verified"
	auditEventCodeVerifyFailure = "code_verify_failure"
	auditEventDeliveryFailure   = "delivery_failure"
	auditEventIdentityCreated   = "identity_created"
	auditEventLoginSuccess      = "login_success"
	auditEventLoginFailure      = "login_failure"
	auditEventLogout            = "logout"
	auditEventPasswordReset     = "password_reset"
	auditEventResetRejected     = "password_reset_rejected"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrRateLimited        AuditErrorCode = "resend_too_soon"
	auditErrCodeNotFound       AuditErrorCode = "code_expired_or_not_found"
	auditErrCodeInvalid        AuditErrorCode = "invalid_code"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrNoPending          AuditErrorCode = "no_pending_signup"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrLoginThrottled     AuditErrorCode = "login_throttled"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUnauthorizedReset  AuditErrorCode = "unauthorized_reset"
	auditErrDelivery           AuditErrorCode = "delivery_error"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

type auditFields struct {
	userID  string
	email   string
	purpose Purpose
	tokenID string
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	fields auditFields,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.clock.Now().UTC(),
		EventType: eventType,
		UserID:    fields.userID,
		Email:     fields.email,
		TokenID:   fields.tokenID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if fields.purpose != 0 {
		event.Purpose = fields.purpose.String()
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrInvalidPassword),
		errors.Is(err, ErrInvalidProfile):
		return auditErrValidation
	case errors.Is(err, ErrResendTooSoon):
		return auditErrRateLimited
	case errors.Is(err, ErrCodeExpiredOrNotFound):
		return auditErrCodeNotFound
	case errors.Is(err, ErrInvalidCode):
		return auditErrCodeInvalid
	case errors.Is(err, ErrTooManyAttempts):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrEmailAlreadyRegistered),
		errors.Is(err, ErrDuplicateIdentity):
		return auditErrDuplicate
	case errors.Is(err, ErrNoPendingSignup):
		return auditErrNoPending
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginThrottled):
		return auditErrLoginThrottled
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenRevoked):
		return auditErrInvalidToken
	case errors.Is(err, ErrUnauthorizedReset):
		return auditErrUnauthorizedReset
	case errors.Is(err, errDelivery):
		return auditErrDelivery
	case errors.Is(err, ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
