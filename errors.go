package goOTP

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidEmail is returned when an email fails syntax validation.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword is returned when a password violates the length policy.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidProfile is returned when signup names are missing or too long.
	ErrInvalidProfile = errors.New("invalid profile")

	// ErrResendTooSoon is wrapped by *ResendTooSoonError.
	ErrResendTooSoon = errors.New("resend too soon")

	// ErrCodeExpiredOrNotFound means no live code exists for the email and purpose.
	ErrCodeExpiredOrNotFound = errors.New("code expired or not found")
	// ErrInvalidCode means the submitted code did not match; one attempt was spent.
	ErrInvalidCode = errors.New("invalid code")
	// ErrTooManyAttempts means the attempt budget is spent and the code was discarded.
	ErrTooManyAttempts = errors.New("too many attempts")

	// ErrEmailAlreadyRegistered is returned on signup for an email that already has a USER identity.
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	// ErrNoPendingSignup is returned by ResendSignupCode when no signup is in flight.
	ErrNoPendingSignup = errors.New("no pending signup")

	// ErrInvalidCredentials is returned by login for any unknown key or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrLoginThrottled is returned while the failed-login budget for a key
	// or client IP is spent.
	ErrLoginThrottled = errors.New("too many login attempts")

	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")

	// ErrUnauthorizedReset is returned when a reset authorization is missing,
	// expired, issued for another email, or already used.
	ErrUnauthorizedReset = errors.New("unauthorized reset")
	// ErrForbidden is returned when a valid session lacks the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrUnavailable hides backend failures from callers. The cause is logged.
	ErrUnavailable = errors.New("service unavailable")
)

// Credential store errors. Implementations must return these (optionally
// wrapped) so the engine can classify outcomes.
var (
	ErrDuplicateIdentity = errors.New("identity already exists")
	ErrIdentityNotFound  = errors.New("identity not found")
)

// Engine construction errors.
var (
	ErrEngineNotReady = errors.New("engine is not initialized")
	ErrMissingRedis   = errors.New("redis client is required")
)

// ResendTooSoonError carries the wait before another code may be issued for
// the same email and purpose.
type ResendTooSoonError struct {
	RetryAfter time.Duration
}

func (e *ResendTooSoonError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrResendTooSoon, e.RetryAfter.Round(time.Second))
}

func (e *ResendTooSoonError) Unwrap() error {
	return ErrResendTooSoon
}
