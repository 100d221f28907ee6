package goOTP

import (
	"context"
	"errors"

	"github.com/MrEthical07/goOTP/internal/otp"
	"github.com/MrEthical07/goOTP/internal/stores"
)

// verify checks code against the live record for (email, purpose) and
// consumes it on a match. Expired and exhausted records are removed; a
// mismatch spends one attempt. The whole check runs as one optimistic
// transaction, so concurrent callers with the same correct code see exactly
// one success.
func (e *Engine) verify(ctx context.Context, email string, purpose Purpose, code string) (*stores.VerificationRecord, error) {
	code = otp.Normalize(code, e.alphabet)
	if !otp.WellFormed(code, e.alphabet, e.config.OTP.Length) {
		// Cannot match any issued code, so no attempt is spent.
		e.metricInc(MetricCodeInvalid)
		return nil, ErrInvalidCode
	}

	digest := otp.Digest(e.pepper, byte(purpose), email, code)
	record, err := e.store.Consume(ctx, uint8(purpose), email, digest, e.clock.Now())
	if err != nil {
		mapped := e.mapVerificationStoreError(ctx, "verification.consume", err)
		switch {
		case errors.Is(mapped, ErrInvalidCode):
			e.metricInc(MetricCodeInvalid)
		case errors.Is(mapped, ErrTooManyAttempts):
			e.metricInc(MetricCodeAttemptsExceeded)
		case errors.Is(mapped, ErrCodeExpiredOrNotFound):
			e.metricInc(MetricCodeExpiredOrNotFound)
		}
		return nil, mapped
	}

	e.metricInc(MetricCodeVerified)
	return record, nil
}
