package goOTP

import (
	"context"
	"time"

	"github.com/MrEthical07/goOTP/internal/otp"
	"github.com/MrEthical07/goOTP/internal/stores"
)

type issueMode uint8

const (
	// issueFresh overwrites whatever exists once the cooldown has passed.
	issueFresh issueMode = iota
	// issueResend requires a live record and keeps its pending profile.
	issueResend
)

type issueRequest struct {
	email   string
	purpose Purpose
	profile *stores.PendingProfile
	mode    issueMode
	// deliver is false for decoy records written for unknown reset emails.
	deliver bool
}

// issue generates a code, stores its digest with a full attempt budget and
// hands the plaintext to delivery. The cooldown check and the write are one
// atomic step in Redis.
func (e *Engine) issue(ctx context.Context, req issueRequest) (IssueResult, error) {
	code, err := e.newCode()
	if err != nil {
		return IssueResult{}, e.unavailable(ctx, "otp.generate", err)
	}

	now := e.clock.Now()
	record := &stores.VerificationRecord{
		Purpose:           uint8(req.purpose),
		AttemptsRemaining: uint16(e.config.OTP.MaxAttempts),
		CreatedAt:         now.UnixMilli(),
		ExpiresAt:         now.Add(e.config.OTP.CodeTTL).UnixMilli(),
		CodeHash:          otp.Digest(e.pepper, byte(req.purpose), req.email, code),
		Profile:           req.profile,
	}

	if req.mode == issueResend {
		err = e.store.Reissue(ctx, req.email, record, now, e.config.OTP.ResendCooldown)
	} else {
		err = e.store.Put(ctx, req.email, record, now, e.config.OTP.ResendCooldown)
	}
	if err != nil {
		mapped := e.mapVerificationStoreError(ctx, "verification.issue", err)
		if _, tooSoon := mapped.(*ResendTooSoonError); tooSoon {
			e.metricInc(MetricCodeResendTooSoon)
		}
		return IssueResult{}, mapped
	}

	result := IssueResult{
		Email:       req.email,
		Purpose:     req.purpose,
		ExpiresAt:   time.UnixMilli(record.ExpiresAt),
		ResendAfter: now.Add(e.config.OTP.ResendCooldown),
	}

	if !req.deliver {
		e.metricInc(MetricCodeDecoyIssued)
		return result, nil
	}

	e.metricInc(MetricCodeIssued)
	if err := e.delivery.Send(ctx, Delivery{Email: req.email, Purpose: req.purpose, Code: code}); err != nil {
		result.DeliveryFailed = true
	}
	return result, nil
}
