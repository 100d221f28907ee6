package internaldefs

import (
	goOTP "github.com/MrEthical07/goOTP"
)

// CounterDef binds a counter to its exported name.
type CounterDef struct {
	ID   goOTP.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   goOTP.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goOTP.MetricCodeIssued, Name: "gootp_code_issued_total", Help: "Verification codes issued and handed to delivery."},
	{ID: goOTP.MetricCodeResendTooSoon, Name: "gootp_code_resend_too_soon_total", Help: "Issue requests rejected by the resend cooldown."},
	{ID: goOTP.MetricCodeDecoyIssued, Name: "gootp_code_decoy_issued_total", Help: "Reset records written for unknown emails without delivery."},
	{ID: goOTP.MetricCodeVerified, Name: "gootp_code_verified_total", Help: "Codes verified successfully."},
	{ID: goOTP.MetricCodeInvalid, Name: "gootp_code_invalid_total", Help: "Verification attempts with a wrong code."},
	{ID: goOTP.MetricCodeExpiredOrNotFound, Name: "gootp_code_expired_or_not_found_total", Help: "Verification attempts with no live code."},
	{ID: goOTP.MetricCodeAttemptsExceeded, Name: "gootp_code_attempts_exceeded_total", Help: "Codes discarded after the attempt budget was spent."},
	{ID: goOTP.MetricDeliverySuccess, Name: "gootp_delivery_success_total", Help: "Successful code deliveries."},
	{ID: goOTP.MetricDeliveryFailure, Name: "gootp_delivery_failure_total", Help: "Failed code deliveries."},
	{ID: goOTP.MetricDeliveryDropped, Name: "gootp_delivery_dropped_total", Help: "Async deliveries dropped because the queue was full."},
	{ID: goOTP.MetricSignupCompleted, Name: "gootp_signup_completed_total", Help: "Identities created from verified signups."},
	{ID: goOTP.MetricSignupDuplicate, Name: "gootp_signup_duplicate_total", Help: "Verified signups that lost the identity creation race."},
	{ID: goOTP.MetricLoginSuccess, Name: "gootp_login_success_total", Help: "Successful user logins."},
	{ID: goOTP.MetricLoginFailure, Name: "gootp_login_failure_total", Help: "Failed user logins."},
	{ID: goOTP.MetricAdminLoginSuccess, Name: "gootp_admin_login_success_total", Help: "Successful admin logins."},
	{ID: goOTP.MetricAdminLoginFailure, Name: "gootp_admin_login_failure_total", Help: "Failed admin logins."},
	{ID: goOTP.MetricLoginThrottled, Name: "gootp_login_throttled_total", Help: "Logins refused by the failed-attempt throttle."},
	{ID: goOTP.MetricPasswordRehashed, Name: "gootp_password_rehashed_total", Help: "Password hashes upgraded on login."},
	{ID: goOTP.MetricSessionCreated, Name: "gootp_session_created_total", Help: "Session tokens issued."},
	{ID: goOTP.MetricSessionRejected, Name: "gootp_session_rejected_total", Help: "Session tokens rejected as invalid, expired or revoked."},
	{ID: goOTP.MetricSessionForbidden, Name: "gootp_session_forbidden_total", Help: "Valid sessions rejected for lacking the required role."},
	{ID: goOTP.MetricLogout, Name: "gootp_logout_total", Help: "Logout operations."},
	{ID: goOTP.MetricPasswordResetAuthorized, Name: "gootp_password_reset_authorized_total", Help: "Reset authorizations issued after code verification."},
	{ID: goOTP.MetricPasswordResetCompleted, Name: "gootp_password_reset_completed_total", Help: "Passwords changed through the reset flow."},
	{ID: goOTP.MetricPasswordResetRejected, Name: "gootp_password_reset_rejected_total", Help: "Reset completions rejected as unauthorized."},
}

var HistogramDefs = []HistogramDef{
	{ID: goOTP.MetricValidateLatency, Name: "gootp_validate_latency_seconds", Help: "Session validation latency."},
}

var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

const (
	AuditDroppedName    = "gootp_audit_dropped_total"
	AuditDroppedHelp    = "Audit events dropped due to dispatcher backpressure."
	DeliveryBacklogName = "gootp_delivery_backlog"
	DeliveryBacklogHelp = "Deliveries waiting in the async queue."
)
