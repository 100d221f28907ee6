package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
)

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorTable = []errorMapping{
	{goOTP.ErrInvalidEmail, http.StatusBadRequest, "INVALID_EMAIL"},
	{goOTP.ErrInvalidPassword, http.StatusBadRequest, "INVALID_PASSWORD"},
	{goOTP.ErrInvalidProfile, http.StatusBadRequest, "INVALID_PROFILE"},
	{goOTP.ErrInvalidCode, http.StatusBadRequest, "INVALID_CODE"},
	{goOTP.ErrCodeExpiredOrNotFound, http.StatusGone, "CODE_EXPIRED_OR_NOT_FOUND"},
	{goOTP.ErrTooManyAttempts, http.StatusGone, "TOO_MANY_ATTEMPTS"},
	{goOTP.ErrEmailAlreadyRegistered, http.StatusConflict, "EMAIL_ALREADY_REGISTERED"},
	{goOTP.ErrDuplicateIdentity, http.StatusConflict, "DUPLICATE_IDENTITY"},
	{goOTP.ErrNoPendingSignup, http.StatusNotFound, "NO_PENDING_SIGNUP"},
	{goOTP.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{goOTP.ErrTokenExpired, http.StatusUnauthorized, "EXPIRED_TOKEN"},
	{goOTP.ErrTokenRevoked, http.StatusUnauthorized, "REVOKED_TOKEN"},
	{goOTP.ErrTokenInvalid, http.StatusUnauthorized, "INVALID_TOKEN"},
	{goOTP.ErrUnauthorizedReset, http.StatusUnauthorized, "UNAUTHORIZED_RESET"},
	{goOTP.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{goOTP.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
	{goOTP.ErrEngineNotReady, http.StatusServiceUnavailable, "UNAVAILABLE"},
}

// writeError maps an engine error to its status and stable error code.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooSoon *goOTP.ResendTooSoonError
	switch {
	case errors.As(err, &tooSoon):
		w.Header().Set("Retry-After", retryAfterSeconds(tooSoon.RetryAfter))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "RESEND_TOO_SOON", Message: err.Error()})
		return
	case errors.Is(err, goOTP.ErrLoginThrottled):
		w.Header().Set("Retry-After", retryAfterSeconds(h.loginRetryAfter))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "LOGIN_THROTTLED", Message: err.Error()})
		return
	}

	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			if m.status == http.StatusUnauthorized && m.code != "INVALID_CREDENTIALS" && m.code != "UNAUTHORIZED_RESET" {
				w.Header().Set("WWW-Authenticate", "Bearer")
			}
			writeJSON(w, m.status, errorBody{Error: m.code, Message: m.target.Error()})
			return
		}
	}

	h.logger.ErrorContext(r.Context(), "unmapped engine error",
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "INTERNAL", Message: "internal error"})
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "MALFORMED_REQUEST", Message: msg})
}
