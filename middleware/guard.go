package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goOTP "github.com/MrEthical07/goOTP"
)

type claimsContextKey struct{}

// ErrorHandler writes the rejection for a request that failed a guard.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// ClaimsFromContext returns the claims stored by Guard or RequireRole.
func ClaimsFromContext(ctx context.Context) (goOTP.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(goOTP.Claims)
	return claims, ok
}

// WithClaims stores claims the way the guards do. Useful in handler tests.
func WithClaims(ctx context.Context, claims goOTP.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// Guard admits requests carrying a valid bearer session of any role.
func Guard(engine *goOTP.Engine) func(http.Handler) http.Handler {
	return GuardWith(engine, "", DefaultErrorHandler)
}

// GuardWith is Guard with an optional required role and a custom error
// writer. An empty role admits any valid session.
func GuardWith(engine *goOTP.Engine, role goOTP.Role, onError ErrorHandler) func(http.Handler) http.Handler {
	if onError == nil {
		onError = DefaultErrorHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				onError(w, r, goOTP.ErrEngineNotReady)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				onError(w, r, goOTP.ErrTokenInvalid)
				return
			}

			var (
				claims goOTP.Claims
				err    error
			)
			if role == "" {
				claims, err = engine.Validate(r.Context(), token)
			} else {
				claims, err = engine.Authorize(r.Context(), token, role)
			}
			if err != nil {
				onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// DefaultErrorHandler answers 403 for a valid session with the wrong role,
// 503 when the backend is down and 401 otherwise.
func DefaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	switch {
	case errors.Is(err, goOTP.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, goOTP.ErrUnavailable), errors.Is(err, goOTP.ErrEngineNotReady):
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	default:
		w.Header().Set("WWW-Authenticate", `Bearer`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
