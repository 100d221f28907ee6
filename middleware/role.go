package middleware

import (
	"net/http"

	goOTP "github.com/MrEthical07/goOTP"
)

// RequireRole admits only sessions whose role equals role. There is no
// hierarchy: RequireRole(engine, goOTP.RoleUser) rejects ADMIN sessions.
func RequireRole(engine *goOTP.Engine, role goOTP.Role) func(http.Handler) http.Handler {
	return GuardWith(engine, role, DefaultErrorHandler)
}

// RequireAdmin is RequireRole for goOTP.RoleAdmin.
func RequireAdmin(engine *goOTP.Engine) func(http.Handler) http.Handler {
	return RequireRole(engine, goOTP.RoleAdmin)
}
