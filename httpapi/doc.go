// Package httpapi exposes the goOTP engine over JSON HTTP routes.
//
// Handler mounts the signup, login, logout and password-reset routes under
// /auth and the admin routes under /admin. Engine errors are mapped to status
// codes in one place (writeError); backend failures always surface as 503
// without detail.
//
// Reset request and resend routes answer 202 for registered and unknown
// emails alike. Only throttling is visible to the caller.
package httpapi
