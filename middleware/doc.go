// Package middleware exposes HTTP middleware that gates handlers on goOTP
// bearer sessions.
//
// # Guards
//
//   - [Guard] admits any valid session.
//   - [RequireRole] and [RequireAdmin] additionally require an exact role.
//   - [GuardWith] takes the role and a custom [ErrorHandler].
//
// Each guard reads the Authorization header, calls Engine.Validate or
// Engine.Authorize, and injects the verified claims into the request
// context, where [ClaimsFromContext] finds them.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
package middleware
