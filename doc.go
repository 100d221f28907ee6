// Package goOTP provides a verification-code and session-issuance engine:
// email ownership proof before signup or password reset, followed by signed
// bearer sessions for USER and ADMIN identities.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goOTP is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (IssueResult, Session, Claims, ResetAuthorization). Verification records, the
// revocation set, code generation and audit dispatch live under internal/ and are
// never exported. Identities are reached through [CredentialStore]; codes leave the
// process through [Deliverer].
//
// # Flows
//
//   - Signup: [Engine.RequestSignupCode] stages a profile, [Engine.VerifySignupCode]
//     creates the identity and returns a session.
//   - Login: [Engine.Login] and [Engine.LoginAdmin] check passwords against separate
//     role partitions.
//   - Reset: [Engine.RequestResetCode], [Engine.VerifyResetCode] and
//     [Engine.CompleteReset]. Responses do not reveal whether an email is registered.
//   - Sessions: [Engine.Validate], [Engine.Authorize] and [Engine.Logout].
//
// # What this package must NOT do
//
//   - Persist or log plaintext codes, passwords or tokens.
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Import any sub-package that re-imports goOTP (no import cycles).
package goOTP
