// Package jwt signs and verifies the two token kinds issued by the engine:
// bearer sessions and short-lived password-reset authorizations. Both share
// key material and validation rules but carry a kind claim, so one can never
// be presented as the other.
package jwt
