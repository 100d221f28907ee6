// Package credstore provides goOTP.CredentialStore implementations.
//
// [Memory] keeps identities in process and suits tests and single-node
// development. [Mongo] persists them in a MongoDB collection and enforces
// the (role, key) uniqueness with a unique compound index, so concurrent
// signups for the same email produce exactly one identity.
package credstore
