// Package stores provides the Redis-backed state behind one-time codes and
// session revocation.
//
// # Design
//
// A verification record is a versioned binary value keyed by purpose and
// email. Issuance runs as a single Lua script so the cooldown check and the
// overwrite cannot interleave with another issuer. Consumption uses a
// WATCH/MULTI optimistic transaction retried on contention, so two callers
// presenting the same correct code see exactly one success.
//
// Code digests are compared in constant time. Plaintext codes never reach
// this package.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control only. Code
// generation, delivery and authentication decisions belong to the engine.
package stores
