// Package rate implements the failed-login throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key layout
// under the configured prefix:
//   - login:<role>:<key>: failures per identity key
//   - ip:<addr>: failures per client IP
//
// Counters exist for unknown keys as well, so a throttled response says
// nothing about whether an account exists.
package rate
