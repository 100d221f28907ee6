// Package audit relays security events (code issued, code verified, login,
// logout, reset) to a caller-supplied sink without blocking request paths.
//
// [Dispatcher] buffers events on a channel drained by one goroutine. When
// DropIfFull is set a full buffer drops the event and counts it; otherwise
// Emit waits for space or for ctx.
//
// The package decides nothing about which events exist. The engine does.
package audit
