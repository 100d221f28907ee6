package rate

import "errors"

var (
	// ErrRateLimited means the failure budget for the window is spent.
	ErrRateLimited      = errors.New("rate limited")
	ErrRedisUnavailable = errors.New("redis unavailable")
)
