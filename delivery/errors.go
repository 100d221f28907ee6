package delivery

import "errors"

var (
	ErrInvalidConfig = errors.New("delivery: invalid config")
	ErrSendFailed    = errors.New("delivery: failed to send email")
)
