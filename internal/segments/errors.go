package segments

import "errors"

var (
	ErrNotFound       = errors.New("segment not found")
	ErrRetryExhausted = errors.New("segment retry not allowed")
)
