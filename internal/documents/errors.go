package documents

import "errors"

var (
	ErrNotFound     = errors.New("document not found")
	ErrInvalidInput = errors.New("invalid document input")
	ErrTooLarge     = errors.New("document text exceeds the configured limit")
)
