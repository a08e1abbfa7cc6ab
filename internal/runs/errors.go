package runs

import "errors"

var (
	ErrNotFound       = errors.New("analysis run not found")
	ErrRunActive      = errors.New("document already has an active analysis run")
	ErrRunNotTerminal = errors.New("analysis run is still active")
	ErrRunTerminal    = errors.New("analysis run already finished")
)
