package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrClosed = errors.New("capture queue closed")
	ErrFull   = errors.New("capture queue full")
)
