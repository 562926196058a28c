package manager

import "errors"

var (
	ErrListenerNotFound   = errors.New("listener not found")
	ErrInvalidWorkerCount = errors.New("worker count must be positive")
)
