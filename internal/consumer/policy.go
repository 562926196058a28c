package consumer

import (
	"errors"
	"fmt"
	"strings"
)

// DeletionPolicy decides whether a handled delivery is deleted from its queue.
type DeletionPolicy int

const (
	OnSuccess DeletionPolicy = iota
	Always
	Never
	NoRedrive
)

var ErrUnknownDeletionPolicy = errors.New("unknown deletion policy")

func ParseDeletionPolicy(s string) (DeletionPolicy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ON_SUCCESS":
		return OnSuccess, nil
	case "ALWAYS":
		return Always, nil
	case "NEVER":
		return Never, nil
	case "NO_REDRIVE":
		return NoRedrive, nil
	}
	return OnSuccess, fmt.Errorf("%w: %q", ErrUnknownDeletionPolicy, s)
}

func (p DeletionPolicy) String() string {
	switch p {
	case Always:
		return "ALWAYS"
	case Never:
		return "NEVER"
	case NoRedrive:
		return "NO_REDRIVE"
	default:
		return "ON_SUCCESS"
	}
}

// ShouldDelete reports whether a delivery whose handler returned handlerErr
// must be deleted. hasRedrive tells if the queue routes failures to a
// dead-letter queue.
func (p DeletionPolicy) ShouldDelete(handlerErr error, hasRedrive bool) bool {
	switch p {
	case Always:
		return true
	case Never:
		return false
	case NoRedrive:
		return handlerErr == nil || !hasRedrive
	default:
		return handlerErr == nil
	}
}
