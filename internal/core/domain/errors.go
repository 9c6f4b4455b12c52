package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	// ErrTemporary marks transient provider faults (timeouts, rate
	// limits); callers may retry or fail over.
	ErrTemporary = errors.New("temporary failure")
	// ErrRejected marks fatal per-request provider rejections (malformed
	// request, content policy); never retried or failed over.
	ErrRejected = errors.New("request rejected")
	// ErrRetrievalUnavailable: every query variant failed on both channels.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrGenerationUnavailable: the whole provider chain is exhausted.
	ErrGenerationUnavailable = errors.New("generation unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", operation, kind)
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
