package terminal

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalParam is returned for empty commands.
	ErrIllegalParam = errors.New("illegal parameter")

	// ErrIOFailed covers every failure reported by the telephony stack, both
	// at submission and at completion.
	ErrIOFailed = errors.New("i/o failed")

	// ErrTimeout is returned when a synchronous request sees no completion
	// within the request timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrNotInitialized is returned by requests on a terminal without a
	// telephony session. It matches ErrIOFailed.
	ErrNotInitialized = fmt.Errorf("terminal not initialized: %w", ErrIOFailed)

	// ErrInvalidInstance is returned when a plugin is asked to destroy a
	// terminal it does not own.
	ErrInvalidInstance = errors.New("instance is invalid")
)

// VendorError is a request that completed with a non-success access result.
// The access result is kept for diagnostics; callers are encouraged to use
// errors.Is(err, ErrIOFailed) rather than inspect it.
type VendorError struct {
	// Op is the request kind, "transmit" or "atr".
	Op     string
	Result AccessResult
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("%s completed with %s", e.Op, e.Result)
}

// Unwrap retrieves the accessible error type.
func (e *VendorError) Unwrap() error {
	return ErrIOFailed
}
