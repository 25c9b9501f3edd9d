package royalmail

import (
	"errors"
	"fmt"
)

// CarrierError represents an error returned by the Royal Mail API.
type CarrierError struct {
	Code       string
	Message    string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *CarrierError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("royalmail error (%s): %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("royalmail error (%s): %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CarrierError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for CarrierError.
func (e *CarrierError) Is(target error) bool {
	t, ok := target.(*CarrierError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewCarrierError creates a new CarrierError.
func NewCarrierError(code, message string) *CarrierError {
	return &CarrierError{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *CarrierError) WithCause(err error) *CarrierError {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
func (e *CarrierError) WithStatusCode(code int) *CarrierError {
	e.StatusCode = code
	return e
}

// Sentinel errors for the batch pipeline's error taxonomy.
var (
	// ErrAuthFailed indicates the token exchange failed. Fatal to the
	// whole batch: no carrier call can be authorized without a token.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRejected indicates the carrier returned a structured error
	// payload for a shipment. Recorded per order, non-fatal.
	ErrRejected = errors.New("shipment rejected by carrier")

	// ErrTransport indicates a network-level failure reaching the
	// carrier. Triggers a fallback label for the affected order.
	ErrTransport = errors.New("carrier unreachable")
)

// IsFatal reports whether an error must abort the entire batch rather
// than a single order.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}
