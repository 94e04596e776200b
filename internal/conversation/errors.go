package conversation

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrTransport         = errors.New("transport error")
	ErrNotFound          = errors.New("conversation not found")
	ErrMalformedResponse = errors.New("malformed response")
)

// ValidationError reports invalid input or a broken message invariant.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ErrValidation.Error()
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s (%s): %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// TransportError reports a failed round trip: network failure, a non-2xx
// status, or an upstream that answered with an error status.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ErrTransport.Error()
	}
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: API error %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: API error %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, ErrTransport)
}

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError reports a payload missing required fields.
type MalformedResponseError struct {
	Op     string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	if e == nil {
		return ErrMalformedResponse.Error()
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, ErrMalformedResponse, e.Reason)
}

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }
