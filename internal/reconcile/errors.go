package reconcile

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/itinerary-cli/internal/store"
)

// Kind classifies engine errors for callers.
type Kind string

const (
	// KindInput is an unusable request, rejected before any service call.
	KindInput Kind = "input"
	// KindUpstream is a failed, timed-out or malformed service call. Nothing
	// was mutated and the call may be retried.
	KindUpstream Kind = "upstream"
	// KindStaleResolution answers a clarification request that is no longer open.
	KindStaleResolution Kind = "stale_resolution"
	// KindValidation is a well-formed request with an invalid choice.
	KindValidation Kind = "validation"
	// KindNotFound names a trip or item that does not exist.
	KindNotFound Kind = "not_found"
)

// Error is an engine error with a Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or "" when err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether repeating the same call could succeed.
func IsRetryable(err error) bool {
	return KindOf(err) == KindUpstream
}

func inputError(msg string) error {
	return &Error{Kind: KindInput, Message: msg}
}

func upstreamError(err error) error {
	return &Error{Kind: KindUpstream, Message: "reconstruction service failed", Err: err}
}

func staleError(pendingID, reason string) error {
	return &Error{Kind: KindStaleResolution, Message: fmt.Sprintf("pending action %s is %s", pendingID, reason)}
}

func validationError(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

// storeError maps store.ErrNotFound to KindNotFound and wraps anything else.
func storeError(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return &Error{Kind: KindNotFound, Message: msg, Err: err}
	}
	return eris.Wrap(err, "reconcile: "+msg)
}
