package lifecycle

import "errors"

// Error taxonomy for pipeline operations. Handlers map these to HTTP codes;
// nothing here is retried automatically except ErrUnavailable, which callers
// may safely resubmit because the failed operation was rolled back.
var (
	// ErrValidation reports malformed input.
	ErrValidation = errors.New("invalid input")
	// ErrNotFound covers both an unknown dataset and one the requester may
	// not access, so callers cannot probe for existence.
	ErrNotFound = errors.New("dataset not found")
	// ErrConflict reports a state-machine violation (transition from the
	// wrong status, incomplete review, duplicate request).
	ErrConflict = errors.New("conflicting dataset state")
	// ErrUnavailable reports a transient infrastructure failure; the
	// operation did not commit and may be retried.
	ErrUnavailable = errors.New("infrastructure unavailable")
)
