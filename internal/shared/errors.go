package shared

import "errors"

// Error taxonomy shared across command operations. Services wrap these with
// fmt.Errorf("...: %w", ...) so callers can switch on kind with errors.Is.
var (
	// ErrValidation indicates malformed input or a quantity exceeding its bound.
	ErrValidation = errors.New("validation failed")
	// ErrState indicates a transition attempted from the wrong state, including
	// the losing side of a concurrent double-transition.
	ErrState = errors.New("invalid state transition")
	// ErrConflict indicates a duplicate submission for the same period.
	ErrConflict = errors.New("already submitted")
	// ErrInsufficientStock indicates a release or consumption exceeding the
	// available balance. Non-fatal for offline sales, which are flagged instead.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrAuthorization indicates the actor lacks a required role or capability.
	ErrAuthorization = errors.New("not authorized")
	// ErrTransientStore indicates a network or backend failure safe to retry.
	ErrTransientStore = errors.New("transient store failure")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
)
