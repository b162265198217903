package mediaregistry

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrInvalidArgument indicates malformed input the caller can correct
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates the target record is absent or has been deleted
	ErrNotFound = errors.New("media not found")

	// ErrNotOwner indicates the caller does not own the target record
	ErrNotOwner = errors.New("caller is not the media owner")

	// ErrNotAdmin indicates the caller is not the registry administrator
	ErrNotAdmin = errors.New("caller is not the registry admin")

	// ErrSuspended indicates the registry is paused
	ErrSuspended = errors.New("registry is paused")

	// ErrAlreadyPaused indicates pause was requested while paused
	ErrAlreadyPaused = errors.New("registry is already paused")

	// ErrNotPaused indicates unpause was requested while active
	ErrNotPaused = errors.New("registry is not paused")

	// ErrConflict indicates a repository write collided with existing state
	ErrConflict = errors.New("ledger conflict")

	// ErrStaleState indicates another writer advanced the ledger after the
	// caller read it. The write may be retried against fresh state.
	ErrStaleState = fmt.Errorf("%w: ledger state changed", ErrConflict)

	// ErrControlNotInitialized indicates the repository holds no control state yet
	ErrControlNotInitialized = errors.New("registry control state not initialized")
)

// Failure reasons reported to callers.
const (
	ReasonOwnerLookup   = "Media file not found or it's not assigned to the right owner."
	ReasonIndexPositive = "Media index must be greater than 0."
	ReasonHandleLookup  = ReasonIndexPositive
	ReasonOnlyOwner     = "Only the owner of the media file can delete it!"
	ReasonOnlyAdmin     = "caller is not the registry admin"
	ReasonPaused        = "registry is paused"
)

// RegistryError represents a failed registry operation
type RegistryError struct {
	Op     string
	Reason string
	Err    error
}

func (e *RegistryError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

func opError(op string, err error, reason string) error {
	return &RegistryError{Op: op, Reason: reason, Err: err}
}

// Reason returns the caller-facing reason carried by err, or its message.
func Reason(err error) string {
	var re *RegistryError
	if errors.As(err, &re) && re.Reason != "" {
		return re.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
