package container

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

// Required spec sections. Their absence is fatal and never retried.
var (
	ErrMissingLinux   = fmt.Errorf("spec does not declare a linux configuration: %w", errdefs.ErrInvalidArgument)
	ErrMissingProcess = fmt.Errorf("spec does not declare a process configuration: %w", errdefs.ErrInvalidArgument)
)

// ErrLaunch marks a failure of the process launcher to produce the container
// main process.
var ErrLaunch = errors.New("failed to create container main process")

// CreateError is the combined outcome of a failed creation: the forward
// failure that triggered rollback, and the rollback's own failure if it had
// one. The rollback error never replaces or hides the cause.
type CreateError struct {
	// Cause is the forward-sequence failure.
	Cause error
	// Cleanup is the rollback failure, or nil when rollback succeeded.
	Cleanup error
}

func (e *CreateError) Error() string {
	if e.Cleanup == nil {
		return fmt.Sprintf("failed to create container: %v", e.Cause)
	}
	return fmt.Sprintf("failed to create container: %v (cleanup failed as well: %v)", e.Cause, e.Cleanup)
}

// Unwrap exposes both errors for errors.Is/As matching.
func (e *CreateError) Unwrap() []error {
	if e.Cleanup == nil {
		return []error{e.Cause}
	}
	return []error{e.Cause, e.Cleanup}
}
