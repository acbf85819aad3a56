package container

import "fmt"

// Status tracks where a container is in its lifecycle. The zero value is not
// a valid status; containers start out as Creating.
type Status string

const (
	// Creating is the initial status, before the init process exists.
	Creating Status = "creating"
	// Created means the init process exists but the workload has not been
	// released yet. Only ever set together with the init pid.
	Created Status = "created"
	// Running means the workload has been released.
	Running Status = "running"
	// Stopped means the init process has exited.
	Stopped Status = "stopped"
	// Paused means all container processes are frozen.
	Paused Status = "paused"
)

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case Creating, Created, Running, Stopped, Paused:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// CanStart reports whether a container in this status may have its workload
// released.
func (s Status) CanStart() bool {
	return s == Created
}

// CanKill reports whether a container in this status may be signalled.
func (s Status) CanKill() bool {
	return s == Created || s == Running || s == Paused
}

// CanDelete reports whether a container in this status may be removed.
func (s Status) CanDelete() bool {
	return s == Stopped || s == Creating
}

// ErrInvalidTransition is returned for lifecycle transitions the status
// machine does not allow.
type ErrInvalidTransition struct {
	From Status
	To   Status
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid container status transition: %s -> %s", e.From, e.To)
}
