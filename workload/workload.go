// Package workload defines the capability of running the requested workload
// inside a fully prepared container process.
package workload

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"
)

// ErrNoProcessArgs is returned when a spec has no process arguments to run.
var ErrNoProcessArgs = errors.New("no process args in spec")

// Executor runs the container workload. Exec is called inside the container
// init process after setup completes and is expected not to return on
// success. Clone produces an independent copy, since the executor crosses
// into the new process's context and must not share state with the
// orchestrator's copy.
type Executor interface {
	// Validate checks that the executor can run the given spec. It is
	// called in the orchestrating process, where failures are still cheap.
	Validate(spec *specs.Spec) error
	// Exec replaces the current process with the workload.
	Exec(spec *specs.Spec) error
	// Clone returns a copy suitable for handing to another process context.
	Clone() Executor
}

type defaultExecutor struct{}

// Default returns the executor that exec's the spec's process arguments,
// resolving the binary against the process environment's PATH.
func Default() Executor {
	return defaultExecutor{}
}

func (defaultExecutor) Validate(spec *specs.Spec) error {
	if spec.Process == nil || len(spec.Process.Args) == 0 {
		return ErrNoProcessArgs
	}
	return nil
}

func (e defaultExecutor) Exec(spec *specs.Spec) error {
	if err := e.Validate(spec); err != nil {
		return err
	}
	proc := spec.Process
	name, err := lookPath(proc.Args[0], proc.Env)
	if err != nil {
		return fmt.Errorf("resolve workload executable: %w", err)
	}
	env := proc.Env
	if env == nil {
		env = os.Environ()
	}
	return unix.Exec(name, proc.Args, env)
}

func (defaultExecutor) Clone() Executor {
	// Stateless, so a copy is itself.
	return defaultExecutor{}
}

func lookPath(file string, env []string) (string, error) {
	for _, kv := range env {
		const prefix = "PATH="
		if len(kv) > len(prefix) && kv[:len(prefix)] == prefix {
			// Resolve against the container process's PATH, not ours.
			restore := os.Getenv("PATH")
			os.Setenv("PATH", kv[len(prefix):])
			defer os.Setenv("PATH", restore)
			break
		}
	}
	return exec.LookPath(file)
}
