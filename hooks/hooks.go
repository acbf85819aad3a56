// Package hooks executes OCI lifecycle hooks. A hook receives the container
// state serialized as JSON on stdin and must exit zero; the first failing
// hook aborts the stage.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/containerd/log"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Runner runs a list of hooks against a container state. It is an interface
// so the orchestrator can be exercised without spawning hook processes.
type Runner interface {
	Run(ctx context.Context, hooks []specs.Hook, state *specs.State) error
}

type execRunner struct{}

// Default returns a Runner that executes hooks as host processes.
func Default() Runner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, hooks []specs.Hook, state *specs.State) error {
	var stateJSON []byte
	if state != nil {
		var err error
		stateJSON, err = json.Marshal(state)
		if err != nil {
			return fmt.Errorf("marshal container state for hooks: %w", err)
		}
	}
	for i, h := range hooks {
		if err := runHook(ctx, h, stateJSON); err != nil {
			return fmt.Errorf("hook %d (%s): %w", i, h.Path, err)
		}
	}
	return nil
}

func runHook(ctx context.Context, h specs.Hook, stateJSON []byte) error {
	hctx := ctx
	if h.Timeout != nil {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, time.Duration(*h.Timeout)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(hctx, h.Path)
	// A hook may background helpers that inherit its stderr; without a
	// wait delay, Run would block on the inherited pipe until every such
	// grandchild exits, long past the hook's own timeout.
	cmd.WaitDelay = time.Second
	if len(h.Args) > 0 {
		cmd.Args = h.Args
	}
	cmd.Env = h.Env
	cmd.Stdin = bytes.NewReader(stateJSON)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.G(ctx).WithField("path", h.Path).Debug("running hook")
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		// The hook itself exited zero; only an inherited pipe stayed
		// open past the grace period.
		return nil
	}
	if h.Timeout != nil && errors.Is(hctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %ds", *h.Timeout)
	}
	if stderr.Len() > 0 {
		return fmt.Errorf("%w, stderr: %s", err, stderr.String())
	}
	return err
}
