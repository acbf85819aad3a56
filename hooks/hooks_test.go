package hooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func intPtr(i int) *int { return &i }

func TestRun(t *testing.T) {
	state := &specs.State{
		Version: specs.Version,
		ID:      "hooked",
		Status:  specs.StateCreated,
		Pid:     42,
		Bundle:  "/tmp/bundle",
	}

	t.Run("state on stdin", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "state.json")
		err := Default().Run(context.Background(), []specs.Hook{{
			Path: "/bin/sh",
			Args: []string{"sh", "-c", "cat > " + out},
		}}, state)
		assert.NilError(t, err)

		b, err := os.ReadFile(out)
		assert.NilError(t, err)
		assert.Check(t, is.Contains(string(b), `"id":"hooked"`))
		assert.Check(t, is.Contains(string(b), `"pid":42`))
	})

	t.Run("environment propagated", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "env")
		err := Default().Run(context.Background(), []specs.Hook{{
			Path: "/bin/sh",
			Args: []string{"sh", "-c", "echo -n $HOOK_GREETING > " + out},
			Env:  []string{"HOOK_GREETING=hello"},
		}}, state)
		assert.NilError(t, err)

		b, err := os.ReadFile(out)
		assert.NilError(t, err)
		assert.Equal(t, string(b), "hello")
	})

	t.Run("failure aborts the stage", func(t *testing.T) {
		marker := filepath.Join(t.TempDir(), "marker")
		err := Default().Run(context.Background(), []specs.Hook{
			{Path: "/bin/sh", Args: []string{"sh", "-c", "echo doomed >&2; exit 3"}},
			{Path: "/bin/sh", Args: []string{"sh", "-c", "touch " + marker}},
		}, state)
		assert.ErrorContains(t, err, "hook 0")
		assert.ErrorContains(t, err, "doomed")

		_, statErr := os.Stat(marker)
		assert.Check(t, os.IsNotExist(statErr), "subsequent hooks must not run")
	})

	t.Run("timeout", func(t *testing.T) {
		start := time.Now()
		err := Default().Run(context.Background(), []specs.Hook{{
			Path:    "/bin/sh",
			Args:    []string{"sh", "-c", "sleep 10"},
			Timeout: intPtr(1),
		}}, state)
		assert.ErrorContains(t, err, "timed out")
		assert.Check(t, time.Since(start) < 5*time.Second, "timed-out hook took %v to return", time.Since(start))
	})

	t.Run("timeout with lingering grandchild", func(t *testing.T) {
		// A backgrounded helper inherits the hook's stderr; killing the
		// hook must not leave Run waiting on the inherited pipe until
		// the helper exits too.
		start := time.Now()
		err := Default().Run(context.Background(), []specs.Hook{{
			Path:    "/bin/sh",
			Args:    []string{"sh", "-c", "sleep 30 & sleep 30"},
			Timeout: intPtr(1),
		}}, state)
		assert.ErrorContains(t, err, "timed out")
		assert.Check(t, time.Since(start) < 5*time.Second, "timed-out hook took %v to return", time.Since(start))
	})

	t.Run("successful hook with lingering grandchild", func(t *testing.T) {
		start := time.Now()
		err := Default().Run(context.Background(), []specs.Hook{{
			Path: "/bin/sh",
			Args: []string{"sh", "-c", "sleep 30 & exit 0"},
		}}, state)
		assert.NilError(t, err)
		assert.Check(t, time.Since(start) < 5*time.Second, "hook took %v to return", time.Since(start))
	})

	t.Run("nil state", func(t *testing.T) {
		err := Default().Run(context.Background(), []specs.Hook{{
			Path: "/bin/true",
		}}, nil)
		assert.NilError(t, err)
	})
}
