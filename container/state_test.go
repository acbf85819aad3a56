package container

import (
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"gotest.tools/v3/assert"
)

func TestStatusPredicates(t *testing.T) {
	assert.Check(t, Created.CanStart())
	assert.Check(t, !Running.CanStart())
	assert.Check(t, !Creating.CanStart())

	assert.Check(t, Running.CanKill())
	assert.Check(t, Paused.CanKill())
	assert.Check(t, !Stopped.CanKill())

	assert.Check(t, Stopped.CanDelete())
	assert.Check(t, Creating.CanDelete())
	assert.Check(t, !Running.CanDelete())
}

func TestStatusIsValid(t *testing.T) {
	for _, s := range []Status{Creating, Created, Running, Stopped, Paused} {
		assert.Check(t, s.IsValid(), s.String())
	}
	assert.Check(t, !Status("").IsValid())
	assert.Check(t, !Status("exploded").IsValid())
}

func TestOCIState(t *testing.T) {
	c := New("web", "/run/vessel/web", "/srv/bundles/web", NewFileStore())
	c.SetStatus(Created).SetPid(99)

	st := c.OCIState()
	assert.Equal(t, st.Version, specs.Version)
	assert.Equal(t, st.ID, "web")
	assert.Equal(t, st.Status, specs.StateCreated)
	assert.Equal(t, st.Pid, 99)
	assert.Equal(t, st.Bundle, "/srv/bundles/web")
}
