package intelrdt

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/skip"
)

func TestNotMounted(t *testing.T) {
	_, err := Root()
	skip.If(t, err == nil, "host has a resctrl filesystem mounted")
	assert.Check(t, errors.Is(err, ErrNotMounted))

	_, err = CreateSubdirectory("vessel-test")
	assert.Check(t, errors.Is(err, ErrNotMounted))

	err = DeleteSubdirectory("vessel-test")
	assert.Check(t, errors.Is(err, ErrNotMounted))
}
