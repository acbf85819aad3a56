package cgroups

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestDerivePath(t *testing.T) {
	tests := []struct {
		doc         string
		cgroupsPath string
		id          string
		systemd     bool
		expected    string
	}{
		{
			doc:         "explicit path wins",
			cgroupsPath: "/mycustom/path",
			id:          "abc",
			expected:    "/mycustom/path",
		},
		{
			doc:         "explicit path wins under systemd",
			cgroupsPath: "machine.slice:vessel:abc",
			id:          "abc",
			systemd:     true,
			expected:    "machine.slice:vessel:abc",
		},
		{
			doc:      "fs fallback is named after the container",
			id:       "abc",
			expected: "/vessel/abc",
		},
		{
			doc:      "systemd fallback uses slice:prefix:name form",
			id:       "abc",
			systemd:  true,
			expected: ":vessel:abc",
		},
	}
	for _, tc := range tests {
		t.Run(tc.doc, func(t *testing.T) {
			assert.Equal(t, DerivePath(tc.cgroupsPath, tc.id, tc.systemd), tc.expected)
		})
	}
}

func TestParseConfig(t *testing.T) {
	t.Run("fs", func(t *testing.T) {
		cg, err := parseConfig(Config{CgroupPath: "/vessel/abc", ContainerName: "abc"})
		assert.NilError(t, err)
		assert.Equal(t, cg.Path, "/vessel/abc")
		assert.Equal(t, cg.Name, "abc")
		assert.Assert(t, !cg.Systemd)
	})

	t.Run("systemd", func(t *testing.T) {
		cg, err := parseConfig(Config{CgroupPath: "machine.slice:vessel:abc", Systemd: true, ContainerName: "abc"})
		assert.NilError(t, err)
		assert.Equal(t, cg.Parent, "machine.slice")
		assert.Equal(t, cg.ScopePrefix, "vessel")
		assert.Equal(t, cg.Name, "abc")
		assert.Assert(t, cg.Systemd)
	})

	t.Run("systemd defaults", func(t *testing.T) {
		cg, err := parseConfig(Config{CgroupPath: ":vessel:", Systemd: true, ContainerName: "abc"})
		assert.NilError(t, err)
		assert.Equal(t, cg.Parent, "system.slice")
		assert.Equal(t, cg.ScopePrefix, "vessel")
		assert.Equal(t, cg.Name, "abc")
	})

	t.Run("systemd malformed", func(t *testing.T) {
		_, err := parseConfig(Config{CgroupPath: "/not/a/slice", Systemd: true, ContainerName: "abc"})
		assert.ErrorContains(t, err, "slice:prefix:name")
	})
}
