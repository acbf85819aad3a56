package main

import (
	"testing"

	"github.com/spf13/pflag"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestInstallRootFlags(t *testing.T) {
	opts := rootOptions{}
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	installRootFlags(flags, &opts)

	assert.NilError(t, flags.Parse([]string{"--log-level", "debug", "--root", "/tmp/vessel-test"}))
	assert.Check(t, is.Equal(opts.logLevel, "debug"))
	assert.Check(t, is.Equal(opts.stateDir, "/tmp/vessel-test"))
}

func TestConfigureLogging(t *testing.T) {
	assert.NilError(t, configureLogging("info"))
	assert.ErrorContains(t, configureLogging("noisy"), "unable to parse logging level")
}
