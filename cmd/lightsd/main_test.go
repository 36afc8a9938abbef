package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunMainRejectsInvalidVerbosity(t *testing.T) {
	code := runMain([]string{"--verbosity=bogus", "--listen-tcp=", "--active-discovery-interval-ms=1"})
	assert.Equal(t, exitInvalidConfig, code)
}

func TestRunMainRejectsUnknownFlag(t *testing.T) {
	code := runMain([]string{"--no-such-flag"})
	assert.Equal(t, exitSetupFailure, code)
}
