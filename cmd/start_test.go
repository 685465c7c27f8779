package cmd

import (
	"errors"
	"testing"

	"fleetmgr/internal/orchestrator"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeForStartError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"config", orchestrator.ConfigError{Err: errors.New("bad")}, ExitStartConfigError},
		{"port", orchestrator.PortConflictError{Port: 9000, Err: errors.New("busy")}, ExitStartPortConflict},
		{"spawn", orchestrator.SpawnError{Err: errors.New("boom")}, ExitStartSpawnFailed},
		{"health", orchestrator.HealthError{Failures: map[string]error{"users-0": errors.New("timeout")}}, ExitStartHealthTimeout},
		{"gateway", orchestrator.GatewayError{Err: errors.New("invalid")}, ExitStartGatewayInvalid},
		{"unknown", errors.New("mystery"), ExitCodeError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCodeForStartError(tc.err))
		})
	}
}

func TestNewStartCmd_RegistersForegroundFlag(t *testing.T) {
	c := newStartCmd()
	flag := c.Flags().Lookup("foreground")
	assert.NotNil(t, flag)
}
