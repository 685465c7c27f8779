package cmd

import (
	"errors"
	"testing"

	"fleetmgr/internal/orchestrator"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeForGenGatewayConfigError(t *testing.T) {
	assert.Equal(t, ExitGenGatewayConfigError, exitCodeForGenGatewayConfigError(orchestrator.ConfigError{Err: errors.New("bad")}))
	assert.Equal(t, ExitGenGatewayRenderError, exitCodeForGenGatewayConfigError(orchestrator.GatewayError{Err: errors.New("bad template")}))
}
