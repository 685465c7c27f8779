package orchestrator

import (
	"fmt"
	"strings"
)

// ConfigError wraps a deployment config load/validation failure.
type ConfigError struct{ Err error }

func (e ConfigError) Error() string { return fmt.Sprintf("deployment config: %s", e.Err) }
func (e ConfigError) Unwrap() error { return e.Err }

// PortConflictError means a required port could not be freed.
type PortConflictError struct {
	Port int
	Err  error
}

func (e PortConflictError) Error() string {
	if e.Port == 0 {
		return fmt.Sprintf("port conflict: %s", e.Err)
	}
	return fmt.Sprintf("port %d still in use: %s", e.Port, e.Err)
}
func (e PortConflictError) Unwrap() error { return e.Err }

// GatewayError means the gateway config could not be rendered, failed its
// config-check, or the running gateway never became healthy.
type GatewayError struct{ Err error }

func (e GatewayError) Error() string { return fmt.Sprintf("gateway: %s", e.Err) }
func (e GatewayError) Unwrap() error { return e.Err }

// SpawnError means one or more instances failed to start.
type SpawnError struct{ Err error }

func (e SpawnError) Error() string { return fmt.Sprintf("spawn: %s", e.Err) }
func (e SpawnError) Unwrap() error { return e.Err }

// HealthError means one or more instances never reported healthy within
// budget.
type HealthError struct{ Failures map[string]error }

func (e HealthError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for name, err := range e.Failures {
		if err != nil {
			parts = append(parts, fmt.Sprintf("%s: %s", name, err))
		}
	}
	return fmt.Sprintf("health check failed for %d instance(s): %s", len(parts), strings.Join(parts, "; "))
}

// StopError means one or more instances could not be cleanly terminated.
type StopError struct{ Failures []string }

func (e StopError) Error() string {
	return fmt.Sprintf("%d instance(s) failed to stop: %s", len(e.Failures), strings.Join(e.Failures, "; "))
}

// ResidualPortError means every process terminated cleanly but a port the
// deployment owns is still in use, e.g. by a process outside the
// deployment's own PID files.
type ResidualPortError struct{ Ports []int }

func (e ResidualPortError) Error() string {
	return fmt.Sprintf("%d port(s) still in use after stop: %v", len(e.Ports), e.Ports)
}
