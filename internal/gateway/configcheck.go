package gateway

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"fleetmgr/pkg/logging"
)

const subsystem = "GatewayRenderer"

// execCommandContext is a variable so tests can substitute a fake gateway
// binary without touching PATH.
var execCommandContext = exec.CommandContext

// Write writes rendered to path. It never validates — callers that want the
// gateway binary's own config-check to run before anything is told to start
// or reload against the file call Validate separately, since validation is
// an independently requestable step (`--validate`), not implied by writing.
func Write(path string, rendered []byte) error {
	if err := os.WriteFile(path, rendered, 0o644); err != nil {
		return fmt.Errorf("writing gateway config to %s: %w", path, err)
	}
	return nil
}

// Validate asks the gateway binary to check path via its own config-check
// flag. With no gatewayBinary configured there is nothing to shell out to,
// so Validate is a no-op — this is the behavior `gen-gateway-config` and
// unit tests rely on to exercise the renderer without a real reverse-proxy
// binary on PATH.
func Validate(ctx context.Context, gatewayBinary, configCheckFlag, path string) error {
	if gatewayBinary == "" {
		logging.Debug(subsystem, "no gateway binary configured, skipping config-check for %s", path)
		return nil
	}

	cmd := execCommandContext(ctx, gatewayBinary, configCheckFlag, path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("gateway config check failed for %s: %w: %s", path, err, stderr.String())
	}

	logging.Info(subsystem, "gateway config at %s passed config-check", path)
	return nil
}
