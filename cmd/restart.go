package cmd

import (
	"fmt"
	"time"

	"fleetmgr/internal/orchestrator"
	"fleetmgr/internal/supervisor"

	"github.com/spf13/cobra"
)

var (
	restartForeground      bool
	restartNoEvict         bool
	restartGenerateGateway bool
	restartValidate        bool
	restartTimeoutSeconds  int
)

var restartCmd = &cobra.Command{
	Use:   "restart [config-path]",
	Short: "Stop and then start the gateway and every backend instance",
	Args:  cobra.MaximumNArgs(1),
	Long: `restart composes stop and start: it stops whatever is currently
running, then runs the full start sequence. Its exit code is whichever of
stop's or start's codes corresponds to the phase that actually failed.`,
	RunE: runRestart,
}

func init() {
	restartCmd.Flags().BoolVar(&restartForeground, "foreground", false, "run in the foreground and notify the service manager (sd_notify) once ready")
	restartCmd.Flags().BoolVar(&restartNoEvict, "no-evict", false, "abort instead of force-evicting whatever already holds a port the deployment needs")
	restartCmd.Flags().BoolVar(&restartGenerateGateway, "generate-gateway", false, "re-render the gateway config even if one already exists")
	restartCmd.Flags().BoolVar(&restartValidate, "validate", false, "validate the gateway config against the gateway binary before spawning anything")
	restartCmd.Flags().IntVar(&restartTimeoutSeconds, "timeout", 3, "seconds to wait for a graceful SIGTERM exit before escalating to SIGKILL")
}

func newRestartCmd() *cobra.Command {
	return restartCmd
}

func runRestart(cmd *cobra.Command, args []string) error {
	o, err := buildOrchestrator(cmd, args)
	if err != nil {
		return CommandError{Code: ExitCodeError, Err: err}
	}

	timeout := time.Duration(restartTimeoutSeconds) * time.Second
	if restartTimeoutSeconds <= 0 {
		timeout = supervisor.DefaultGracefulShutdownTimeout
	}

	opts := orchestrator.StartOptions{
		Foreground:      restartForeground,
		GenerateGateway: restartGenerateGateway,
		ValidateGateway: restartValidate,
		NoEvict:         restartNoEvict,
	}

	invocationID, err := o.Restart(cmd.Context(), opts, timeout)
	if err != nil {
		return CommandError{Code: exitCodeForRestartError(err), Err: err}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "restart %s: all instances healthy\n", invocationID)

	if !restartForeground {
		return nil
	}
	return runForeground(cmd.Context(), o)
}

// exitCodeForRestartError checks stop's error types before start's, since
// a restart that never got past stopping what was already running should
// report stop's exit code, not fall through to start's default.
func exitCodeForRestartError(err error) int {
	if code := exitCodeForStopError(err); code != ExitCodeError {
		return code
	}
	return exitCodeForStartError(err)
}
