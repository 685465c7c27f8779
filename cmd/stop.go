package cmd

import (
	"fmt"
	"time"

	"fleetmgr/internal/orchestrator"
	"fleetmgr/internal/supervisor"

	"github.com/spf13/cobra"
)

// Exit codes specific to `stop`, per the CLI reference.
const (
	ExitStopResidualProcesses = 7
	ExitStopResidualPorts     = 8
)

var stopTimeoutSeconds int

var stopCmd = &cobra.Command{
	Use:   "stop [config-path]",
	Short: "Stop the gateway and every backend instance",
	Args:  cobra.MaximumNArgs(1),
	Long: `stop reads the deployment config and the pid files under the
runtime directory, then terminates the gateway and every named instance
gracefully: SIGTERM first, escalating to SIGKILL after --timeout seconds
if a process doesn't exit.

A missing pid file is not an error — it means that instance isn't
running. A process that refuses to die is reported as residual
processes; a port still in use once every tracked process is confirmed
dead is only a warning, not a failure.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeoutSeconds, "timeout", 3, "seconds to wait for a graceful SIGTERM exit before escalating to SIGKILL")
}

func newStopCmd() *cobra.Command {
	return stopCmd
}

func runStop(cmd *cobra.Command, args []string) error {
	o, err := buildOrchestrator(cmd, args)
	if err != nil {
		return CommandError{Code: ExitCodeError, Err: err}
	}

	timeout := time.Duration(stopTimeoutSeconds) * time.Second
	if stopTimeoutSeconds <= 0 {
		timeout = supervisor.DefaultGracefulShutdownTimeout
	}

	if err := o.Stop(cmd.Context(), timeout); err != nil {
		return CommandError{Code: exitCodeForStopError(err), Err: err}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "stop: all instances terminated")
	return nil
}

func exitCodeForStopError(err error) int {
	var stopErr orchestrator.StopError
	if asError(err, &stopErr) {
		return ExitStopResidualProcesses
	}
	var residualPortErr orchestrator.ResidualPortError
	if asError(err, &residualPortErr) {
		return ExitStopResidualPorts
	}
	return ExitCodeError
}
