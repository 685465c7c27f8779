package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleetmgr/internal/orchestrator"
	"fleetmgr/internal/supervisor"
	"fleetmgr/pkg/logging"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

// Exit codes specific to `start`, per the CLI reference.
const (
	ExitStartConfigError    = 2
	ExitStartPortConflict   = 3
	ExitStartSpawnFailed    = 4
	ExitStartHealthTimeout  = 5
	ExitStartGatewayInvalid = 6
)

var (
	startForeground      bool
	startNoEvict         bool
	startGenerateGateway bool
	startValidate        bool
)

var startCmd = &cobra.Command{
	Use:   "start [config-path]",
	Short: "Start every backend instance and the gateway",
	Args:  cobra.MaximumNArgs(1),
	Long: `start loads the deployment config, arbitrates the ports it needs,
renders and validates the gateway config, spawns every server instance,
waits for each to report healthy, then starts the gateway itself.

If any phase fails, start tears down everything it already spawned before
returning, so a failed start never leaves orphaned processes behind.

With --foreground, start remains attached once every instance is healthy,
sends sd_notify READY=1, and runs the stop state machine on SIGINT/SIGTERM
instead of exiting; a second signal during shutdown skips the graceful
wait and force-kills everything immediately.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&startForeground, "foreground", false, "run in the foreground and notify the service manager (sd_notify) once ready")
	startCmd.Flags().BoolVar(&startNoEvict, "no-evict", false, "abort instead of force-evicting whatever already holds a port the deployment needs")
	startCmd.Flags().BoolVar(&startGenerateGateway, "generate-gateway", false, "re-render the gateway config even if one already exists")
	startCmd.Flags().BoolVar(&startValidate, "validate", false, "validate the gateway config against the gateway binary before spawning anything")
}

func newStartCmd() *cobra.Command {
	return startCmd
}

func startOptionsFromFlags(foreground bool) orchestrator.StartOptions {
	return orchestrator.StartOptions{
		Foreground:      foreground,
		GenerateGateway: startGenerateGateway,
		ValidateGateway: startValidate,
		NoEvict:         startNoEvict,
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	o, err := buildOrchestrator(cmd, args)
	if err != nil {
		return CommandError{Code: ExitStartConfigError, Err: err}
	}

	var s *spinner.Spinner
	if startForeground {
		s = spinner.New(spinner.CharSets[11], 100*time.Millisecond)
		s.Suffix = " waiting for every instance to report healthy"
		s.Start()
		defer s.Stop()
	}

	invocationID, err := o.Start(cmd.Context(), startOptionsFromFlags(startForeground))
	if err != nil {
		return CommandError{Code: exitCodeForStartError(err), Err: err}
	}

	if s != nil {
		s.Stop()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "start %s: all instances healthy\n", invocationID)

	if !startForeground {
		return nil
	}
	return runForeground(cmd.Context(), o)
}

// runForeground blocks until SIGINT/SIGTERM, then runs the stop state
// machine. A second signal during shutdown escalates immediately to a
// force-kill rather than waiting out the graceful timeout.
func runForeground(ctx context.Context, o *orchestrator.Orchestrator) error {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		_ = supervisor.WatchPIDDir(watchCtx, o.Paths.PIDDir, func(name string) {
			logging.Warn("Start", "instance %s exited outside the supervisor while running in the foreground", name)
		})
	}()

	<-sigCh
	logging.Info("Start", "shutdown signal received, stopping every instance")

	done := make(chan error, 1)
	go func() { done <- o.Stop(ctx, supervisor.DefaultGracefulShutdownTimeout) }()

	select {
	case err := <-done:
		if err != nil {
			return CommandError{Code: exitCodeForStopError(err), Err: err}
		}
		return nil
	case <-sigCh:
		logging.Warn("Start", "second shutdown signal received, force-killing every instance")
		if err := o.ForceStop(); err != nil {
			return CommandError{Code: ExitCodeError, Err: err}
		}
		return CommandError{Code: ExitStopResidualProcesses, Err: fmt.Errorf("force-killed after second shutdown signal")}
	}
}

func exitCodeForStartError(err error) int {
	var cfgErr orchestrator.ConfigError
	if asError(err, &cfgErr) {
		return ExitStartConfigError
	}
	var portErr orchestrator.PortConflictError
	if asError(err, &portErr) {
		return ExitStartPortConflict
	}
	var spawnErr orchestrator.SpawnError
	if asError(err, &spawnErr) {
		return ExitStartSpawnFailed
	}
	var healthErr orchestrator.HealthError
	if asError(err, &healthErr) {
		return ExitStartHealthTimeout
	}
	var gwErr orchestrator.GatewayError
	if asError(err, &gwErr) {
		return ExitStartGatewayInvalid
	}
	return ExitCodeError
}
