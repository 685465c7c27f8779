package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

// ExitCodeSuccess and ExitCodeError are the two codes every command can
// return; everything above that is command-specific and assigned by the
// command itself through a CommandError, since the same underlying
// orchestrator error means a different code depending on which command
// hit it (a config error is exit 2 from start but exit 1 from status).
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// CommandError pins a specific process exit code to an error, letting a
// command's RunE return a normal Go error while still controlling exactly
// what status code the process exits with.
type CommandError struct {
	Code int
	Err  error
}

func (e CommandError) Error() string { return e.Err.Error() }
func (e CommandError) Unwrap() error { return e.Err }

// rootCmd is the entry point when fleetmgr is invoked without a
// subcommand.
var rootCmd = &cobra.Command{
	Use:   "fleetmgr",
	Short: "Start, stop, and supervise backend server processes and their gateway",
	Long: `fleetmgr reads a deployment config describing a set of backend
servers and their instances, arbitrates the TCP ports they need, renders
and validates the gateway config that fronts them, then spawns and
health-checks every process in the right order.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command, injected at build
// time from main.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "fleetmgr version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode unwraps a CommandError to find the code a command assigned
// its own failure, defaulting to ExitCodeError for anything that didn't
// opt into a specific code.
func getExitCode(err error) int {
	var cmdErr CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code
	}
	return ExitCodeError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newRestartCmd())
	rootCmd.AddCommand(newGenGatewayConfigCmd())

	rootCmd.PersistentFlags().String("runtime-dir", ".fleetmgr", "directory for pid files, logs, and the rendered gateway config")
	rootCmd.PersistentFlags().String("gateway-binary", "", "path to the gateway binary; leave empty to skip the gateway process and its config-check")
	rootCmd.PersistentFlags().String("gateway-config-check-flag", "-t", "flag passed to the gateway binary to validate a config without starting it")
}
