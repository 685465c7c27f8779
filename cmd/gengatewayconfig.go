package cmd

import (
	"fmt"

	"fleetmgr/internal/orchestrator"

	"github.com/spf13/cobra"
)

// Exit codes specific to `gen-gateway-config`.
const (
	ExitGenGatewayConfigError = 2
	ExitGenGatewayRenderError = 11
)

var (
	genGatewayConfigOutput   string
	genGatewayConfigValidate bool
)

var genGatewayConfigCmd = &cobra.Command{
	Use:   "gen-gateway-config [config-path]",
	Short: "Render the gateway config without starting anything",
	Args:  cobra.MaximumNArgs(1),
	Long: `gen-gateway-config loads the deployment config and renders the
gateway config to -o/--output (default gateway.conf), running the gateway
binary's config-check against it if --validate is set and --gateway-binary
is configured. It never spawns any process — it's the command to run in CI
to catch a bad deployment config before it ever reaches a real environment.`,
	RunE: runGenGatewayConfig,
}

func init() {
	genGatewayConfigCmd.Flags().StringVarP(&genGatewayConfigOutput, "output", "o", "gateway.conf", "path to write the rendered gateway config to")
	genGatewayConfigCmd.Flags().BoolVar(&genGatewayConfigValidate, "validate", false, "validate the rendered config against the gateway binary's config-check")
}

func newGenGatewayConfigCmd() *cobra.Command {
	return genGatewayConfigCmd
}

func runGenGatewayConfig(cmd *cobra.Command, args []string) error {
	o, err := buildOrchestrator(cmd, args)
	if err != nil {
		return CommandError{Code: ExitGenGatewayConfigError, Err: err}
	}
	o.Paths.GatewayConfig = genGatewayConfigOutput

	if err := o.GenGatewayConfig(cmd.Context(), genGatewayConfigValidate); err != nil {
		return CommandError{Code: exitCodeForGenGatewayConfigError(err), Err: err}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", o.Paths.GatewayConfig)
	return nil
}

func exitCodeForGenGatewayConfigError(err error) int {
	var cfgErr orchestrator.ConfigError
	if asError(err, &cfgErr) {
		return ExitGenGatewayConfigError
	}
	return ExitGenGatewayRenderError
}
