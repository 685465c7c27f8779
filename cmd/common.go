package cmd

import (
	"errors"
	"fmt"

	"fleetmgr/internal/orchestrator"

	"github.com/spf13/cobra"
)

// defaultDeploymentConfig is the config-path fallback every command uses
// when the operator doesn't pass one positionally.
const defaultDeploymentConfig = "dev-config.yaml"

// asError is a thin errors.As wrapper so exit-code dispatch in each
// command reads as a flat list of type checks.
func asError(err error, target interface{}) bool {
	return errors.As(err, target)
}

// configPathArg resolves the optional positional [config-path] argument
// every command accepts, defaulting to defaultDeploymentConfig.
func configPathArg(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return defaultDeploymentConfig
}

// serverBinaryResolver resolves the executable used to launch instances of a
// given server name. The manager doesn't run arbitrary commands from the
// deployment config itself — only a path under the server's own module
// directory convention, `./bin/<server>`, the same "binary lives next to
// its config" layout the gateway binary flag assumes.
func serverBinaryResolver() func(name string) orchestrator.ServerBinary {
	return func(name string) orchestrator.ServerBinary {
		return orchestrator.ServerBinary{
			Path: fmt.Sprintf("./bin/%s", name),
		}
	}
}

func buildOrchestrator(cmd *cobra.Command, args []string) (*orchestrator.Orchestrator, error) {
	deploymentConfig := configPathArg(args)
	runtimeDir, err := cmd.Flags().GetString("runtime-dir")
	if err != nil {
		return nil, err
	}
	gatewayBinary, err := cmd.Flags().GetString("gateway-binary")
	if err != nil {
		return nil, err
	}
	gatewayConfigCheckFlag, err := cmd.Flags().GetString("gateway-config-check-flag")
	if err != nil {
		return nil, err
	}

	return &orchestrator.Orchestrator{
		Paths: orchestrator.NewPaths(runtimeDir, deploymentConfig),
		GatewayBin: orchestrator.GatewayBinary{
			Path:            gatewayBinary,
			ConfigCheckFlag: gatewayConfigCheckFlag,
		},
		ServerBinary: serverBinaryResolver(),
	}, nil
}
