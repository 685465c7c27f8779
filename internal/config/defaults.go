package config

// Default values applied before the deployment YAML is decoded over them:
// defaults first, then unmarshal on top.
const (
	defaultAPIBaseURL        = "/api/v1"
	defaultWorkerProcesses   = 1
	defaultWorkerConnections = 1024
	defaultReload            = false
)

// withDefaults returns a DeploymentConfig with every unset scalar field
// filled in. It never touches Servers/WebsocketRoutes, which have no
// sensible defaults and are validated as required.
func withDefaults() DeploymentConfig {
	return DeploymentConfig{
		APIBaseURL: defaultAPIBaseURL,
		Gateway: GatewayConfig{
			WorkerProcesses:   defaultWorkerProcesses,
			WorkerConnections: defaultWorkerConnections,
		},
		Servers: map[string]ServerConfig{},
	}
}
