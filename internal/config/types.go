// Package config loads and validates the deployment description that drives
// the rest of the manager: which backend servers to launch, how many
// instances of each, and how the gateway in front of them should be
// assembled.
package config

import "sort"

// DeploymentConfig is the root of the deployment description. It is
// immutable once returned by Load: every invariant has already been
// checked by Validate.
type DeploymentConfig struct {
	APIBaseURL      string                  `yaml:"api_base_url"`
	Gateway         GatewayConfig           `yaml:"gateway"`
	Servers         map[string]ServerConfig `yaml:"servers"`
	Websocket       WebsocketConfig         `yaml:"websocket"`
	WebsocketRoutes map[string]string       `yaml:"websocket_routes"`
}

// GatewayConfig describes the reverse-proxy gateway process.
type GatewayConfig struct {
	Port              int `yaml:"port"`
	WorkerProcesses   int `yaml:"worker_processes"`
	WorkerConnections int `yaml:"worker_connections"`
}

// ServerConfig describes one named backend server entry; it fans out into
// Instances running processes, each bound to consecutive ports starting at
// Port.
type ServerConfig struct {
	Port      int      `yaml:"port"`
	Instances int      `yaml:"instances"`
	Modules   []string `yaml:"modules"`
	Reload    bool     `yaml:"reload"`
}

// RoutingStrategy selects how websocket traffic is dispatched to servers.
type RoutingStrategy string

const (
	RoutingStrategyPath       RoutingStrategy = "path"
	RoutingStrategyQueryParam RoutingStrategy = "query_param"
)

// WebsocketConfig describes how websocket connections are routed to
// backend servers.
type WebsocketConfig struct {
	RoutingStrategy RoutingStrategy `yaml:"routing_strategy"`
	QueryParamName  string          `yaml:"query_param_name"`
}

// InstanceDescriptor is one concretely-addressable server process: a
// ServerConfig fanned out by instance index.
type InstanceDescriptor struct {
	Server  string
	Name    string
	Index   int
	Port    int
	Modules []string
	Reload  bool
}

// instances derives the InstanceDescriptor list for one named server, in
// ascending instance-index order, using the "{server}-{index}" naming
// scheme.
func (s ServerConfig) instances(name string) []InstanceDescriptor {
	out := make([]InstanceDescriptor, 0, s.Instances)
	for i := 0; i < s.Instances; i++ {
		out = append(out, InstanceDescriptor{
			Server:  name,
			Name:    instanceName(name, i),
			Index:   i,
			Port:    s.Port + i,
			Modules: s.Modules,
			Reload:  s.Reload,
		})
	}
	return out
}

func instanceName(server string, index int) string {
	return server + "-" + itoa(index)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// SortedServerNames returns the server names in ascending order, the
// ordering every deterministic rendering and listing operation relies on.
func (c DeploymentConfig) SortedServerNames() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllInstances derives every InstanceDescriptor across all servers, sorted
// by server name then instance index.
func (c DeploymentConfig) AllInstances() []InstanceDescriptor {
	var out []InstanceDescriptor
	for _, name := range c.SortedServerNames() {
		out = append(out, c.Servers[name].instances(name)...)
	}
	return out
}

// PortSet returns every port this config binds: the gateway port plus
// every derived instance port, in the order returned by AllInstances.
func (c DeploymentConfig) PortSet() []int {
	ports := []int{c.Gateway.Port}
	for _, inst := range c.AllInstances() {
		ports = append(ports, inst.Port)
	}
	return ports
}

// ModuleOwners maps each module name to the server that declares it.
func (c DeploymentConfig) ModuleOwners() map[string]string {
	out := make(map[string]string)
	for _, name := range c.SortedServerNames() {
		for _, m := range c.Servers[name].Modules {
			out[m] = name
		}
	}
	return out
}
