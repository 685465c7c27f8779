// Package gateway renders the reverse-proxy gateway configuration from a
// deployment description and validates it by shelling out to the gateway
// binary's own config-check mode.
package gateway

import (
	"bytes"
	"fmt"
	"sort"
	"text/template"

	"fleetmgr/internal/config"

	"github.com/Masterminds/sprig/v3"
)

// viewModel is the data handed to gatewayConfigTemplate. Every slice is
// pre-sorted by the caller so rendering the same DeploymentConfig twice
// always produces byte-identical output.
type viewModel struct {
	WorkerProcesses   string
	WorkerConnections int
	GatewayPort       int
	APIBaseURL        string
	Servers           []serverView
	Modules           []moduleView
	ForwardedHeaders  []string
	WebsocketRoutes   []websocketRouteView
	WebsocketStrategy string
	QueryParamName    string
}

// serverView backs the upstream block: one per server, grouping every
// instance that server fans out to.
type serverView struct {
	Name         string
	UpstreamName string
	Instances    []config.InstanceDescriptor
}

// moduleView backs one REST location block. Modules, not servers, are the
// unit of routing: every module gets its own location proxying to the
// upstream of the server that owns it.
type moduleView struct {
	Module       string
	UpstreamName string
}

// websocketRouteView backs one websocket routing entry — a path-strategy
// location block, or one line of the query_param strategy's upstream map.
type websocketRouteView struct {
	Module       string
	UpstreamName string
}

const gatewayConfigTemplate = `# Generated by fleetmgr. Do not edit by hand.
worker_processes {{ .WorkerProcesses }};

events {
    worker_connections {{ .WorkerConnections }};
}

http {
{{- range .Servers }}
    upstream {{ .UpstreamName }} {
    {{- range .Instances }}
        server 127.0.0.1:{{ .Port }};
    {{- end }}
    }
{{- end }}

{{- if eq .WebsocketStrategy "query_param" }}
    map $arg_{{ .QueryParamName }} $ws_upstream {
    {{- range .WebsocketRoutes }}
        {{ .Module }} {{ .UpstreamName }};
    {{- end }}
    }
{{- end }}

    server {
        listen {{ .GatewayPort }};

{{- range .Modules }}
        location {{ trimSuffix "/" $.APIBaseURL }}/{{ .Module }}/ {
{{ indent 12 (join "\n" $.ForwardedHeaders) }}
            proxy_pass http://{{ .UpstreamName }}/;
        }
{{- end }}

{{- if eq .WebsocketStrategy "query_param" }}
        location {{ trimSuffix "/" .APIBaseURL }}/ws {
            proxy_http_version 1.1;
            proxy_set_header Upgrade $http_upgrade;
            proxy_set_header Connection "upgrade";
            proxy_pass http://$ws_upstream;
            proxy_read_timeout 1h;
            proxy_send_timeout 1h;
        }
{{- else }}
{{- range .WebsocketRoutes }}
        location {{ trimSuffix "/" $.APIBaseURL }}/{{ .Module }}/ws {
            proxy_http_version 1.1;
            proxy_set_header Upgrade $http_upgrade;
            proxy_set_header Connection "upgrade";
            proxy_pass http://{{ .UpstreamName }};
            proxy_read_timeout 1h;
            proxy_send_timeout 1h;
        }
{{- end }}
{{- end }}
    }
}
`

var tmpl = template.Must(
	template.New("gateway").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(gatewayConfigTemplate),
)

// forwardedHeaders are the proxy_set_header lines every REST location block
// carries, so the backend sees the client's real host, address, and scheme
// instead of the gateway's own.
var forwardedHeaders = []string{
	"proxy_set_header Host $host;",
	"proxy_set_header X-Real-IP $remote_addr;",
	"proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;",
	"proxy_set_header X-Forwarded-Proto $scheme;",
}

// Render produces the gateway configuration text for cfg. Rendering the
// same cfg twice always yields identical bytes: every map is iterated via
// cfg's already-sorted accessors (SortedServerNames, AllInstances) or a
// locally sorted key list, never by ranging a Go map directly.
func Render(cfg config.DeploymentConfig) ([]byte, error) {
	vm := viewModel{
		WorkerProcesses:   workerProcessesString(cfg.Gateway.WorkerProcesses),
		WorkerConnections: cfg.Gateway.WorkerConnections,
		GatewayPort:       cfg.Gateway.Port,
		APIBaseURL:        cfg.APIBaseURL,
		ForwardedHeaders:  forwardedHeaders,
		WebsocketStrategy: string(cfg.Websocket.RoutingStrategy),
		QueryParamName:    cfg.Websocket.QueryParamName,
	}

	for _, name := range cfg.SortedServerNames() {
		vm.Servers = append(vm.Servers, serverView{
			Name:         name,
			UpstreamName: upstreamName(name),
			Instances:    instancesFor(cfg, name),
		})

		// REST location blocks are per-module, in the order each server
		// declares them, grouped under servers taken in ascending name
		// order — reordering a server's modules list reorders its block
		// of locations without touching any other server's.
		for _, m := range cfg.Servers[name].Modules {
			vm.Modules = append(vm.Modules, moduleView{
				Module:       m,
				UpstreamName: upstreamName(name),
			})
		}
	}

	modules := make([]string, 0, len(cfg.WebsocketRoutes))
	for m := range cfg.WebsocketRoutes {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	for _, m := range modules {
		vm.WebsocketRoutes = append(vm.WebsocketRoutes, websocketRouteView{
			Module:       m,
			UpstreamName: upstreamName(cfg.WebsocketRoutes[m]),
		})
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vm); err != nil {
		return nil, fmt.Errorf("rendering gateway config: %w", err)
	}
	return buf.Bytes(), nil
}

func upstreamName(server string) string {
	return "upstream_" + server
}

func instancesFor(cfg config.DeploymentConfig, name string) []config.InstanceDescriptor {
	var out []config.InstanceDescriptor
	for _, inst := range cfg.AllInstances() {
		if inst.Server == name {
			out = append(out, inst)
		}
	}
	return out
}

func workerProcessesString(n int) string {
	if n <= 0 {
		return "auto"
	}
	return fmt.Sprintf("%d", n)
}
