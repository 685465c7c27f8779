package config

import "fmt"

// maxPort is the highest valid TCP port number (§3: "port (starting port,
// 1..65535)").
const maxPort = 65535

// Validate checks every invariant a DeploymentConfig must satisfy and
// aggregates every violation into a single ErrorCollection, rather than
// failing on the first problem encountered.
func Validate(c DeploymentConfig) error {
	var errs ErrorCollection

	if len(c.Servers) == 0 {
		errs.Add(SchemaError{
			Field:   "servers",
			Value:   len(c.Servers),
			Message: "deployment must declare at least one server",
		})
	}

	if c.Gateway.Port <= 0 || c.Gateway.Port > maxPort {
		errs.Add(SchemaError{
			Field:   "gateway.port",
			Value:   c.Gateway.Port,
			Message: "must be between 1 and 65535",
		})
	}

	for _, name := range c.SortedServerNames() {
		s := c.Servers[name]
		if s.Instances <= 0 {
			errs.Add(SchemaError{
				Field:   fmt.Sprintf("servers.%s.instances", name),
				Value:   s.Instances,
				Message: "must be a positive integer",
			})
		}
		if s.Port <= 0 || s.Port > maxPort {
			errs.Add(SchemaError{
				Field:   fmt.Sprintf("servers.%s.port", name),
				Value:   s.Port,
				Message: "must be between 1 and 65535",
			})
		}
		if len(s.Modules) == 0 {
			errs.Add(InvariantError{
				Rule:    "non_empty_modules",
				Message: fmt.Sprintf("server %s must declare at least one module", name),
			})
		}
	}

	validatePortUniqueness(c, &errs)
	validateModuleUniqueness(c, &errs)
	validateWebsocketRoutes(c, &errs)

	return errs.AsError()
}

// validatePortUniqueness checks that the gateway port and every derived
// instance port (server.port + k for k in [0, instances)) are pairwise
// distinct.
func validatePortUniqueness(c DeploymentConfig, errs *ErrorCollection) {
	owners := make(map[int]string, len(c.Servers)+1)
	owners[c.Gateway.Port] = "gateway"

	for _, inst := range c.AllInstances() {
		if inst.Port <= 0 {
			// already reported as a schema error on the server's base port
			continue
		}
		if owner, taken := owners[inst.Port]; taken {
			errs.Add(InvariantError{
				Rule:    "port_uniqueness",
				Message: fmt.Sprintf("port %d used by both %s and %s", inst.Port, owner, inst.Name),
			})
			continue
		}
		owners[inst.Port] = inst.Name
	}
}

// validateModuleUniqueness checks that no module name is declared by more
// than one server.
func validateModuleUniqueness(c DeploymentConfig, errs *ErrorCollection) {
	owners := make(map[string]string)
	for _, name := range c.SortedServerNames() {
		for _, m := range c.Servers[name].Modules {
			if owner, taken := owners[m]; taken {
				errs.Add(InvariantError{
					Rule:    "module_uniqueness",
					Message: fmt.Sprintf("module %q declared by both %s and %s", m, owner, name),
				})
				continue
			}
			owners[m] = name
		}
	}
}

// validateWebsocketRoutes checks that every websocket_routes value names
// an existing server, and that query_param_name is set when the routing
// strategy requires it.
func validateWebsocketRoutes(c DeploymentConfig, errs *ErrorCollection) {
	for route, server := range c.WebsocketRoutes {
		if _, ok := c.Servers[server]; !ok {
			errs.Add(InvariantError{
				Rule:    "websocket_routes",
				Message: fmt.Sprintf("route %q targets unknown server %q", route, server),
			})
		}
	}

	switch c.Websocket.RoutingStrategy {
	case "", RoutingStrategyPath:
		// no further requirement
	case RoutingStrategyQueryParam:
		if c.Websocket.QueryParamName == "" {
			errs.Add(SchemaError{
				Field:   "websocket.query_param_name",
				Value:   "",
				Message: "required when routing_strategy is query_param",
			})
		}
	default:
		errs.Add(SchemaError{
			Field:   "websocket.routing_strategy",
			Value:   c.Websocket.RoutingStrategy,
			Message: "must be one of: path, query_param",
		})
	}
}
