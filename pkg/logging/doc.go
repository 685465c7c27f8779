// Package logging provides a structured logging system for fleetmgr's CLI.
//
// # Usage
//
//	import "fleetmgr/pkg/logging"
//
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//	logging.Info("Orchestrator", "starting deployment %s", name)
//	logging.Debug("ConfigLoader", "loaded %d servers", len(cfg.Servers))
//	logging.Warn("PortArbiter", "port %d still bound, retrying", port)
//	logging.Error("Supervisor", err, "failed to spawn %s", instance)
//
// # Subsystem tags
//
// Every component logs under its own tag so log lines can be filtered by
// the piece of the system that emitted them: ConfigLoader, GatewayRenderer,
// PortArbiter, Supervisor, HealthProber, Orchestrator.
package logging
