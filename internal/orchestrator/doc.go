// Package orchestrator sequences the backend process manager's lifecycle
// operations.
//
// Start runs CHECK_PORTS, RENDER_GATEWAY, SPAWN, WAIT_HEALTHY,
// SPAWN_GATEWAY and VALIDATE_GATEWAY in order, rolling back every instance
// it already started if a later phase fails. Stop and Status read PID
// files directly rather than in-memory state, so they work correctly from
// a fresh CLI invocation that never called Start. Restart composes Stop
// and Start rather than having its own code path.
//
// Every other package in this module — config, gateway, portutil,
// supervisor, health, metrics — does exactly one job in isolation; this
// package is the only one that knows how they compose.
package orchestrator
