// Package orchestrator sequences the deployment lifecycle: loading config,
// arbitrating ports, rendering and validating the gateway config, spawning
// servers and the gateway, and waiting for everything to report healthy.
// It is the one package that knows the full start/stop/status/restart
// state machines; every other package below it does one job in isolation.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fleetmgr/internal/config"
	"fleetmgr/internal/gateway"
	"fleetmgr/internal/health"
	"fleetmgr/internal/metrics"
	"fleetmgr/internal/portutil"
	"fleetmgr/internal/supervisor"
	"fleetmgr/pkg/logging"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const subsystem = "Orchestrator"

// portFreeWait is how long Stop waits for a terminated instance's port to
// actually come free before force-evicting whatever still holds it.
const portFreeWait = 2 * time.Second

// Paths collects every filesystem location the orchestrator needs, all
// derived from one runtime root directory.
type Paths struct {
	DeploymentConfig string
	PIDDir           string
	LogDir           string
	GatewayConfig    string
}

// NewPaths derives the standard layout under root: {root}/pids/,
// {root}/logs/, {root}/gateway.conf. The deployment config path is used as
// given, not placed under root.
func NewPaths(root, deploymentConfigPath string) Paths {
	return Paths{
		DeploymentConfig: deploymentConfigPath,
		PIDDir:           filepath.Join(root, "pids"),
		LogDir:           filepath.Join(root, "logs"),
		GatewayConfig:    filepath.Join(root, "gateway.conf"),
	}
}

// GatewayBinary configures how the orchestrator launches and validates the
// gateway process. Every field is optional: an empty Path skips
// the gateway config-check and gateway process entirely, which is how
// `gen-gateway-config` and unit tests exercise the renderer without a real
// reverse-proxy binary on PATH.
type GatewayBinary struct {
	Path            string
	Args            []string
	ConfigCheckFlag string
}

// ServerBinary names the executable and arguments used to launch every
// instance of one server entry.
type ServerBinary struct {
	Path string
	Args []string
}

// StartOptions controls the optional phases of Start, mirroring the
// `start`/`restart` CLI flags.
type StartOptions struct {
	// Foreground keeps Start's caller attached after every instance is
	// healthy and sends sd_notify READY=1.
	Foreground bool
	// GenerateGateway forces RENDER_GATEWAY_CONFIG even if a gateway
	// config file already exists at o.Paths.GatewayConfig.
	GenerateGateway bool
	// ValidateGateway runs the gateway binary's config-check before any
	// process is spawned, aborting Start if it fails.
	ValidateGateway bool
	// NoEvict makes CHECK_PORTS abort with a PortConflictError instead of
	// force-evicting whatever already holds a port the deployment needs.
	NoEvict bool
}

// Orchestrator drives the lifecycle of one deployment.
type Orchestrator struct {
	Paths          Paths
	GatewayBin     GatewayBinary
	ServerBinary   func(serverName string) ServerBinary
	StalePIDPolicy StalePIDPolicy
}

// StalePIDPolicy controls what Start does when it finds a PID file whose
// process is already dead.
type StalePIDPolicy int

const (
	// StalePIDReclaim deletes the dead PID file and proceeds — the
	// default from spec.md §9.
	StalePIDReclaim StalePIDPolicy = iota
	// StalePIDFail treats a dead PID file as fatal.
	StalePIDFail
)

// Report is the result of a Status call: one entry per instance plus the
// gateway.
type Report struct {
	ID        string
	Gateway   InstanceStatus
	Instances []InstanceStatus
}

// InstanceStatus is the observed state of one running (or not) process.
type InstanceStatus struct {
	Name    string
	PID     int
	Running bool
	Healthy bool
	Port    int
}

func (o *Orchestrator) loadConfig() (config.DeploymentConfig, error) {
	cfg, err := config.Load(o.Paths.DeploymentConfig)
	if err != nil {
		return config.DeploymentConfig{}, ConfigError{Err: err}
	}
	return cfg, nil
}

// Start runs the full CHECK_PORTS → RENDER_GATEWAY_CONFIG → SPAWN →
// WAIT_HEALTHY → SPAWN_GATEWAY → VALIDATE_GATEWAY sequence. On any phase
// failure it rolls back everything it already started, so a failed Start
// never leaves orphaned processes behind.
func (o *Orchestrator) Start(ctx context.Context, opts StartOptions) (string, error) {
	invocationID := uuid.NewString()
	logging.Info(subsystem, "start invocation %s", invocationID)

	cfg, err := o.loadConfig()
	if err != nil {
		return invocationID, err
	}

	if err := o.checkPorts(ctx, cfg, opts.NoEvict); err != nil {
		return invocationID, err
	}

	if err := o.renderGatewayConfig(ctx, cfg, opts); err != nil {
		return invocationID, GatewayError{Err: err}
	}

	instances := cfg.AllInstances()
	spawned, err := o.spawnAll(instances)
	if err != nil {
		o.terminateAll(ctx, spawned, nil)
		return invocationID, SpawnError{Err: err}
	}

	targets := make([]health.Target, 0, len(instances))
	for _, inst := range instances {
		targets = append(targets, health.Target{
			Name: inst.Name,
			URL:  fmt.Sprintf("http://127.0.0.1:%d%s", inst.Port, instanceHealthPath(cfg, inst)),
		})
	}
	if results := health.WaitAllHealthy(ctx, targets); !allHealthy(results) {
		o.terminateAll(ctx, spawned, nil)
		return invocationID, HealthError{Failures: results}
	}

	var gatewayHandle *supervisor.Handle
	if o.GatewayBin.Path != "" {
		gatewayHandle, err = supervisor.Spawn(supervisor.SpawnOptions{
			Name:    "gateway",
			Command: o.GatewayBin.Path,
			Args:    o.GatewayBin.Args,
			PIDDir:  o.Paths.PIDDir,
			LogDir:  o.Paths.LogDir,
		})
		if err != nil {
			o.terminateAll(ctx, spawned, nil)
			return invocationID, SpawnError{Err: err}
		}

		firstModule := firstHealthTarget(cfg)
		if firstModule != "" {
			gwTarget := health.Target{Name: "gateway", URL: fmt.Sprintf("http://127.0.0.1:%d%s", cfg.Gateway.Port, firstModule)}
			if err := health.WaitHealthy(ctx, gwTarget); err != nil {
				o.terminateAll(ctx, spawned, gatewayHandle)
				return invocationID, GatewayError{Err: err}
			}
		}
	}

	for _, inst := range instances {
		metrics.InstanceUp.WithLabelValues(inst.Name).Set(1)
	}

	if opts.Foreground {
		_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	}

	logging.Info(subsystem, "start invocation %s complete: %d instance(s) healthy", invocationID, len(instances))
	return invocationID, nil
}

// renderGatewayConfig implements RENDER_GATEWAY_CONFIG: the file is
// (re)rendered only if it's missing, if the operator asked for
// regeneration, or if the existing file fails an explicitly requested
// validation. Validation itself is optional per invocation; when requested
// and still failing after a re-render, Start aborts before any process is
// launched.
func (o *Orchestrator) renderGatewayConfig(ctx context.Context, cfg config.DeploymentConfig, opts StartOptions) error {
	needRender := opts.GenerateGateway
	if !needRender {
		if _, err := os.Stat(o.Paths.GatewayConfig); err != nil {
			needRender = true
		}
	}
	if !needRender && opts.ValidateGateway {
		if err := gateway.Validate(ctx, o.GatewayBin.Path, o.GatewayBin.ConfigCheckFlag, o.Paths.GatewayConfig); err != nil {
			logging.Warn(subsystem, "existing gateway config failed validation, re-rendering: %s", err)
			needRender = true
		}
	}

	if needRender {
		rendered, err := gateway.Render(cfg)
		if err != nil {
			return err
		}
		if err := gateway.Write(o.Paths.GatewayConfig, rendered); err != nil {
			return err
		}
	}

	if opts.ValidateGateway {
		if err := gateway.Validate(ctx, o.GatewayBin.Path, o.GatewayBin.ConfigCheckFlag, o.Paths.GatewayConfig); err != nil {
			return err
		}
	}
	return nil
}

// instanceHealthPath is the per-instance health check route: the merged
// API base URL followed by the instance's first module and /health, per
// the health contract in spec.md §6.
func instanceHealthPath(cfg config.DeploymentConfig, inst config.InstanceDescriptor) string {
	if len(inst.Modules) == 0 {
		return cfg.APIBaseURL + "/health"
	}
	return cfg.APIBaseURL + "/" + inst.Modules[0] + "/health"
}

// firstHealthTarget returns the /health path of the first module declared
// by the first server in sorted order, the gateway's own health target per
// spec.md §9's stated assumption.
func firstHealthTarget(cfg config.DeploymentConfig) string {
	for _, name := range cfg.SortedServerNames() {
		s := cfg.Servers[name]
		if len(s.Modules) > 0 {
			return cfg.APIBaseURL + "/" + s.Modules[0] + "/health"
		}
	}
	return ""
}

func allHealthy(results map[string]error) bool {
	for _, err := range results {
		if err != nil {
			return false
		}
	}
	return true
}

// checkPorts reclaims stale PID files per StalePIDPolicy, then makes sure
// every port the deployment needs is actually free. With noEvict set, a
// port still in use aborts immediately with a PortConflictError instead of
// force-evicting whatever holds it.
func (o *Orchestrator) checkPorts(ctx context.Context, cfg config.DeploymentConfig, noEvict bool) error {
	for _, inst := range cfg.AllInstances() {
		if err := o.reclaimStalePID(inst.Name); err != nil {
			return err
		}
	}

	for _, port := range cfg.PortSet() {
		if !portutil.IsPortInUse(port) {
			continue
		}
		if noEvict {
			return PortConflictError{Port: port, Err: fmt.Errorf("port %d already in use", port)}
		}
		if err := portutil.ForceEvict(ctx, port); err != nil {
			return PortConflictError{Port: port, Err: err}
		}
	}
	return nil
}

func (o *Orchestrator) reclaimStalePID(name string) error {
	pidFile := filepath.Join(o.Paths.PIDDir, name+".pid")
	pid, err := supervisor.ReadPID(pidFile)
	if err != nil {
		return nil // no pid file, nothing to reclaim
	}
	if supervisor.IsAlive(pid) {
		return nil // a live instance with this name is already running
	}

	switch o.StalePIDPolicy {
	case StalePIDFail:
		return PortConflictError{Err: fmt.Errorf("stale pid file for %s (pid %d is not running)", name, pid)}
	default:
		logging.Warn(subsystem, "reclaiming stale pid file for %s (pid %d is not running)", name, pid)
		return supervisor.StopByPIDFile(context.Background(), name, pidFile, supervisor.DefaultGracefulShutdownTimeout)
	}
}

// spawnAll launches every instance concurrently and waits for all of them,
// returning the handles of every instance that started (nil for those that
// failed) — callers must terminate these on error, since siblings of a
// failed spawn may already be running.
func (o *Orchestrator) spawnAll(instances []config.InstanceDescriptor) ([]*supervisor.Handle, error) {
	handles := make([]*supervisor.Handle, len(instances))
	g, _ := errgroup.WithContext(context.Background())

	for i, inst := range instances {
		i, inst := i, inst
		g.Go(func() error {
			bin := o.ServerBinary(inst.Server)
			h, err := supervisor.Spawn(supervisor.SpawnOptions{
				Name:    inst.Name,
				Command: bin.Path,
				Args:    bin.Args,
				Env: []string{
					fmt.Sprintf("PORT=%d", inst.Port),
					fmt.Sprintf("ENABLED_MODULES=%s", strings.Join(inst.Modules, ",")),
					fmt.Sprintf("SERVER_INSTANCE_NAME=%s", inst.Name),
				},
				PIDDir: o.Paths.PIDDir,
				LogDir: o.Paths.LogDir,
			})
			if err != nil {
				metrics.SpawnTotal.WithLabelValues(inst.Name, "failure").Inc()
				return err
			}
			metrics.SpawnTotal.WithLabelValues(inst.Name, "success").Inc()
			handles[i] = h
			return nil
		})
	}

	err := g.Wait()
	return handles, err
}

func (o *Orchestrator) terminateAll(ctx context.Context, handles []*supervisor.Handle, gatewayHandle *supervisor.Handle) {
	// rollback runs to completion even when Start's own ctx was canceled
	ctx = context.WithoutCancel(ctx)
	for _, h := range handles {
		if h == nil {
			continue
		}
		if err := supervisor.Terminate(ctx, h.Name, h.PID, h.PIDFile, supervisor.DefaultGracefulShutdownTimeout); err != nil {
			logging.Warn(subsystem, "rollback: failed to terminate %s: %s", h.Name, err)
		}
		metrics.InstanceUp.WithLabelValues(h.Name).Set(0)
	}
	if gatewayHandle != nil {
		_ = supervisor.Terminate(ctx, gatewayHandle.Name, gatewayHandle.PID, gatewayHandle.PIDFile, supervisor.DefaultGracefulShutdownTimeout)
	}
}

// Stop terminates the gateway and every server instance named by the
// current deployment config, by PID file rather than in-memory state,
// since stop may run in a fresh CLI invocation that never called Start.
// Processes that refuse to terminate are reported as StopError. Once every
// process is confirmed dead, Stop waits up to portFreeWait for their ports
// to clear and force-evicts anything still squatting; a port that remains
// occupied even after that is only a logged warning, not a failure — a
// socket lingering in TIME_WAIT is not a sign anything is still running.
func (o *Orchestrator) Stop(ctx context.Context, timeout time.Duration) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	var failures []string

	gatewayPID := filepath.Join(o.Paths.PIDDir, "gateway.pid")
	if err := supervisor.StopByPIDFile(ctx, "gateway", gatewayPID, timeout); err != nil {
		failures = append(failures, "gateway: "+err.Error())
	}

	for _, inst := range cfg.AllInstances() {
		pidFile := filepath.Join(o.Paths.PIDDir, inst.Name+".pid")
		err := supervisor.StopByPIDFile(ctx, inst.Name, pidFile, timeout)
		if err != nil {
			failures = append(failures, inst.Name+": "+err.Error())
		}
		metrics.InstanceUp.WithLabelValues(inst.Name).Set(0)
		metrics.TerminateTotal.WithLabelValues(inst.Name, outcomeFor(err)).Inc()
	}

	if len(failures) > 0 {
		return StopError{Failures: failures}
	}

	var residualPorts []int
	for _, port := range cfg.PortSet() {
		waitCtx, cancel := context.WithTimeout(ctx, portFreeWait)
		err := portutil.WaitForPortFree(waitCtx, port)
		cancel()
		if err == nil {
			continue
		}
		if evictErr := portutil.ForceEvict(ctx, port); evictErr != nil {
			residualPorts = append(residualPorts, port)
		}
	}
	if len(residualPorts) > 0 {
		logging.Warn(subsystem, "stop: %s", ResidualPortError{Ports: residualPorts})
	}

	return nil
}

// ForceStop skips the graceful SIGTERM wait and kills the gateway and
// every instance outright, the path a foreground invocation takes on a
// second shutdown signal while a graceful Stop is still in flight.
func (o *Orchestrator) ForceStop() error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	gatewayPID := filepath.Join(o.Paths.PIDDir, "gateway.pid")
	_ = supervisor.ForceKillByPIDFile("gateway", gatewayPID)

	for _, inst := range cfg.AllInstances() {
		pidFile := filepath.Join(o.Paths.PIDDir, inst.Name+".pid")
		_ = supervisor.ForceKillByPIDFile(inst.Name, pidFile)
		metrics.InstanceUp.WithLabelValues(inst.Name).Set(0)
	}

	return nil
}

func outcomeFor(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// Status reports the live/healthy state of every instance and the
// gateway, without mutating anything.
func (o *Orchestrator) Status(ctx context.Context) (Report, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return Report{}, err
	}

	report := Report{ID: uuid.NewString()}

	report.Gateway = o.statusOf("gateway", cfg.Gateway.Port)

	for _, inst := range cfg.AllInstances() {
		report.Instances = append(report.Instances, o.statusOf(inst.Name, inst.Port))
	}

	return report, nil
}

func (o *Orchestrator) statusOf(name string, port int) InstanceStatus {
	pidFile := filepath.Join(o.Paths.PIDDir, name+".pid")
	pid, err := supervisor.ReadPID(pidFile)
	if err != nil {
		return InstanceStatus{Name: name, Port: port}
	}

	running := supervisor.IsAlive(pid)
	return InstanceStatus{
		Name:    name,
		PID:     pid,
		Running: running,
		Healthy: running && portutil.IsPortInUse(port),
		Port:    port,
	}
}

// Restart stops and then starts the deployment, the way `supervisorctl
// restart` composes the two primitives rather than having its own
// independent code path.
func (o *Orchestrator) Restart(ctx context.Context, opts StartOptions, timeout time.Duration) (string, error) {
	if err := o.Stop(ctx, timeout); err != nil {
		logging.Warn(subsystem, "restart: stop phase reported errors: %s", err)
		return "", err
	}
	return o.Start(ctx, opts)
}

// GenGatewayConfig renders and writes the gateway config without starting
// anything — the `gen-gateway-config` command's entire job. Unlike Start's
// RENDER_GATEWAY_CONFIG phase, this always (re)renders; validate controls
// whether the gateway binary's config-check also runs against the result.
func (o *Orchestrator) GenGatewayConfig(ctx context.Context, validate bool) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	rendered, err := gateway.Render(cfg)
	if err != nil {
		return GatewayError{Err: err}
	}

	if err := gateway.Write(o.Paths.GatewayConfig, rendered); err != nil {
		return GatewayError{Err: err}
	}

	if validate {
		if err := gateway.Validate(ctx, o.GatewayBin.Path, o.GatewayBin.ConfigCheckFlag, o.Paths.GatewayConfig); err != nil {
			return GatewayError{Err: err}
		}
	}
	return nil
}
