package orchestrator

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fleetmgr/internal/supervisor"

	"github.com/stretchr/testify/require"
)

// freePort grabs an ephemeral port and releases it immediately, the same
// trick portutil's own tests use to get a deterministic free port number.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func testOrchestrator(t *testing.T, deploymentPath string) *Orchestrator {
	t.Helper()
	root := t.TempDir()
	return &Orchestrator{
		Paths:      NewPaths(root, deploymentPath),
		GatewayBin: GatewayBinary{},
		ServerBinary: func(serverName string) ServerBinary {
			return ServerBinary{Path: "sh", Args: []string{"-c", "sleep 30"}}
		},
	}
}

func writeDeploymentFile(t *testing.T, port int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "deployment.yaml")
	content := fmt.Sprintf(`
api_base_url: /api/v1
gateway:
  port: %d
servers:
  users:
    port: %d
    instances: 1
    modules: ["accounts"]
`, freePortForTest(), port)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func freePortForTest() int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 19000
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func TestStop_MissingPIDFilesIsNotAnError(t *testing.T) {
	port := freePort(t)
	path := writeDeploymentFile(t, port)
	o := testOrchestrator(t, path)

	err := o.Stop(context.Background(), supervisor.DefaultGracefulShutdownTimeout)
	require.NoError(t, err)
}

func TestStatus_ReportsNotRunningWithoutPIDFiles(t *testing.T) {
	port := freePort(t)
	path := writeDeploymentFile(t, port)
	o := testOrchestrator(t, path)

	report, err := o.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Instances, 1)
	require.False(t, report.Instances[0].Running)
}

func TestStatus_ReportsRunningInstance(t *testing.T) {
	port := freePort(t)
	path := writeDeploymentFile(t, port)
	o := testOrchestrator(t, path)

	h, err := supervisor.Spawn(supervisor.SpawnOptions{
		Name:    "users-0",
		Command: "sh",
		Args:    []string{"-c", "sleep 30"},
		PIDDir:  o.Paths.PIDDir,
		LogDir:  o.Paths.LogDir,
	})
	require.NoError(t, err)
	defer supervisor.Terminate(context.Background(), h.Name, h.PID, h.PIDFile, supervisor.DefaultGracefulShutdownTimeout)

	report, err := o.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Instances, 1)
	require.True(t, report.Instances[0].Running)
	require.Equal(t, h.PID, report.Instances[0].PID)
}

func TestGenGatewayConfig_WritesRenderedFile(t *testing.T) {
	port := freePort(t)
	path := writeDeploymentFile(t, port)
	o := testOrchestrator(t, path)

	err := o.GenGatewayConfig(context.Background(), false)
	require.NoError(t, err)
	require.FileExists(t, o.Paths.GatewayConfig)
}

func TestStart_FailsOnMissingDeploymentConfig(t *testing.T) {
	root := t.TempDir()
	o := &Orchestrator{
		Paths: NewPaths(root, filepath.Join(root, "does-not-exist.yaml")),
		ServerBinary: func(serverName string) ServerBinary {
			return ServerBinary{Path: "sh", Args: []string{"-c", "sleep 30"}}
		},
	}

	_, err := o.Start(context.Background(), StartOptions{})
	require.Error(t, err)
	var cfgErr ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestStart_RollsBackOnHealthTimeout(t *testing.T) {
	// The stand-in binary only ever sleeps, so /health never answers and
	// Start must tear down the instance it spawned instead of leaking it.
	port := freePort(t)
	path := writeDeploymentFile(t, port)
	o := testOrchestrator(t, path)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := o.Start(ctx, StartOptions{})
	require.Error(t, err)
	var healthErr HealthError
	require.ErrorAs(t, err, &healthErr)

	report, statusErr := o.Status(context.Background())
	require.NoError(t, statusErr)
	for _, inst := range report.Instances {
		require.False(t, inst.Running, "instance %s should have been rolled back", inst.Name)
	}
}

func TestCheckPorts_NoEvictAbortsInsteadOfEvicting(t *testing.T) {
	port := freePort(t)
	path := writeDeploymentFile(t, port)
	o := testOrchestrator(t, path)

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer ln.Close()

	cfg, err := o.loadConfig()
	require.NoError(t, err)

	err = o.checkPorts(context.Background(), cfg, true)
	require.Error(t, err)
	var portErr PortConflictError
	require.ErrorAs(t, err, &portErr)
	require.Equal(t, port, portErr.Port)
}

func TestInstanceHealthPath_UsesAPIBaseURLAndFirstModule(t *testing.T) {
	port := freePort(t)
	path := writeDeploymentFile(t, port)
	o := testOrchestrator(t, path)
	cfg, err := o.loadConfig()
	require.NoError(t, err)

	inst := cfg.AllInstances()[0]
	require.Equal(t, "/api/v1/accounts/health", instanceHealthPath(cfg, inst))
}

func TestFirstHealthTarget_UsesFirstModuleNotServerName(t *testing.T) {
	port := freePort(t)
	path := writeDeploymentFile(t, port)
	o := testOrchestrator(t, path)
	cfg, err := o.loadConfig()
	require.NoError(t, err)

	require.Equal(t, "/api/v1/accounts/health", firstHealthTarget(cfg))
}

func TestSpawnAll_SetsEnabledModulesAndInstanceNameEnv(t *testing.T) {
	port := freePort(t)
	path := writeDeploymentFile(t, port)
	dumpDir := t.TempDir()

	root := t.TempDir()
	o := &Orchestrator{
		Paths: NewPaths(root, path),
		ServerBinary: func(serverName string) ServerBinary {
			return ServerBinary{
				Path: "sh",
				Args: []string{"-c", fmt.Sprintf("env > %s/$SERVER_INSTANCE_NAME.env; sleep 30", dumpDir)},
			}
		},
	}

	cfg, err := o.loadConfig()
	require.NoError(t, err)

	handles, err := o.spawnAll(cfg.AllInstances())
	require.NoError(t, err)
	defer func() {
		for _, h := range handles {
			_ = supervisor.Terminate(context.Background(), h.Name, h.PID, h.PIDFile, supervisor.DefaultGracefulShutdownTimeout)
		}
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dumpDir, "users-0.env"))
		return err == nil
	}, 2*time.Second, 50*time.Millisecond)

	data, err := os.ReadFile(filepath.Join(dumpDir, "users-0.env"))
	require.NoError(t, err)
	env := string(data)
	require.Contains(t, env, "ENABLED_MODULES=accounts")
	require.Contains(t, env, "SERVER_INSTANCE_NAME=users-0")
}

func TestForceStop_KillsRunningInstanceImmediately(t *testing.T) {
	port := freePort(t)
	path := writeDeploymentFile(t, port)
	o := testOrchestrator(t, path)

	h, err := supervisor.Spawn(supervisor.SpawnOptions{
		Name:    "users-0",
		Command: "sh",
		Args:    []string{"-c", "sleep 30"},
		PIDDir:  o.Paths.PIDDir,
		LogDir:  o.Paths.LogDir,
	})
	require.NoError(t, err)

	require.NoError(t, o.ForceStop())
	require.False(t, supervisor.IsAlive(h.PID))
}

