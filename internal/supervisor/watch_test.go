package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchPIDDir_DetectsExternalRemoval(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "users-0.pid")
	require.NoError(t, os.WriteFile(pidFile, []byte("123"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	removed := make(chan string, 1)
	go WatchPIDDir(ctx, dir, func(name string) { removed <- name })

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.Remove(pidFile))

	select {
	case name := <-removed:
		assert.Equal(t, "users-0", name)
	case <-time.After(1500 * time.Millisecond):
		t.Fatal("timed out waiting for removal notification")
	}
}

func TestInstanceNameFromPIDFile(t *testing.T) {
	assert.Equal(t, "users-0", instanceNameFromPIDFile("/var/run/fleetmgr/users-0.pid"))
	assert.Equal(t, "gateway", instanceNameFromPIDFile("gateway.pid"))
}
