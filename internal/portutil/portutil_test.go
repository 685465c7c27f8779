package portutil

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenOnFreePort(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func TestIsPortInUse(t *testing.T) {
	ln, port := listenOnFreePort(t)
	assert.True(t, IsPortInUse(port))

	ln.Close()
	assert.False(t, IsPortInUse(port))
}

func TestWaitForPortFree_AlreadyFree(t *testing.T) {
	ln, port := listenOnFreePort(t)
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, WaitForPortFree(ctx, port))
}

func TestWaitForPortFree_BecomesFree(t *testing.T) {
	ln, port := listenOnFreePort(t)

	go func() {
		time.Sleep(150 * time.Millisecond)
		ln.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, WaitForPortFree(ctx, port))
}

func TestWaitForPortFree_TimesOut(t *testing.T) {
	ln, port := listenOnFreePort(t)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := WaitForPortFree(ctx, port)
	require.Error(t, err)
}
