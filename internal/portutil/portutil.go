// Package portutil arbitrates the TCP ports a deployment needs: checking
// whether a port is already bound, waiting for one to come free, and, as a
// last resort, evicting whatever process is squatting on it.
package portutil

import (
	"context"
	"fmt"
	"net"
	"time"

	"fleetmgr/pkg/logging"

	"github.com/cenkalti/backoff/v5"
)

const subsystem = "PortArbiter"

// pollInterval is the fixed interval WaitForPortFree polls at; unlike
// ForceEvict's retry schedule this is not exponential, since a port
// becoming free is a one-time edge, not a contended resource.
const pollInterval = 100 * time.Millisecond

// IsPortInUse reports whether port is currently bound on the local host,
// probed by attempting to listen on it on every interface: a successful
// Listen plus immediate Close means the port was free.
func IsPortInUse(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return true
	}
	ln.Close()
	return false
}

// WaitForPortFree polls port at a fixed interval until it is no longer in
// use or ctx is done, whichever comes first.
func WaitForPortFree(ctx context.Context, port int) error {
	if !IsPortInUse(port) {
		return nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("port %d still in use: %w", port, ctx.Err())
		case <-ticker.C:
			if !IsPortInUse(port) {
				logging.Info(subsystem, "port %d is now free", port)
				return nil
			}
		}
	}
}

// evictSchedule is the bounded exponential backoff used by ForceEvict:
// 300ms, 600ms, 1.2s between attempts.
func evictSchedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 300 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return b
}

// maxEvictAttempts is one initial lookup+signal attempt plus three retries,
// one after each interval of evictSchedule.
const maxEvictAttempts = 4

// ForceEvict kills whatever process owns port and waits for the port to
// become free, retrying the lookup+signal cycle up to three times on the
// 300ms/600ms/1.2s schedule before giving up.
func ForceEvict(ctx context.Context, port int) error {
	if !IsPortInUse(port) {
		return nil
	}

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		pid, err := findOwningPID(port)
		if err == nil && pid > 0 {
			logging.Warn(subsystem, "evicting pid %d holding port %d (attempt %d/%d)", pid, port, attempt, maxEvictAttempts)
			if err := killProcessGroup(pid); err != nil {
				return struct{}{}, err
			}
		}
		if IsPortInUse(port) {
			return struct{}{}, fmt.Errorf("port %d still in use", port)
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(evictSchedule()),
		backoff.WithMaxTries(maxEvictAttempts),
	)
	if err != nil {
		return fmt.Errorf("force-evicting port %d: %w", port, err)
	}
	return nil
}
