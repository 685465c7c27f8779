// Package health polls backend HTTP health endpoints until they report
// ready or a deadline expires.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"fleetmgr/pkg/logging"

	"github.com/hashicorp/go-cleanhttp"
)

const subsystem = "HealthProber"

// DefaultInterval is the fixed polling interval between health checks; no
// backoff is applied here, unlike the port arbiter's eviction schedule,
// because a starting server's readiness has no contention to back off
// from.
const DefaultInterval = 500 * time.Millisecond

// DefaultAttempts is the default probe budget: 30 attempts at
// DefaultInterval is 15 seconds.
const DefaultAttempts = 30

var client = cleanhttp.DefaultPooledClient()

// Target identifies one HTTP health endpoint to poll.
type Target struct {
	Name string
	URL  string
}

// WaitHealthy polls target.URL at DefaultInterval until it returns HTTP
// 200 or the attempt budget is exhausted, whichever happens first.
func WaitHealthy(ctx context.Context, target Target) error {
	return WaitHealthyN(ctx, target, DefaultInterval, DefaultAttempts)
}

// WaitHealthyN is WaitHealthy with an explicit interval/attempts budget,
// exposed for callers (tests, the gateway's own self-check) that need a
// tighter or looser budget than the default 15s/30-attempt window.
func WaitHealthyN(ctx context.Context, target Target, interval time.Duration, attempts int) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := probe(ctx, target.URL); err == nil {
			logging.Info(subsystem, "%s healthy after %d attempt(s)", target.Name, attempt)
			return nil
		} else {
			lastErr = err
		}

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s to become healthy: %w", target.Name, ctx.Err())
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("%s did not become healthy after %d attempts: %w", target.Name, attempts, lastErr)
}

func probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// WaitAllHealthy polls every target concurrently and returns each target's
// result keyed by name (nil for healthy ones). All probes run to completion
// so every target is reported rather than canceling siblings on the first
// failure.
func WaitAllHealthy(ctx context.Context, targets []Target) map[string]error {
	results := make(map[string]error, len(targets))
	type outcome struct {
		name string
		err  error
	}
	out := make(chan outcome, len(targets))

	for _, target := range targets {
		go func(target Target) {
			out <- outcome{name: target.Name, err: WaitHealthy(ctx, target)}
		}(target)
	}

	for range targets {
		o := <-out
		results[o.name] = o.err
	}
	return results
}
