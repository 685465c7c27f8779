// Package metrics exposes the manager's own operational metrics:
// per-instance up/down state, health-check latency, and spawn/terminate
// counts, scraped the usual Prometheus way over an optional HTTP listener.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"fleetmgr/pkg/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const subsystem = "Metrics"

var (
	registry = prometheus.NewRegistry()

	// InstanceUp is 1 while an instance is running and healthy, 0
	// otherwise, labeled by instance name.
	InstanceUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleetmgr_instance_up",
		Help: "1 if the instance is running and healthy, 0 otherwise.",
	}, []string{"instance"})

	// HealthCheckDuration records how long each health probe attempt took.
	HealthCheckDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetmgr_health_check_duration_seconds",
		Help:    "Duration of individual health check HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"instance"})

	// SpawnTotal counts process spawn attempts, labeled by outcome.
	SpawnTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetmgr_spawn_total",
		Help: "Number of process spawn attempts.",
	}, []string{"instance", "outcome"})

	// TerminateTotal counts process termination attempts, labeled by
	// outcome.
	TerminateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetmgr_terminate_total",
		Help: "Number of process termination attempts.",
	}, []string{"instance", "outcome"})
)

func init() {
	registry.MustRegister(InstanceUp, HealthCheckDuration, SpawnTotal, TerminateTotal)
}

// ObserveHealthCheck records the duration of one health check attempt for
// instance.
func ObserveHealthCheck(instance string, d time.Duration) {
	HealthCheckDuration.WithLabelValues(instance).Observe(d.Seconds())
}

// Serve starts the metrics HTTP listener on addr and blocks until ctx is
// canceled, the way the rest of the manager's long-running components are
// driven by a cancelable context rather than an explicit Stop call.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logging.Info(subsystem, "serving metrics on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
}
