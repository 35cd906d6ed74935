package stats

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusSink implements StatsConsumer by exporting build counters on an
// HTTP /metrics endpoint. It is the Go-native analogue of the original's
// mmap'd monitor.dat file: instead of a shared-memory struct another process
// polls, a scrape target exposes the same counters to Prometheus.
type PrometheusSink struct {
	BaseStatsConsumer

	registry *prometheus.Registry
	server   *http.Server

	success  prometheus.Counter
	failed   prometheus.Counter
	ignored  prometheus.Counter
	skipped  prometheus.Counter
	total    prometheus.Gauge
	dynMax   prometheus.Gauge
	maxWorks prometheus.Gauge
}

// NewPrometheusSink creates a sink with its own registry (not the global
// default one, so multiple builds in-process don't collide on metric names)
// and starts serving /metrics on addr in the background.
//
// The caller must call Close to shut the HTTP server down.
func NewPrometheusSink(addr string) *PrometheusSink {
	reg := prometheus.NewRegistry()

	s := &PrometheusSink{
		registry: reg,
		success: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "portforge_build_success_total",
			Help: "Number of packages that built successfully.",
		}),
		failed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "portforge_build_failed_total",
			Help: "Number of packages that failed to build.",
		}),
		ignored: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "portforge_build_ignored_total",
			Help: "Number of packages skipped due to an IGNORE marker.",
		}),
		skipped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "portforge_build_skipped_total",
			Help: "Number of packages skipped because a dependency failed.",
		}),
		total: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "portforge_build_queued",
			Help: "Total packages queued for the active build run.",
		}),
		dynMax: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "portforge_dynamic_max_workers",
			Help: "Current dynamic worker-slot ceiling.",
		}),
		maxWorks: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "portforge_max_workers",
			Help: "Configured worker-slot count.",
		}),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.server = &http.Server{Addr: addr, Handler: mux}

	go s.server.ListenAndServe()

	return s
}

// OnRunStart records the total package count for this run.
func (s *PrometheusSink) OnRunStart(total int) {
	s.total.Set(float64(total))
}

// OnSuccess increments the success counter.
func (s *PrometheusSink) OnSuccess(portDir string) {
	s.success.Inc()
}

// OnFailure increments the failure counter.
func (s *PrometheusSink) OnFailure(portDir string, lastPhase string) {
	s.failed.Inc()
}

// OnIgnored increments the ignored counter.
func (s *PrometheusSink) OnIgnored(portDir string, reason string) {
	s.ignored.Inc()
}

// OnSkipped increments the dependency-skipped counter.
func (s *PrometheusSink) OnSkipped(portDir string) {
	s.skipped.Inc()
}

// OnThrottleChange publishes the live dynamic/max worker gauges.
func (s *PrometheusSink) OnThrottleChange(dynMax, maxWorkers int) {
	s.dynMax.Set(float64(dynMax))
	s.maxWorks.Set(float64(maxWorkers))
}

// Close shuts down the /metrics HTTP server.
func (s *PrometheusSink) Close(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
