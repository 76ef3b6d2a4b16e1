package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	workersReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden",
		Name:      "workers_ready",
		Help:      "Number of server workers currently acknowledged as ready.",
	})

	workerRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "worker_restarts_total",
		Help:      "Total number of restarts dispatched to each worker.",
	}, []string{"worker"})

	ackWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "warden",
		Name:      "ack_wait_seconds",
		Help:      "Time spent in the startup barrier waiting for worker acknowledgments.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "warden",
		Name:      "build_info",
		Help:      "Build metadata for the running warden binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(workersReady, workerRestarts, ackWait, buildInfo)
}

// Registry returns the Prometheus registry containing all warden metrics.
func Registry() *prometheus.Registry {
	return registry
}

// SetWorkersReady records how many server workers have acknowledged.
func SetWorkersReady(n int) {
	workersReady.Set(float64(n))
}

// IncWorkerRestart increments the restart counter for a worker.
func IncWorkerRestart(worker string) {
	if worker == "" {
		return
	}
	workerRestarts.WithLabelValues(worker).Inc()
}

// ObserveAckWait records how long the startup barrier took to clear.
func ObserveAckWait(d time.Duration) {
	ackWait.Observe(d.Seconds())
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
