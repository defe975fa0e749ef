// Package metrics exposes Prometheus instrumentation for handle lifetimes
// and collective operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Release results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	// HandlesOpen tracks live scoped handles by kind.
	HandlesOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "h5par_handles_open",
		Help: "Number of live container handles by kind",
	}, []string{"kind"})

	// HandleReleases counts handle releases by kind and result.
	HandleReleases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "h5par_handle_releases_total",
		Help: "Total container handle releases by kind and result",
	}, []string{"kind", "result"})

	// CollectiveOps counts collective calls issued by this process.
	CollectiveOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "h5par_collective_ops_total",
		Help: "Total collective operations by operation",
	}, []string{"op"})

	// BytesTransferred counts dataset and attribute payload bytes.
	BytesTransferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "h5par_bytes_transferred_total",
		Help: "Total payload bytes moved to or from containers",
	}, []string{"direction"})
)

// ObserveRelease records the outcome of releasing a handle of kind.
func ObserveRelease(kind string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	HandleReleases.WithLabelValues(kind, result).Inc()
	HandlesOpen.WithLabelValues(kind).Dec()
}
