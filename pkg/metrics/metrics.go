package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Roster metrics
	CollectorsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "doghair_collectors_total",
			Help: "Number of live collectors in the roster",
		},
	)

	Collecting = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "doghair_collecting",
			Help: "Whether a collection run is active (1 = collecting, 0 = idle)",
		},
	)

	// Supervision metrics
	RebirthsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "doghair_collector_rebirths_total",
			Help: "Total number of collectors rebooted after a crash",
		},
	)

	CollectorsLostTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "doghair_collectors_lost_total",
			Help: "Total number of collectors dropped from the roster after a failed reboot",
		},
	)

	// Pull metrics
	PullCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "doghair_pull_cycles_total",
			Help: "Total number of pull cycles started",
		},
	)

	FilesTransferredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "doghair_files_transferred_total",
			Help: "Total number of sample files fully received",
		},
	)

	BytesTransferredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "doghair_bytes_transferred_total",
			Help: "Total bytes of sample data received across all pull cycles",
		},
	)

	TransferFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "doghair_transfer_failures_total",
			Help: "Total number of per-file transfers abandoned on timeout or socket error",
		},
	)

	PullDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "doghair_pull_duration_seconds",
			Help:    "Duration of completed pull cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Command metrics
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doghair_commands_total",
			Help: "Total number of operator commands by command and outcome",
		},
		[]string{"command", "outcome"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(CollectorsTotal)
	prometheus.MustRegister(Collecting)
	prometheus.MustRegister(RebirthsTotal)
	prometheus.MustRegister(CollectorsLostTotal)
	prometheus.MustRegister(PullCyclesTotal)
	prometheus.MustRegister(FilesTransferredTotal)
	prometheus.MustRegister(BytesTransferredTotal)
	prometheus.MustRegister(TransferFailuresTotal)
	prometheus.MustRegister(PullDuration)
	prometheus.MustRegister(CommandsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
