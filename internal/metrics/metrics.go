// Package metrics exports health check outcomes to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/monero-ecosystem/monerohealth/internal/health"
)

// Check label values of the status gauge.
const (
	CheckCombined  = "combined"
	CheckLastBlock = health.LastBlockKey
	CheckDaemon    = health.DaemonKey
	CheckRPC       = health.RPCKey
	CheckP2P       = health.P2PKey
)

// Recorder holds the collectors fed by Observe.
type Recorder struct {
	status   *prometheus.GaugeVec
	blockAge prometheus.Gauge
	checks   *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewRecorder registers the collectors with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		status: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "monerohealth_status",
			Help: "Status weight of the latest check (0 OK, 1 UNKNOWN, 2 ERROR)",
		}, []string{"check"}),
		blockAge: f.NewGauge(prometheus.GaugeOpts{
			Name: "monerohealth_last_block_age_seconds",
			Help: "Age of the daemon's last block at the latest check, -1 if unknown",
		}),
		checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "monerohealth_checks_total",
			Help: "Combined checks run, by resulting status",
		}, []string{"status"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "monerohealth_check_duration_seconds",
			Help:    "Duration of a combined check",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Observe records a combined result that took elapsed to produce.
func (r *Recorder) Observe(res health.CombinedResult, elapsed time.Duration) {
	r.status.WithLabelValues(CheckCombined).Set(weight(res.Status))
	r.status.WithLabelValues(CheckLastBlock).Set(weight(res.LastBlock.Status))
	r.status.WithLabelValues(CheckDaemon).Set(weight(res.Daemon.Status))
	r.status.WithLabelValues(CheckRPC).Set(weight(res.Daemon.RPC.Status))
	r.status.WithLabelValues(CheckP2P).Set(weight(res.Daemon.P2P.Status))

	if age := res.LastBlock.BlockAge; age.Known {
		r.blockAge.Set(age.Age.Seconds())
	} else {
		r.blockAge.Set(-1)
	}

	r.checks.WithLabelValues(string(res.Status)).Inc()
	r.duration.Observe(elapsed.Seconds())
}

func weight(s health.Status) float64 {
	return float64(s.Weight())
}
