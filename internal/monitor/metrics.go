// Package monitor exposes closure metrics in Prometheus text exposition
// format. Counters are registered in init and served at /metrics by main.
package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ClosuresInitiated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "closure_initiated_total",
			Help: "Closures started",
		},
	)

	Withdrawals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "closure_withdrawals_total",
			Help: "ACH withdrawals initiated, split by full vs partial",
		},
		[]string{"kind"},
	)

	ResumeTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "closure_resume_ticks_total",
			Help: "Resume invocations by action taken",
		},
		[]string{"action"},
	)

	BrokerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "closure_broker_errors_total",
			Help: "Broker call failures by operation",
		},
		[]string{"op"},
	)

	PendingClosures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "closure_pending",
			Help: "Accounts currently in pending_closure",
		},
	)
)

func init() {
	prometheus.MustRegister(ClosuresInitiated, Withdrawals, ResumeTicks, BrokerErrors, PendingClosures)
}

// Handler serves the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
