package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes
const (
	OutcomeLockBusy  = "lock_busy"
	OutcomeNotDue    = "not_due"
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

var (
	// Scheduler metrics
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topio_agent_cycles_total",
			Help: "Workflow wake-ups by workflow and outcome",
		},
		[]string{"workflow", "outcome"},
	)

	CycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "topio_agent_cycle_duration_seconds",
			Help:    "Duration of admitted workflow cycles in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		},
		[]string{"workflow"},
	)

	ConsecutiveFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "topio_agent_consecutive_failures",
			Help: "Consecutive failed cycles per workflow",
		},
		[]string{"workflow"},
	)

	// Upgrade metrics
	UpgradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topio_agent_upgrades_total",
			Help: "Upgrade attempts by result (completed, rolled_back, rollback_failed)",
		},
		[]string{"result"},
	)

	InstalledVersion = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "topio_agent_installed_version_info",
			Help: "Installed topio version per tenant (value is always 1)",
		},
		[]string{"tenant", "version"},
	)

	JoinPolls = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "topio_agent_join_polls",
			Help:    "Join status polls needed before an account joined",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 120},
		},
	)

	// Reward metrics
	ClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topio_agent_claims_total",
			Help: "Reward claims issued per tenant",
		},
		[]string{"tenant"},
	)

	SweptTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topio_agent_swept_units_total",
			Help: "Units transferred to the sweep target per tenant",
		},
		[]string{"tenant"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal)
	prometheus.MustRegister(CycleDuration)
	prometheus.MustRegister(ConsecutiveFailures)
	prometheus.MustRegister(UpgradesTotal)
	prometheus.MustRegister(InstalledVersion)
	prometheus.MustRegister(JoinPolls)
	prometheus.MustRegister(ClaimsTotal)
	prometheus.MustRegister(SweptTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServeMux wires /metrics, /health, /ready and /live
func NewServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", HealthHandler())
	mux.HandleFunc("/ready", ReadyHandler())
	mux.HandleFunc("/live", LivenessHandler())
	return mux
}
