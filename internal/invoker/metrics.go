package invoker

import "github.com/prometheus/client_golang/prometheus"

const (
	resultOK          = "ok"
	resultNonZero     = "nonzero_exit"
	resultTimeout     = "timeout"
	resultCanceled    = "canceled"
	resultLaunchError = "launch_error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "captchad",
			Subsystem: "invoker",
			Name:      "runs_total",
			Help:      "Total number of external program invocations by result",
		},
		[]string{"program", "result"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "captchad",
			Subsystem: "invoker",
			Name:      "run_duration_seconds",
			Help:      "Wall time of external program invocations in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"program"},
	)
)

func init() {
	prometheus.MustRegister(runsTotal, runDuration)
}
