package lifecycle

import "github.com/prometheus/client_golang/prometheus"

var (
	loadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gptd",
		Subsystem: "lifecycle",
		Name:      "loads_total",
		Help:      "Total number of successful model loads",
	})

	loadFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gptd",
		Subsystem: "lifecycle",
		Name:      "load_failures_total",
		Help:      "Total number of failed model loads (including quantization verification failures)",
	})

	loadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gptd",
		Subsystem: "lifecycle",
		Name:      "load_duration_seconds",
		Help:      "Duration of successful model loads in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	generateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gptd",
		Subsystem: "generate",
		Name:      "duration_seconds",
		Help:      "Duration of decode calls in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	generateTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gptd",
		Subsystem: "generate",
		Name:      "tokens_total",
		Help:      "Tokens processed by decode calls",
	}, []string{"kind"})

	backpressureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gptd",
		Subsystem: "generate",
		Name:      "backpressure_total",
		Help:      "Generations rejected because the admission queue was full or timed out",
	})

	stateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gptd",
		Subsystem: "lifecycle",
		Name:      "state",
		Help:      "Current lifecycle state (1 for the active state, 0 otherwise)",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(
		loadsTotal,
		loadFailuresTotal,
		loadDuration,
		generateDuration,
		generateTokensTotal,
		backpressureTotal,
		stateGauge,
	)
}
