package iridium

import "github.com/prometheus/client_golang/prometheus"

// Metrics are ambient observability counters for the MT transmit engine and
// MO receive server. They are incremented at the exact points the state
// machine and receive session already transition through, so they add no
// new behavioral semantics.
var (
	mtQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "iridium",
		Subsystem: "mt",
		Name:      "queue_depth",
		Help:      "Number of MT messages currently queued for transmission.",
	})
	mtSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "iridium",
		Subsystem: "mt",
		Name:      "sent_total",
		Help:      "Number of MT messages written to the gateway.",
	})
	mtConfirmedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "iridium",
		Subsystem: "mt",
		Name:      "confirmed_total",
		Help:      "Number of MT messages confirmed successfully (msg_status >= 0).",
	})
	mtErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "iridium",
		Subsystem: "mt",
		Name:      "errors_total",
		Help:      "Number of transitions into the ERROR state.",
	})
	mtBackoffSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "iridium",
		Subsystem: "mt",
		Name:      "backoff_seconds",
		Help:      "Backoff delay applied before the next connection attempt.",
		Buckets:   []float64{0.1, 0.2, 0.4, 0.8, 1.6, 3.2, 6.4},
	})
	moReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "iridium",
		Subsystem: "mo",
		Name:      "received_total",
		Help:      "Number of MO messages successfully parsed and emitted.",
	})
	moSessionErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "iridium",
		Subsystem: "mo",
		Name:      "session_errors_total",
		Help:      "Number of incoming sessions that terminated with an error.",
	})
)

// RegisterMetrics registers the package's collectors against reg. Callers
// that do not want Direct-IP metrics simply never call this.
func RegisterMetrics(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		mtQueueDepth, mtSentTotal, mtConfirmedTotal, mtErrorsTotal,
		mtBackoffSeconds, moReceivedTotal, moSessionErrorsTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
