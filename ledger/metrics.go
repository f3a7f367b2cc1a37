package ledger

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ledger_client"

type metrics struct {
	submissions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	nodeReplies *prometheus.CounterVec
}

// register adds c to reg. When an equal collector is already there, as with
// a second client on the same registerer, the registered one is returned so
// both clients count into it.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}

	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}

		panic(err)
	}

	return c
}

// newMetrics registers with reg; a nil reg keeps the collectors private.
func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		submissions: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Submitted requests by transaction type and final state.",
		}, []string{"txn_type", "state"})),
		latency: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_duration_seconds",
			Help:      "Time from broadcast to a final state.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"txn_type"})),
		nodeReplies: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_replies_total",
			Help:      "Node answers by node and kind.",
		}, []string{"node", "kind"})),
	}
}
