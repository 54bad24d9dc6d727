// Package telemetry exposes the relay's counters, rates, a JSON
// monitoring snapshot, and the operational warning/health services.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relay"

// Metrics groups every Prometheus collector the relay registers,
// organized by subsystem.
type Metrics struct {
	// codec
	FramesEncoded *prometheus.CounterVec
	FramesDecoded *prometheus.CounterVec
	DecodeErrors  *prometheus.CounterVec

	// queue
	QueueDepth   *prometheus.GaugeVec
	QueueDropped *prometheus.CounterVec
	QueueWarned  *prometheus.CounterVec

	// cache
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	CacheSize   prometheus.Gauge

	// pipeline
	QueriesExecuted *prometheus.CounterVec
	QueriesFailed   *prometheus.CounterVec
	RepliesSent     *prometheus.CounterVec
	SendFailures    *prometheus.CounterVec

	// role
	RoleState          prometheus.Gauge // 0=standby 1=master
	NegotiationsWon    prometheus.Counter
	NegotiationsLost   prometheus.Counter
	NegotiationsFailed prometheus.Counter
	PromotionsTotal    prometheus.Counter
	DemotionsTotal     prometheus.Counter

	// transport
	HeartbeatsSent     prometheus.Counter
	HeartbeatsReceived prometheus.Counter
}

// New registers every collector against reg and returns the bound handles.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesEncoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "codec", Name: "frames_encoded_total",
		}, []string{"kind"}),
		FramesDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "codec", Name: "frames_decoded_total",
		}, []string{"kind"}),
		DecodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "codec", Name: "decode_errors_total",
		}, []string{"kind"}),

		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "queue", Name: "depth",
		}, []string{"queue"}),
		QueueDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "dropped_total",
		}, []string{"queue"}),
		QueueWarned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "warned_total",
		}, []string{"queue"}),

		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
		}),
		CacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: "size",
		}),

		QueriesExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "queries_executed_total",
		}, []string{"kind"}),
		QueriesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "queries_failed_total",
		}, []string{"kind"}),
		RepliesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "replies_sent_total",
		}, []string{"kind"}),
		SendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "send_failures_total",
		}, []string{"kind"}),

		RoleState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "role", Name: "state",
		}),
		NegotiationsWon: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "role", Name: "negotiations_won_total",
		}),
		NegotiationsLost: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "role", Name: "negotiations_lost_total",
		}),
		NegotiationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "role", Name: "negotiations_failed_total",
		}),
		PromotionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "role", Name: "promotions_total",
		}),
		DemotionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "role", Name: "demotions_total",
		}),

		HeartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "heartbeats_sent_total",
		}),
		HeartbeatsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "heartbeats_received_total",
		}),
	}
}
