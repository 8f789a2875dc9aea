package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "budget"

var (
	ReplicationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "queue_depth",
			Help:      "Number of records waiting to be replicated",
		},
	)

	ReplicationConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "connected",
			Help:      "1 when the replication connection is up, 0 otherwise",
		},
	)

	// ReplicationRecordsTotal counts records by outcome: sent, requeued, dropped.
	ReplicationRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "records_total",
			Help:      "Replication records by outcome",
		},
		[]string{"outcome"},
	)

	ReplicationReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "reconnects_total",
			Help:      "Total number of replication connection attempts",
		},
	)

	AccessCacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "access_cache",
			Name:      "requests_total",
			Help:      "Access cache lookups by key and result (hit, miss, error)",
		},
		[]string{"key", "result"},
	)

	// ConfirmationsTotal counts staged confirmations by kind and action: staged, committed, restored, rejected, swept.
	ConfirmationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "confirmation",
			Name:      "total",
			Help:      "Staged confirmation transitions by kind and action",
		},
		[]string{"kind", "action"},
	)
)
