package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/atlasnet/atlas-go/module"
)

// SequencerCollector implements module.SequencerMetrics with prometheus
// collectors.
type SequencerCollector struct {
	commitsProcessed        prometheus.Counter
	commitsReplayed         prometheus.Counter
	transactionsSequenced   prometheus.Counter
	transactionsDropped     *prometheus.CounterVec
	endOfPublishObserved    prometheus.Counter
	lowScoringTransactions  prometheus.Counter
	lastCommittedRoundGauge prometheus.Gauge
	submitQueueLength       prometheus.Gauge
}

var _ module.SequencerMetrics = (*SequencerCollector)(nil)

func NewSequencerCollector(registerer prometheus.Registerer) *SequencerCollector {
	c := &SequencerCollector{
		commitsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceAtlas,
			Subsystem: subsystemSequencer,
			Name:      "commits_processed_total",
			Help:      "number of consensus commits processed",
		}),
		commitsReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceAtlas,
			Subsystem: subsystemSequencer,
			Name:      "commits_replayed_total",
			Help:      "number of already-processed commits delivered again after a restart",
		}),
		transactionsSequenced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceAtlas,
			Subsystem: subsystemSequencer,
			Name:      "transactions_sequenced_total",
			Help:      "number of transactions admitted to the execution schedule",
		}),
		transactionsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceAtlas,
			Subsystem: subsystemSequencer,
			Name:      "transactions_dropped_total",
			Help:      "number of transactions dropped during sequencing, by reason",
		}, []string{"reason"}),
		endOfPublishObserved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceAtlas,
			Subsystem: subsystemSequencer,
			Name:      "end_of_publish_observed_total",
			Help:      "number of end-of-publish signals accepted",
		}),
		lowScoringTransactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceAtlas,
			Subsystem: subsystemSequencer,
			Name:      "low_scoring_authority_transactions_total",
			Help:      "number of sequenced transactions attributed to low-scoring authorities",
		}),
		lastCommittedRoundGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceAtlas,
			Subsystem: subsystemSequencer,
			Name:      "last_committed_round",
			Help:      "round of the most recently processed consensus commit",
		}),
		submitQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceAtlas,
			Subsystem: subsystemSequencer,
			Name:      "submit_queue_length",
			Help:      "occupancy of the execution hand-off queue",
		}),
	}

	registerer.MustRegister(
		c.commitsProcessed,
		c.commitsReplayed,
		c.transactionsSequenced,
		c.transactionsDropped,
		c.endOfPublishObserved,
		c.lowScoringTransactions,
		c.lastCommittedRoundGauge,
		c.submitQueueLength,
	)

	return c
}

func (c *SequencerCollector) CommitProcessed(round uint64, sequenced int) {
	c.commitsProcessed.Inc()
	c.transactionsSequenced.Add(float64(sequenced))
	c.lastCommittedRoundGauge.Set(float64(round))
}

func (c *SequencerCollector) CommitReplayed(round uint64) {
	c.commitsReplayed.Inc()
}

func (c *SequencerCollector) TransactionDropped(reason string) {
	c.transactionsDropped.WithLabelValues(reason).Inc()
}

func (c *SequencerCollector) EndOfPublishObserved() {
	c.endOfPublishObserved.Inc()
}

func (c *SequencerCollector) LowScoringAuthorityTransaction() {
	c.lowScoringTransactions.Inc()
}

func (c *SequencerCollector) SubmitQueueLength(length int) {
	c.submitQueueLength.Set(float64(length))
}
