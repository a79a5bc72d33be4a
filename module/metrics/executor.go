package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/atlasnet/atlas-go/module"
)

// ExecutorCollector implements module.ExecutorMetrics with prometheus
// collectors.
type ExecutorCollector struct {
	lastExecutedCheckpoint prometheus.Gauge
	checkpointTransactions prometheus.Histogram
	checkpointsInFlight    prometheus.Gauge
	effectsWaitTimeouts    prometheus.Counter
	scheduleRetries        prometheus.Counter
	transactionsPerSecond  prometheus.Gauge
}

var _ module.ExecutorMetrics = (*ExecutorCollector)(nil)

func NewExecutorCollector(registerer prometheus.Registerer) *ExecutorCollector {
	c := &ExecutorCollector{
		lastExecutedCheckpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceAtlas,
			Subsystem: subsystemExecutor,
			Name:      "last_executed_checkpoint",
			Help:      "sequence number of the highest executed checkpoint (the watermark)",
		}),
		checkpointTransactions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceAtlas,
			Subsystem: subsystemExecutor,
			Name:      "checkpoint_transaction_count",
			Help:      "number of transactions per executed checkpoint",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		}),
		checkpointsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceAtlas,
			Subsystem: subsystemExecutor,
			Name:      "checkpoints_in_flight",
			Help:      "checkpoints currently scheduled but not yet committed to the watermark",
		}),
		effectsWaitTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceAtlas,
			Subsystem: subsystemExecutor,
			Name:      "effects_wait_timeouts_total",
			Help:      "number of effects-await timeouts followed by a retry",
		}),
		scheduleRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceAtlas,
			Subsystem: subsystemExecutor,
			Name:      "schedule_retries_total",
			Help:      "number of pre-enqueue checkpoint scheduling retries",
		}),
		transactionsPerSecond: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceAtlas,
			Subsystem: subsystemExecutor,
			Name:      "transactions_per_second",
			Help:      "current checkpoint execution throughput estimate",
		}),
	}

	registerer.MustRegister(
		c.lastExecutedCheckpoint,
		c.checkpointTransactions,
		c.checkpointsInFlight,
		c.effectsWaitTimeouts,
		c.scheduleRetries,
		c.transactionsPerSecond,
	)

	return c
}

func (c *ExecutorCollector) CheckpointExecuted(seq uint64, transactions int) {
	c.lastExecutedCheckpoint.Set(float64(seq))
	c.checkpointTransactions.Observe(float64(transactions))
}

func (c *ExecutorCollector) CheckpointsInFlight(count int) {
	c.checkpointsInFlight.Set(float64(count))
}

func (c *ExecutorCollector) EffectsWaitTimedOut(missing int) {
	c.effectsWaitTimeouts.Inc()
}

func (c *ExecutorCollector) ScheduleRetried(seq uint64) {
	c.scheduleRetries.Inc()
}

func (c *ExecutorCollector) TransactionsPerSecond(tps float64) {
	c.transactionsPerSecond.Set(tps)
}
