package metrics

import (
	"github.com/atlasnet/atlas-go/module"
)

// NoopCollector is a metrics sink that does nothing. Used in tests.
type NoopCollector struct{}

var _ module.SequencerMetrics = (*NoopCollector)(nil)
var _ module.ExecutorMetrics = (*NoopCollector)(nil)

func NewNoopCollector() *NoopCollector { return &NoopCollector{} }

func (nc *NoopCollector) CommitProcessed(round uint64, sequenced int)  {}
func (nc *NoopCollector) CommitReplayed(round uint64)                  {}
func (nc *NoopCollector) TransactionDropped(reason string)             {}
func (nc *NoopCollector) EndOfPublishObserved()                        {}
func (nc *NoopCollector) LowScoringAuthorityTransaction()              {}
func (nc *NoopCollector) SubmitQueueLength(length int)                 {}
func (nc *NoopCollector) CheckpointExecuted(seq uint64, txs int)       {}
func (nc *NoopCollector) CheckpointsInFlight(count int)                {}
func (nc *NoopCollector) EffectsWaitTimedOut(missing int)              {}
func (nc *NoopCollector) ScheduleRetried(seq uint64)                   {}
func (nc *NoopCollector) TransactionsPerSecond(tps float64)            {}
