package module

// SequencerMetrics exposes the counters of the consensus output sequencer.
// Expected drops (duplicates, stale indices, verification failures) are
// visible only here, never as errors.
type SequencerMetrics interface {
	// CommitProcessed is called once per handled consensus commit.
	CommitProcessed(round uint64, sequenced int)

	// CommitReplayed is called when an already-processed commit is delivered
	// again (restart replay).
	CommitReplayed(round uint64)

	// TransactionDropped records an expected drop with one of the
	// Drop* reasons below.
	TransactionDropped(reason string)

	// EndOfPublishObserved is called per end-of-publish signal accepted.
	EndOfPublishObserved()

	// LowScoringAuthorityTransaction is called per sequenced transaction
	// attributed to a currently low-scoring authority.
	LowScoringAuthorityTransaction()

	// SubmitQueueLength tracks the occupancy of the execution hand-off queue.
	SubmitQueueLength(length int)
}

// Drop reasons recorded via SequencerMetrics.TransactionDropped.
const (
	DropReasonStaleIndex         = "stale_index"
	DropReasonDuplicate          = "duplicate"
	DropReasonVerificationFailed = "verification_failed"
)

// ExecutorMetrics exposes the gauges and counters of the checkpoint
// execution pipeline.
type ExecutorMetrics interface {
	// CheckpointExecuted is called when the watermark advances to seq after
	// executing a checkpoint with the given number of transactions.
	CheckpointExecuted(seq uint64, transactions int)

	// CheckpointsInFlight tracks the current size of the completion buffer.
	CheckpointsInFlight(count int)

	// EffectsWaitTimedOut is called each time the effects wait loop times
	// out and retries.
	EffectsWaitTimedOut(missing int)

	// ScheduleRetried is called each time pre-enqueue scheduling of a
	// checkpoint is retried.
	ScheduleRetried(seq uint64)

	// TransactionsPerSecond reports the current execution throughput
	// estimate.
	TransactionsPerSecond(tps float64)
}
