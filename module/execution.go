package module

import (
	"context"

	"github.com/atlasnet/atlas-go/model/atlas"
)

// ExecutionBackend is the asynchronous transaction execution service. Given a
// batch of sequenced transactions it computes and durably records their
// effects in the background; callers observe completion through AwaitEffects.
type ExecutionBackend interface {
	// Enqueue hands a batch of transactions to the backend for asynchronous
	// execution within the given epoch. It is fire-and-forget: a nil return
	// means the batch was accepted, not executed.
	Enqueue(ctx context.Context, txs []*atlas.SequencedTransaction, epoch uint64) error

	// ResolveTransactions loads previously synced transactions by digest.
	// Checkpoint execution resolves manifest digests through this before
	// re-enqueueing them. Fails if any digest is unknown.
	ResolveTransactions(digests []atlas.Identifier) ([]*atlas.SequencedTransaction, error)

	// AwaitEffects blocks until the effects of all requested transactions are
	// durably recorded, returning them in request order, or until the context
	// is cancelled.
	AwaitEffects(ctx context.Context, digests []atlas.Identifier) ([]*atlas.TransactionEffects, error)

	// EffectsExist reports, per requested digest, whether effects are already
	// durably recorded. Used for idempotent recovery after a crash.
	EffectsExist(digests []atlas.Identifier) ([]bool, error)

	// MissingInput describes which input of a pending transaction is
	// unavailable, if the backend knows. Diagnostic only.
	MissingInput(digest atlas.Identifier) (string, bool)
}

// StateAccumulator folds executed effects into the running state commitment.
type StateAccumulator interface {
	// AccumulateCheckpoint folds the effects of one finalized checkpoint,
	// keyed by its sequence number.
	AccumulateCheckpoint(effects []*atlas.TransactionEffects, seq atlas.CheckpointSequenceNumber) error

	// AccumulateEpoch folds the per-checkpoint accumulations of a whole epoch
	// into the epoch's final state commitment. Called exactly once per epoch,
	// after the epoch's last checkpoint is finalized.
	AccumulateEpoch(epoch uint64, lastCheckpointSeq atlas.CheckpointSequenceNumber) error
}
