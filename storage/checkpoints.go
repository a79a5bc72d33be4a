package storage

import (
	"github.com/atlasnet/atlas-go/model/atlas"
)

// CheckpointStore persists synced checkpoints, their contents and the
// executed-watermark. Implementations must be safe for concurrent use; the
// watermark update must be durable before the call returns.
type CheckpointStore interface {
	// StoreSyncedCheckpoint records a checkpoint received from state sync
	// together with its contents manifest. Re-storing the same checkpoint is
	// a no-op; storing different data under an existing sequence number
	// fails with ErrDataMismatch.
	StoreSyncedCheckpoint(checkpoint *atlas.VerifiedCheckpoint, contents *atlas.CheckpointContents) error

	// HighestSyncedCheckpoint returns the synced checkpoint with the highest
	// sequence number, or ErrNotFound if none was stored yet.
	HighestSyncedCheckpoint() (*atlas.VerifiedCheckpoint, error)

	// CheckpointBySequenceNumber returns the synced checkpoint with the
	// given sequence number, or ErrNotFound.
	CheckpointBySequenceNumber(seq atlas.CheckpointSequenceNumber) (*atlas.VerifiedCheckpoint, error)

	// ContentsByDigest returns a checkpoint's transaction manifest by its
	// contents digest, or ErrNotFound.
	ContentsByDigest(digest atlas.Identifier) (*atlas.CheckpointContents, error)

	// HighestExecutedCheckpoint returns the watermark checkpoint, or
	// ErrNotFound if no checkpoint was executed yet (fresh state at epoch 0).
	HighestExecutedCheckpoint() (*atlas.VerifiedCheckpoint, error)

	// UpdateHighestExecutedCheckpoint durably advances the watermark. The
	// caller guarantees gap-free, strictly increasing updates.
	UpdateHighestExecutedCheckpoint(checkpoint *atlas.VerifiedCheckpoint) error

	// RecordCheckpointTransactions durably records which transactions belong
	// to an executed checkpoint (finalization). Idempotent.
	RecordCheckpointTransactions(seq atlas.CheckpointSequenceNumber, digests []atlas.Identifier) error

	// CheckpointTransactions returns the finalized transaction association
	// of a checkpoint, or ErrNotFound.
	CheckpointTransactions(seq atlas.CheckpointSequenceNumber) ([]atlas.Identifier, error)
}

// ConsensusProgress persists the sequencer's per-epoch durable state: the
// rolling execution index and the pending checkpoint boundaries it emits.
type ConsensusProgress interface {
	// LastConsensusIndex returns the highest processed execution index with
	// its rolling hash, or ErrNotFound before the first commit.
	LastConsensusIndex() (*atlas.ExecutionIndexWithHash, error)

	// SetLastConsensusIndex durably replaces the stored index.
	SetLastConsensusIndex(index *atlas.ExecutionIndexWithHash) error

	// StorePendingCheckpoint records the boundary emitted for one commit,
	// keyed by commit height, and atomically updates the stored index to
	// match. The two writes commit together: a boundary is never visible
	// without the index advance that produced it.
	StorePendingCheckpoint(pending *atlas.PendingCheckpoint, index *atlas.ExecutionIndexWithHash) error

	// LatestPendingCheckpoint returns the pending boundary with the highest
	// commit height, or ErrNotFound.
	LatestPendingCheckpoint() (*atlas.PendingCheckpoint, error)

	// PendingCheckpointByHeight returns the boundary recorded at the given
	// commit height, or ErrNotFound.
	PendingCheckpointByHeight(height uint64) (*atlas.PendingCheckpoint, error)
}
