package module

import (
	"github.com/atlasnet/atlas-go/model/atlas"
)

// EpochState is the per-epoch consensus-facing state of the validator. All
// methods are scoped to a single epoch; a fresh EpochState is constructed at
// every epoch change.
type EpochState interface {
	// Epoch returns the epoch this state is scoped to.
	Epoch() uint64

	// EpochStartTimestampMs returns the recorded start timestamp of the
	// epoch. Commit timestamps are clamped to be >= this value.
	EpochStartTimestampMs() uint64

	// LastConsensusIndex returns the highest execution index processed so
	// far, with its rolling hash, or storage.ErrNotFound before the first
	// commit of the epoch.
	LastConsensusIndex() (*atlas.ExecutionIndexWithHash, error)

	// VerifyConsensusTransaction checks the content validity of an external
	// transaction. A failure means the transaction is dropped, never that
	// sequencing halts: malformed input from a minority of authors must not
	// affect liveness.
	VerifyConsensusTransaction(tx *atlas.ConsensusTransaction) error

	// NewlyActiveCredentials returns the credential updates whose activation
	// was observed one round before the given round, in deterministic order.
	NewlyActiveCredentials(round uint64) []*atlas.CredentialUpdate

	// ProcessCommit consumes one commit's ordered transaction schedule
	// together with the end-of-publish signals observed in it. It decides
	// which transactions to schedule for execution, fills in the pending
	// checkpoint boundary (roots, last-of-epoch flag), and durably records
	// the boundary and the new consensus index in a single atomic write.
	ProcessCommit(
		txs []*atlas.SequencedTransaction,
		endOfPublish []atlas.AuthorityID,
		index *atlas.ExecutionIndexWithHash,
		pending *atlas.PendingCheckpoint,
	) ([]*atlas.SequencedTransaction, error)

	// AcquireSharedLocksFromEffects assigns the shared-object versions
	// implied by the transaction's expected effects. For all transactions of
	// a checkpoint this must complete before any of them is enqueued,
	// because acquisition order determines next-version assignment.
	AcquireSharedLocksFromEffects(tx *atlas.SequencedTransaction, expectedEffects atlas.Identifier) error
}
