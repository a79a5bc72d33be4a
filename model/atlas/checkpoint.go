package atlas

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v4"
)

// CheckpointSequenceNumber orders checkpoints within and across epochs. It
// starts at 0 at genesis and increases by exactly 1 per checkpoint.
type CheckpointSequenceNumber = uint64

// PendingCheckpoint is the boundary descriptor produced once per consensus
// commit. It is consumed exactly once by checkpoint formation.
type PendingCheckpoint struct {
	// Roots are the execution digests of the commit's scheduled transactions,
	// in final schedule order.
	Roots        []Identifier
	TimestampMs  uint64
	LastOfEpoch  bool
	CommitHeight uint64
}

// EndOfEpochData marks a checkpoint as the final checkpoint of its epoch and
// carries the parameters of the next epoch.
type EndOfEpochData struct {
	NextEpoch     uint64
	NextCommittee []Authority
}

// VerifiedCheckpoint is a committee-signed, sequence-numbered checkpoint
// summary. It is immutable once synced and is the canonical ordering key of
// checkpoint execution.
type VerifiedCheckpoint struct {
	SequenceNumber CheckpointSequenceNumber
	Epoch          uint64
	ContentsDigest Identifier
	PreviousDigest *Identifier
	TimestampMs    uint64
	// NetworkTotalTransactions is the cumulative count of executed
	// transactions up to and including this checkpoint.
	NetworkTotalTransactions uint64
	EndOfEpochData           *EndOfEpochData `msgpack:",omitempty"`
}

// IsLastOfEpoch reports whether this is the final checkpoint of its epoch.
func (c *VerifiedCheckpoint) IsLastOfEpoch() bool {
	return c.EndOfEpochData != nil
}

// Digest returns the content digest of the checkpoint summary.
func (c *VerifiedCheckpoint) Digest() Identifier {
	raw, err := msgpack.Marshal(c)
	if err != nil {
		panic(fmt.Sprintf("could not encode checkpoint summary: %v", err))
	}
	return HashToIdentifier(raw)
}

// ExecutionDigests pairs a transaction digest with the effects digest the
// committee agreed that transaction produces. The effects digest is the
// reference value for fork detection.
type ExecutionDigests struct {
	Transaction Identifier
	Effects     Identifier
}

// CheckpointContents is the ordered transaction manifest of one checkpoint.
// For the final checkpoint of an epoch, the epoch-changing transaction is by
// construction the last entry.
type CheckpointContents struct {
	Digests []ExecutionDigests
}

// Digest returns the content digest of the manifest, the value referenced by
// VerifiedCheckpoint.ContentsDigest.
func (c *CheckpointContents) Digest() Identifier {
	raw, err := msgpack.Marshal(c)
	if err != nil {
		panic(fmt.Sprintf("could not encode checkpoint contents: %v", err))
	}
	return HashToIdentifier(raw)
}

// TransactionDigests returns the manifest's transaction digests in order.
func (c *CheckpointContents) TransactionDigests() []Identifier {
	digests := make([]Identifier, len(c.Digests))
	for i, pair := range c.Digests {
		digests[i] = pair.Transaction
	}
	return digests
}

// Len returns the number of transactions in the manifest.
func (c *CheckpointContents) Len() int {
	return len(c.Digests)
}
