package unittest

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlasnet/atlas-go/model/atlas"
)

// IdentifierFixture returns a random identifier.
func IdentifierFixture() atlas.Identifier {
	var id atlas.Identifier
	_, _ = rand.Read(id[:])
	return id
}

// IdentifierListFixture returns n distinct random identifiers.
func IdentifierListFixture(n int) []atlas.Identifier {
	ids := make([]atlas.Identifier, n)
	for i := range ids {
		ids[i] = IdentifierFixture()
	}
	return ids
}

// AuthorityFixture returns a committee member with unit stake.
func AuthorityFixture() atlas.Authority {
	return atlas.Authority{
		ID:    IdentifierFixture(),
		Stake: 1,
	}
}

// CommitteeFixture returns a committee of n unit-stake authorities.
func CommitteeFixture(t testing.TB, epoch uint64, n int) *atlas.Committee {
	authorities := make([]atlas.Authority, n)
	for i := range authorities {
		authorities[i] = AuthorityFixture()
	}
	committee, err := atlas.NewCommittee(epoch, authorities)
	require.NoError(t, err)
	return committee
}

// UserTransactionFixture returns a user transaction whose digest is
// consistent with its payload, so it passes verification.
func UserTransactionFixture(gasPrice uint64) *atlas.ConsensusTransaction {
	payload := make([]byte, 64)
	_, _ = rand.Read(payload)
	return &atlas.ConsensusTransaction{
		Kind: atlas.ConsensusKindUserTransaction,
		User: &atlas.UserTransaction{
			Digest:   atlas.HashToIdentifier(payload),
			Payload:  payload,
			GasPrice: gasPrice,
		},
	}
}

// EndOfPublishFixture returns an end-of-publish signal from the given author.
func EndOfPublishFixture(author atlas.AuthorityID) *atlas.ConsensusTransaction {
	return &atlas.ConsensusTransaction{
		Kind:       atlas.ConsensusKindEndOfPublish,
		EndOfEpoch: &atlas.EndOfPublish{Author: author},
	}
}

// EncodeTransactions serializes consensus transactions into raw batch entries.
func EncodeTransactions(t testing.TB, txs ...*atlas.ConsensusTransaction) [][]byte {
	raw := make([][]byte, len(txs))
	for i, tx := range txs {
		encoded, err := tx.Encode()
		require.NoError(t, err)
		raw[i] = encoded
	}
	return raw
}

// CertifiedBatchFixture wraps raw transactions into a batch from the given
// author at the given round.
func CertifiedBatchFixture(author atlas.AuthorityID, round uint64, raw [][]byte) *atlas.CertifiedBatch {
	return &atlas.CertifiedBatch{
		Author:            author,
		Round:             round,
		CertificateDigest: IdentifierFixture(),
		Transactions:      raw,
	}
}

// CommittedSubDagFixture returns a commit at the given round and sub-dag
// index containing the given batches.
func CommittedSubDagFixture(round uint64, subDagIndex uint64, batches ...*atlas.CertifiedBatch) *atlas.CommittedSubDag {
	leader := IdentifierFixture()
	if len(batches) > 0 {
		leader = batches[0].Author
	}
	return &atlas.CommittedSubDag{
		LeaderAuthor:      leader,
		LeaderRound:       round,
		SubDagIndex:       subDagIndex,
		CommitTimestampMs: 1_000_000 + round,
		Batches:           batches,
	}
}

// CheckpointContentsFixture returns a manifest of n random transaction and
// effects digest pairs.
func CheckpointContentsFixture(n int) *atlas.CheckpointContents {
	digests := make([]atlas.ExecutionDigests, n)
	for i := range digests {
		digests[i] = atlas.ExecutionDigests{
			Transaction: IdentifierFixture(),
			Effects:     IdentifierFixture(),
		}
	}
	return &atlas.CheckpointContents{Digests: digests}
}

// VerifiedCheckpointFixture returns a checkpoint summary consistent with the
// given manifest.
func VerifiedCheckpointFixture(seq atlas.CheckpointSequenceNumber, epoch uint64, contents *atlas.CheckpointContents) *atlas.VerifiedCheckpoint {
	previous := IdentifierFixture()
	return &atlas.VerifiedCheckpoint{
		SequenceNumber: seq,
		Epoch:          epoch,
		ContentsDigest: contents.Digest(),
		PreviousDigest: &previous,
		TimestampMs:    1_000_000 + seq,
	}
}

// TransactionEffectsFixture returns effects for the given transaction digest.
func TransactionEffectsFixture(txDigest atlas.Identifier) *atlas.TransactionEffects {
	return &atlas.TransactionEffects{
		TransactionDigest: txDigest,
		Status:            atlas.ExecutionStatusSuccess,
		ExecutedEpoch:     0,
		GasUsed:           rand.Uint64() % 1000,
	}
}
