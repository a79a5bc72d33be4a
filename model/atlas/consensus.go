package atlas

// ExecutionIndex identifies a transaction's position within the consensus
// output stream of one epoch. It is totally ordered and only ever advances.
type ExecutionIndex struct {
	LastCommittedRound uint64
	SubDagIndex        uint64
	TransactionIndex   uint64
}

// Less returns true if e orders strictly before o.
func (e ExecutionIndex) Less(o ExecutionIndex) bool {
	if e.LastCommittedRound != o.LastCommittedRound {
		return e.LastCommittedRound < o.LastCommittedRound
	}
	if e.SubDagIndex != o.SubDagIndex {
		return e.SubDagIndex < o.SubDagIndex
	}
	return e.TransactionIndex < o.TransactionIndex
}

// ExecutionIndexWithHash couples an execution index with the rolling checksum
// over all raw transaction bytes accepted up to and including that index.
// Two honest validators that reach the same index must hold the same hash.
// The pair is persisted so it survives restarts.
type ExecutionIndexWithHash struct {
	Index ExecutionIndex
	Hash  uint64
}

// CertifiedBatch is one author's consensus-attested batch of raw transactions
// referenced by a committed sub-DAG. Raw entries are serialized
// ConsensusTransactions in the author's submission order.
type CertifiedBatch struct {
	Author            AuthorityID
	Round             uint64
	CertificateDigest Identifier
	Transactions      [][]byte
}

// CommittedSubDag is the output of one consensus commit: the leader
// certificate plus all certified batches it causally references, flattened in
// deterministic commit order (author order, then in-batch order).
type CommittedSubDag struct {
	LeaderAuthor      AuthorityID
	LeaderRound       uint64
	SubDagIndex       uint64
	CommitTimestampMs uint64
	Batches           []*CertifiedBatch
}

// TransactionCount returns the total number of raw transactions in the commit.
func (c *CommittedSubDag) TransactionCount() int {
	count := 0
	for _, batch := range c.Batches {
		count += len(batch.Transactions)
	}
	return count
}
