package operation

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/atlasnet/atlas-go/model/atlas"
)

func InsertCheckpoint(checkpoint *atlas.VerifiedCheckpoint) func(*badger.Txn) error {
	return insert(makePrefix(codeCheckpointBySeq, checkpoint.SequenceNumber), checkpoint)
}

func RetrieveCheckpoint(seq uint64, checkpoint *atlas.VerifiedCheckpoint) func(*badger.Txn) error {
	return retrieve(makePrefix(codeCheckpointBySeq, seq), checkpoint)
}

func CheckCheckpointExists(seq uint64, result *bool) func(*badger.Txn) error {
	return exists(makePrefix(codeCheckpointBySeq, seq), result)
}

func InsertCheckpointContents(digest atlas.Identifier, contents *atlas.CheckpointContents) func(*badger.Txn) error {
	return insert(makePrefix(codeCheckpointContents, digest), contents)
}

func RetrieveCheckpointContents(digest atlas.Identifier, contents *atlas.CheckpointContents) func(*badger.Txn) error {
	return retrieve(makePrefix(codeCheckpointContents, digest), contents)
}

func UpsertHighestSynced(seq uint64) func(*badger.Txn) error {
	return upsert(makePrefix(codeHighestSynced), seq)
}

func RetrieveHighestSynced(seq *uint64) func(*badger.Txn) error {
	return retrieve(makePrefix(codeHighestSynced), seq)
}

func UpsertHighestExecuted(checkpoint *atlas.VerifiedCheckpoint) func(*badger.Txn) error {
	return upsert(makePrefix(codeHighestExecuted), checkpoint)
}

func RetrieveHighestExecuted(checkpoint *atlas.VerifiedCheckpoint) func(*badger.Txn) error {
	return retrieve(makePrefix(codeHighestExecuted), checkpoint)
}

func UpsertCheckpointTransactions(seq uint64, digests []atlas.Identifier) func(*badger.Txn) error {
	return upsert(makePrefix(codeCheckpointTransactions, seq), digests)
}

func RetrieveCheckpointTransactions(seq uint64, digests *[]atlas.Identifier) func(*badger.Txn) error {
	return retrieve(makePrefix(codeCheckpointTransactions, seq), digests)
}
