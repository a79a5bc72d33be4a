package operation

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/atlasnet/atlas-go/model/atlas"
)

func UpsertLastConsensusIndex(index *atlas.ExecutionIndexWithHash) func(*badger.Txn) error {
	return upsert(makePrefix(codeLastConsensusIndex), index)
}

func RetrieveLastConsensusIndex(index *atlas.ExecutionIndexWithHash) func(*badger.Txn) error {
	return retrieve(makePrefix(codeLastConsensusIndex), index)
}

func InsertPendingCheckpoint(height uint64, pending *atlas.PendingCheckpoint) func(*badger.Txn) error {
	return insert(makePrefix(codePendingCheckpoint, height), pending)
}

func RetrievePendingCheckpoint(height uint64, pending *atlas.PendingCheckpoint) func(*badger.Txn) error {
	return retrieve(makePrefix(codePendingCheckpoint, height), pending)
}

func UpsertLatestPendingHeight(height uint64) func(*badger.Txn) error {
	return upsert(makePrefix(codeLatestPendingCheckpoint), height)
}

func RetrieveLatestPendingHeight(height *uint64) func(*badger.Txn) error {
	return retrieve(makePrefix(codeLatestPendingCheckpoint), height)
}
