package badger

import (
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/atlasnet/atlas-go/model/atlas"
	"github.com/atlasnet/atlas-go/storage"
	"github.com/atlasnet/atlas-go/storage/badger/operation"
)

// ConsensusProgress implements storage.ConsensusProgress on badger.
type ConsensusProgress struct {
	db *badger.DB
}

var _ storage.ConsensusProgress = (*ConsensusProgress)(nil)

func NewConsensusProgress(db *badger.DB) *ConsensusProgress {
	return &ConsensusProgress{db: db}
}

func (c *ConsensusProgress) LastConsensusIndex() (*atlas.ExecutionIndexWithHash, error) {
	var index atlas.ExecutionIndexWithHash
	err := c.db.View(operation.RetrieveLastConsensusIndex(&index))
	if err != nil {
		return nil, err
	}
	return &index, nil
}

func (c *ConsensusProgress) SetLastConsensusIndex(index *atlas.ExecutionIndexWithHash) error {
	return c.db.Update(operation.UpsertLastConsensusIndex(index))
}

func (c *ConsensusProgress) StorePendingCheckpoint(pending *atlas.PendingCheckpoint, index *atlas.ExecutionIndexWithHash) error {
	return c.db.Update(func(tx *badger.Txn) error {
		// the boundary and the index advance that produced it commit as one
		// write: recovery must never observe one without the other
		err := operation.SkipDuplicates(operation.InsertPendingCheckpoint(pending.CommitHeight, pending))(tx)
		if err != nil {
			return fmt.Errorf("could not insert pending checkpoint: %w", err)
		}
		err = operation.UpsertLatestPendingHeight(pending.CommitHeight)(tx)
		if err != nil {
			return fmt.Errorf("could not update latest pending height: %w", err)
		}
		err = operation.UpsertLastConsensusIndex(index)(tx)
		if err != nil {
			return fmt.Errorf("could not update consensus index: %w", err)
		}
		return nil
	})
}

func (c *ConsensusProgress) LatestPendingCheckpoint() (*atlas.PendingCheckpoint, error) {
	var pending atlas.PendingCheckpoint
	err := c.db.View(func(tx *badger.Txn) error {
		var height uint64
		if err := operation.RetrieveLatestPendingHeight(&height)(tx); err != nil {
			return err
		}
		return operation.RetrievePendingCheckpoint(height, &pending)(tx)
	})
	if err != nil {
		return nil, err
	}
	return &pending, nil
}

func (c *ConsensusProgress) PendingCheckpointByHeight(height uint64) (*atlas.PendingCheckpoint, error) {
	var pending atlas.PendingCheckpoint
	err := c.db.View(operation.RetrievePendingCheckpoint(height, &pending))
	if err != nil {
		return nil, err
	}
	return &pending, nil
}
