package badger

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/atlasnet/atlas-go/model/atlas"
	"github.com/atlasnet/atlas-go/storage"
	"github.com/atlasnet/atlas-go/storage/badger/operation"
)

// Checkpoints implements storage.CheckpointStore on badger.
type Checkpoints struct {
	db          *badger.DB
	checkpoints *cache // seq -> *atlas.VerifiedCheckpoint
	contents    *cache // digest -> *atlas.CheckpointContents
}

var _ storage.CheckpointStore = (*Checkpoints)(nil)

const checkpointCacheLimit = 1000

func NewCheckpoints(db *badger.DB) *Checkpoints {
	c := &Checkpoints{db: db}

	c.checkpoints = newCache(checkpointCacheLimit, func(key interface{}) (interface{}, error) {
		seq := key.(uint64)
		var checkpoint atlas.VerifiedCheckpoint
		err := db.View(operation.RetrieveCheckpoint(seq, &checkpoint))
		if err != nil {
			return nil, err
		}
		return &checkpoint, nil
	})

	c.contents = newCache(checkpointCacheLimit, func(key interface{}) (interface{}, error) {
		digest := key.(atlas.Identifier)
		var contents atlas.CheckpointContents
		err := db.View(operation.RetrieveCheckpointContents(digest, &contents))
		if err != nil {
			return nil, err
		}
		return &contents, nil
	})

	return c
}

func (c *Checkpoints) StoreSyncedCheckpoint(checkpoint *atlas.VerifiedCheckpoint, contents *atlas.CheckpointContents) error {
	if contents.Digest() != checkpoint.ContentsDigest {
		return fmt.Errorf("contents digest does not match checkpoint %d: %w",
			checkpoint.SequenceNumber, storage.ErrDataMismatch)
	}

	err := c.db.Update(func(tx *badger.Txn) error {
		err := operation.InsertCheckpoint(checkpoint)(tx)
		if errors.Is(err, storage.ErrAlreadyExists) {
			// re-storing a synced checkpoint is fine as long as it is the
			// same checkpoint; synced records are immutable
			var existing atlas.VerifiedCheckpoint
			if err := operation.RetrieveCheckpoint(checkpoint.SequenceNumber, &existing)(tx); err != nil {
				return fmt.Errorf("could not retrieve existing checkpoint: %w", err)
			}
			if existing.Digest() != checkpoint.Digest() {
				return fmt.Errorf("conflicting checkpoint at sequence %d: %w",
					checkpoint.SequenceNumber, storage.ErrDataMismatch)
			}
		} else if err != nil {
			return fmt.Errorf("could not insert checkpoint: %w", err)
		}

		err = operation.SkipDuplicates(operation.InsertCheckpointContents(checkpoint.ContentsDigest, contents))(tx)
		if err != nil {
			return fmt.Errorf("could not insert checkpoint contents: %w", err)
		}

		var highest uint64
		err = operation.RetrieveHighestSynced(&highest)(tx)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && checkpoint.SequenceNumber > highest) {
			return operation.UpsertHighestSynced(checkpoint.SequenceNumber)(tx)
		}
		return err
	})
	if err != nil {
		return err
	}

	c.checkpoints.insert(checkpoint.SequenceNumber, checkpoint)
	c.contents.insert(checkpoint.ContentsDigest, contents)
	return nil
}

func (c *Checkpoints) HighestSyncedCheckpoint() (*atlas.VerifiedCheckpoint, error) {
	var highest uint64
	err := c.db.View(operation.RetrieveHighestSynced(&highest))
	if err != nil {
		return nil, err
	}
	return c.CheckpointBySequenceNumber(highest)
}

func (c *Checkpoints) CheckpointBySequenceNumber(seq atlas.CheckpointSequenceNumber) (*atlas.VerifiedCheckpoint, error) {
	cached, err := c.checkpoints.get(seq)
	if err != nil {
		return nil, err
	}
	return cached.(*atlas.VerifiedCheckpoint), nil
}

func (c *Checkpoints) ContentsByDigest(digest atlas.Identifier) (*atlas.CheckpointContents, error) {
	cached, err := c.contents.get(digest)
	if err != nil {
		return nil, err
	}
	return cached.(*atlas.CheckpointContents), nil
}

func (c *Checkpoints) HighestExecutedCheckpoint() (*atlas.VerifiedCheckpoint, error) {
	var checkpoint atlas.VerifiedCheckpoint
	err := c.db.View(operation.RetrieveHighestExecuted(&checkpoint))
	if err != nil {
		return nil, err
	}
	return &checkpoint, nil
}

func (c *Checkpoints) UpdateHighestExecutedCheckpoint(checkpoint *atlas.VerifiedCheckpoint) error {
	return c.db.Update(operation.UpsertHighestExecuted(checkpoint))
}

func (c *Checkpoints) RecordCheckpointTransactions(seq atlas.CheckpointSequenceNumber, digests []atlas.Identifier) error {
	return c.db.Update(operation.UpsertCheckpointTransactions(seq, digests))
}

func (c *Checkpoints) CheckpointTransactions(seq atlas.CheckpointSequenceNumber) ([]atlas.Identifier, error) {
	var digests []atlas.Identifier
	err := c.db.View(operation.RetrieveCheckpointTransactions(seq, &digests))
	if err != nil {
		return nil, err
	}
	return digests, nil
}
