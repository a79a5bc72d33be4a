package executor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasnet/atlas-go/model/atlas"
	"github.com/atlasnet/atlas-go/module/irrecoverable"
	"github.com/atlasnet/atlas-go/module/metrics"
	bstorage "github.com/atlasnet/atlas-go/storage/badger"
	"github.com/atlasnet/atlas-go/utils/unittest"
)

// fakeBackend executes enqueued transactions by publishing pre-registered
// effects. Execution can be gated to simulate a slow executor.
type fakeBackend struct {
	mu       sync.Mutex
	txs      map[atlas.Identifier]*atlas.SequencedTransaction
	results  map[atlas.Identifier]*atlas.TransactionEffects
	executed map[atlas.Identifier]*atlas.TransactionEffects
	gated    bool
	pending  []atlas.Identifier
	enqueues int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		txs:      make(map[atlas.Identifier]*atlas.SequencedTransaction),
		results:  make(map[atlas.Identifier]*atlas.TransactionEffects),
		executed: make(map[atlas.Identifier]*atlas.TransactionEffects),
	}
}

func (b *fakeBackend) register(tx *atlas.SequencedTransaction, effects *atlas.TransactionEffects) {
	digest, ok := tx.Digest()
	if !ok {
		panic("registered non-executable transaction")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs[digest] = tx
	b.results[digest] = effects
}

func (b *fakeBackend) gate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gated = true
}

// release executes everything enqueued while gated and opens the gate.
func (b *fakeBackend) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gated = false
	for _, digest := range b.pending {
		b.executed[digest] = b.results[digest]
	}
	b.pending = nil
}

func (b *fakeBackend) enqueueCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enqueues
}

func (b *fakeBackend) Enqueue(_ context.Context, txs []*atlas.SequencedTransaction, _ uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enqueues++
	for _, tx := range txs {
		digest, ok := tx.Digest()
		if !ok {
			return fmt.Errorf("enqueued non-executable transaction")
		}
		if b.gated {
			b.pending = append(b.pending, digest)
			continue
		}
		b.executed[digest] = b.results[digest]
	}
	return nil
}

func (b *fakeBackend) ResolveTransactions(digests []atlas.Identifier) ([]*atlas.SequencedTransaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	txs := make([]*atlas.SequencedTransaction, len(digests))
	for i, digest := range digests {
		tx, ok := b.txs[digest]
		if !ok {
			return nil, fmt.Errorf("unknown transaction %v", digest)
		}
		txs[i] = tx
	}
	return txs, nil
}

func (b *fakeBackend) AwaitEffects(ctx context.Context, digests []atlas.Identifier) ([]*atlas.TransactionEffects, error) {
	for {
		b.mu.Lock()
		effects := make([]*atlas.TransactionEffects, 0, len(digests))
		for _, digest := range digests {
			eff, ok := b.executed[digest]
			if !ok {
				break
			}
			effects = append(effects, eff)
		}
		b.mu.Unlock()
		if len(effects) == len(digests) {
			return effects, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func (b *fakeBackend) EffectsExist(digests []atlas.Identifier) ([]bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	exist := make([]bool, len(digests))
	for i, digest := range digests {
		_, exist[i] = b.executed[digest]
	}
	return exist, nil
}

func (b *fakeBackend) MissingInput(atlas.Identifier) (string, bool) {
	return "", false
}

// stateMock pins the executor to an epoch and records lock acquisitions.
type stateMock struct {
	epoch uint64

	mu    sync.Mutex
	locks int
}

func (s *stateMock) Epoch() uint64                 { return s.epoch }
func (s *stateMock) EpochStartTimestampMs() uint64 { return 0 }
func (s *stateMock) LastConsensusIndex() (*atlas.ExecutionIndexWithHash, error) {
	return nil, fmt.Errorf("not implemented")
}
func (s *stateMock) VerifyConsensusTransaction(*atlas.ConsensusTransaction) error { return nil }
func (s *stateMock) NewlyActiveCredentials(uint64) []*atlas.CredentialUpdate      { return nil }
func (s *stateMock) ProcessCommit([]*atlas.SequencedTransaction, []atlas.AuthorityID, *atlas.ExecutionIndexWithHash, *atlas.PendingCheckpoint) ([]*atlas.SequencedTransaction, error) {
	return nil, fmt.Errorf("not implemented")
}
func (s *stateMock) AcquireSharedLocksFromEffects(*atlas.SequencedTransaction, atlas.Identifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks++
	return nil
}

// accumulatorMock records accumulation calls.
type accumulatorMock struct {
	mu          sync.Mutex
	checkpoints []atlas.CheckpointSequenceNumber
	epochs      map[uint64]atlas.CheckpointSequenceNumber
}

func newAccumulatorMock() *accumulatorMock {
	return &accumulatorMock{epochs: make(map[uint64]atlas.CheckpointSequenceNumber)}
}

func (a *accumulatorMock) AccumulateCheckpoint(_ []*atlas.TransactionEffects, seq atlas.CheckpointSequenceNumber) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkpoints = append(a.checkpoints, seq)
	return nil
}

func (a *accumulatorMock) AccumulateEpoch(epoch uint64, lastSeq atlas.CheckpointSequenceNumber) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.epochs[epoch] = lastSeq
	return nil
}

func (a *accumulatorMock) accumulated() []atlas.CheckpointSequenceNumber {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]atlas.CheckpointSequenceNumber{}, a.checkpoints...)
}

// checkpointFixture builds a checkpoint of n user transactions whose manifest
// matches the effects the backend will produce, registers everything with the
// backend and stores the checkpoint.
func checkpointFixture(t *testing.T, store *bstorage.Checkpoints, backend *fakeBackend, seq atlas.CheckpointSequenceNumber, epoch uint64, n int, lastOfEpoch bool) *atlas.VerifiedCheckpoint {

	pairs := make([]atlas.ExecutionDigests, 0, n)
	for i := 0; i < n; i++ {
		user := unittest.UserTransactionFixture(uint64(10 + i))
		tx := atlas.NewSequencedExternal(user, nil, atlas.ExecutionIndex{})
		digest, _ := tx.Digest()
		effects := unittest.TransactionEffectsFixture(digest)
		backend.register(tx, effects)
		pairs = append(pairs, atlas.ExecutionDigests{
			Transaction: digest,
			Effects:     effects.Digest(),
		})
	}
	contents := &atlas.CheckpointContents{Digests: pairs}

	checkpoint := unittest.VerifiedCheckpointFixture(seq, epoch, contents)
	if lastOfEpoch {
		checkpoint.EndOfEpochData = &atlas.EndOfEpochData{NextEpoch: epoch + 1}
	}
	require.NoError(t, store.StoreSyncedCheckpoint(checkpoint, contents))
	return checkpoint
}

func waitWatermark(t *testing.T, store *bstorage.Checkpoints, seq atlas.CheckpointSequenceNumber) {
	require.Eventually(t, func() bool {
		executed, err := store.HighestExecutedCheckpoint()
		return err == nil && executed.SequenceNumber >= seq
	}, 5*time.Second, 5*time.Millisecond, "watermark did not reach %d", seq)
}

func TestExecutesSyncedCheckpointsInOrder(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		store := bstorage.NewCheckpoints(db)
		backend := newFakeBackend()
		accumulator := newAccumulatorMock()

		for seq := uint64(0); seq < 5; seq++ {
			checkpointFixture(t, store, backend, seq, 1, 3, false)
		}

		exec := NewCheckpointExecutor(unittest.Logger(), DefaultConfig(), metrics.NewNoopCollector(),
			store, backend, &stateMock{epoch: 1}, accumulator)

		ctx, cancel := irrecoverable.NewMockSignalerContextWithCancel(t, context.Background())
		exec.Start(ctx)
		defer func() {
			cancel()
			<-exec.Done()
		}()
		<-exec.Ready()

		waitWatermark(t, store, 4)

		// every checkpoint was finalized and accumulated
		for seq := uint64(0); seq < 5; seq++ {
			digests, err := store.CheckpointTransactions(seq)
			require.NoError(t, err)
			assert.Len(t, digests, 3)
		}
		assert.ElementsMatch(t, []uint64{0, 1, 2, 3, 4}, accumulator.accumulated())
	})
}

func TestResumesFromPersistedWatermark(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		store := bstorage.NewCheckpoints(db)
		backend := newFakeBackend()
		accumulator := newAccumulatorMock()

		var checkpoints []*atlas.VerifiedCheckpoint
		for seq := uint64(0); seq < 4; seq++ {
			checkpoints = append(checkpoints, checkpointFixture(t, store, backend, seq, 1, 2, false))
		}

		// simulate a previous run that executed up to checkpoint 1
		for _, cp := range checkpoints[:2] {
			contents, err := store.ContentsByDigest(cp.ContentsDigest)
			require.NoError(t, err)
			txs, err := backend.ResolveTransactions(contents.TransactionDigests())
			require.NoError(t, err)
			require.NoError(t, backend.Enqueue(context.Background(), txs, 1))
		}
		require.NoError(t, store.UpdateHighestExecutedCheckpoint(checkpoints[1]))

		exec := NewCheckpointExecutor(unittest.Logger(), DefaultConfig(), metrics.NewNoopCollector(),
			store, backend, &stateMock{epoch: 1}, accumulator)

		ctx, cancel := irrecoverable.NewMockSignalerContextWithCancel(t, context.Background())
		exec.Start(ctx)
		defer func() {
			cancel()
			<-exec.Done()
		}()
		<-exec.Ready()

		waitWatermark(t, store, 3)

		// only checkpoints 2 and 3 were re-scheduled
		assert.ElementsMatch(t, []uint64{2, 3}, accumulator.accumulated())

		executed, err := store.HighestExecutedCheckpoint()
		require.NoError(t, err)
		assert.Equal(t, uint64(3), executed.SequenceNumber)
	})
}

func TestForkDetectionIsFatal(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		store := bstorage.NewCheckpoints(db)
		backend := newFakeBackend()

		// tamper with the expected effects digest of one transaction
		user := unittest.UserTransactionFixture(10)
		tx := atlas.NewSequencedExternal(user, nil, atlas.ExecutionIndex{})
		digest, _ := tx.Digest()
		effects := unittest.TransactionEffectsFixture(digest)
		backend.register(tx, effects)
		contents := &atlas.CheckpointContents{Digests: []atlas.ExecutionDigests{{
			Transaction: digest,
			Effects:     unittest.IdentifierFixture(),
		}}}
		checkpoint := unittest.VerifiedCheckpointFixture(0, 1, contents)
		require.NoError(t, store.StoreSyncedCheckpoint(checkpoint, contents))

		exec := NewCheckpointExecutor(unittest.Logger(), DefaultConfig(), metrics.NewNoopCollector(),
			store, backend, &stateMock{epoch: 1}, newAccumulatorMock())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		signalerCtx, errChan := irrecoverable.WithSignaler(ctx)
		exec.Start(signalerCtx)

		select {
		case err := <-errChan:
			require.ErrorContains(t, err, "forked")
		case <-time.After(5 * time.Second):
			t.Fatal("expected fork detection to abort execution")
		}

		// the watermark must not advance past a fork
		_, err := store.HighestExecutedCheckpoint()
		assert.Error(t, err)

		cancel()
		<-exec.Done()
	})
}

func TestEpochMismatchIsFatal(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		store := bstorage.NewCheckpoints(db)
		backend := newFakeBackend()

		checkpointFixture(t, store, backend, 0, 7, 1, false)

		// executor pinned to epoch 1 must refuse an epoch-7 checkpoint
		exec := NewCheckpointExecutor(unittest.Logger(), DefaultConfig(), metrics.NewNoopCollector(),
			store, backend, &stateMock{epoch: 1}, newAccumulatorMock())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		signalerCtx, errChan := irrecoverable.WithSignaler(ctx)
		exec.Start(signalerCtx)

		select {
		case err := <-errChan:
			require.ErrorContains(t, err, "epoch")
		case <-time.After(5 * time.Second):
			t.Fatal("expected epoch mismatch to abort execution")
		}

		cancel()
		<-exec.Done()
	})
}

func TestEpochBoundaryCompletesEpoch(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		store := bstorage.NewCheckpoints(db)
		backend := newFakeBackend()
		accumulator := newAccumulatorMock()
		state := &stateMock{epoch: 1}

		checkpointFixture(t, store, backend, 0, 1, 2, false)
		checkpointFixture(t, store, backend, 1, 1, 2, false)
		final := checkpointFixture(t, store, backend, 2, 1, 3, true)

		exec := NewCheckpointExecutor(unittest.Logger(), DefaultConfig(), metrics.NewNoopCollector(),
			store, backend, state, accumulator)

		ctx, cancel := irrecoverable.NewMockSignalerContextWithCancel(t, context.Background())
		exec.Start(ctx)
		defer func() {
			cancel()
			<-exec.Done()
		}()
		<-exec.Ready()

		select {
		case <-exec.EpochComplete():
		case <-time.After(5 * time.Second):
			t.Fatal("epoch did not complete")
		}

		executed, err := store.HighestExecutedCheckpoint()
		require.NoError(t, err)
		assert.Equal(t, final.SequenceNumber, executed.SequenceNumber)

		// the final checkpoint finalizes all three transactions, boundary
		// included, and the epoch accumulates exactly once at its sequence
		digests, err := store.CheckpointTransactions(2)
		require.NoError(t, err)
		assert.Len(t, digests, 3)
		assert.Equal(t, map[uint64]uint64{1: 2}, accumulator.epochs)
	})
}

func TestConcurrencyIsBounded(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		store := bstorage.NewCheckpoints(db)
		backend := newFakeBackend()
		backend.gate()

		for seq := uint64(0); seq < 6; seq++ {
			checkpointFixture(t, store, backend, seq, 1, 1, false)
		}

		cfg := DefaultConfig()
		cfg.MaxConcurrency = 2
		exec := NewCheckpointExecutor(unittest.Logger(), cfg, metrics.NewNoopCollector(),
			store, backend, &stateMock{epoch: 1}, newAccumulatorMock())

		ctx, cancel := irrecoverable.NewMockSignalerContextWithCancel(t, context.Background())
		exec.Start(ctx)
		defer func() {
			cancel()
			<-exec.Done()
		}()
		<-exec.Ready()

		// with execution gated, no more than MaxConcurrency checkpoints may
		// be scheduled
		require.Eventually(t, func() bool {
			return backend.enqueueCount() == 2
		}, 2*time.Second, 5*time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, 2, backend.enqueueCount())

		// once released, the pipeline drains and the rest follows as slots
		// free up
		backend.release()
		require.Eventually(t, func() bool {
			executed, err := store.HighestExecutedCheckpoint()
			return err == nil && executed.SequenceNumber == 5
		}, 5*time.Second, 5*time.Millisecond)
	})
}
