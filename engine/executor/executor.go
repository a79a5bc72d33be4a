// Package executor drives execution of synced checkpoints. Checkpoints are
// scheduled concurrently and complete out of order, but the executed
// watermark only ever advances in order and without gaps; everything behind
// the watermark is fully executed with effects durably recorded.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ef-ds/deque"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/atlasnet/atlas-go/engine"
	"github.com/atlasnet/atlas-go/model/atlas"
	"github.com/atlasnet/atlas-go/module"
	"github.com/atlasnet/atlas-go/module/component"
	"github.com/atlasnet/atlas-go/module/counters"
	"github.com/atlasnet/atlas-go/module/irrecoverable"
	"github.com/atlasnet/atlas-go/storage"
)

// Config tunes the checkpoint execution pipeline.
type Config struct {
	// MaxConcurrency bounds the number of checkpoints in flight at once.
	MaxConcurrency int
	// EffectsWaitTimeout bounds one wait for effects before diagnostics are
	// logged and the wait restarts. Waits retry indefinitely: execution can
	// be slow, but it must never be skipped.
	EffectsWaitTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrency:     200,
		EffectsWaitTimeout: 10 * time.Second,
	}
}

// inFlightCheckpoint is one scheduled checkpoint waiting for its effects.
type inFlightCheckpoint struct {
	checkpoint *atlas.VerifiedCheckpoint
	// digests and expected effects digests of the scheduled portion; for the
	// final checkpoint of an epoch this excludes the trailing boundary entry
	digests  []atlas.Identifier
	expected []atlas.Identifier
	// boundary is the epoch-changing manifest entry of a last-of-epoch
	// checkpoint, executed separately once all earlier work has drained
	boundary *atlas.ExecutionDigests
	effects  []*atlas.TransactionEffects
	done     chan struct{}
}

// CheckpointExecutor implements the checkpoint execution pipeline for one
// epoch. It is restart-safe: on startup it resumes from the persisted
// watermark and re-scheduling already-executed transactions is a no-op.
type CheckpointExecutor struct {
	*component.ComponentManager

	log         zerolog.Logger
	cfg         Config
	metrics     module.ExecutorMetrics
	store       storage.CheckpointStore
	backend     module.ExecutionBackend
	state       module.EpochState
	accumulator module.StateAccumulator

	// first sequence number not yet known to be synced
	syncedFrontier counters.StrictMonotonicCounter
	syncNotifier   engine.Notifier

	epochComplete chan struct{}

	// throughput estimation window, owned by the driver
	windowStart time.Time
	windowTxs   int
}

var _ component.Component = (*CheckpointExecutor)(nil)

func NewCheckpointExecutor(
	log zerolog.Logger,
	cfg Config,
	metrics module.ExecutorMetrics,
	store storage.CheckpointStore,
	backend module.ExecutionBackend,
	state module.EpochState,
	accumulator module.StateAccumulator,
) *CheckpointExecutor {

	e := &CheckpointExecutor{
		log:            log.With().Str("engine", "checkpoint_executor").Uint64("epoch", state.Epoch()).Logger(),
		cfg:            cfg,
		metrics:        metrics,
		store:          store,
		backend:        backend,
		state:          state,
		accumulator:    accumulator,
		syncedFrontier: counters.NewMonotonicCounter(0),
		syncNotifier:   engine.NewNotifier(),
		epochComplete:  make(chan struct{}),
	}

	e.ComponentManager = component.NewComponentManagerBuilder().
		AddWorker(e.driverWorker).
		Build()

	return e
}

// OnCheckpointSynced informs the executor that the checkpoint with the given
// sequence number is now available in the store. Notifications may arrive out
// of order or be repeated; only the highest one matters.
func (e *CheckpointExecutor) OnCheckpointSynced(seq atlas.CheckpointSequenceNumber) {
	e.syncedFrontier.Set(seq + 1)
	e.syncNotifier.Notify()
}

// EpochComplete returns a channel closed once the final checkpoint of the
// epoch, including its epoch-changing transaction, has been executed and the
// epoch's state commitment accumulated. The node then reconfigures into the
// next epoch with a fresh executor.
func (e *CheckpointExecutor) EpochComplete() <-chan struct{} {
	return e.epochComplete
}

func (e *CheckpointExecutor) driverWorker(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ready()
	e.run(ctx)
}

func (e *CheckpointExecutor) run(ctx irrecoverable.SignalerContext) {
	epoch := e.state.Epoch()

	next := atlas.CheckpointSequenceNumber(0)
	watermark, err := e.store.HighestExecutedCheckpoint()
	if err == nil {
		next = watermark.SequenceNumber + 1
	} else if !errors.Is(err, storage.ErrNotFound) {
		ctx.Throw(fmt.Errorf("could not load executed watermark: %w", err))
		return
	}

	if synced, err := e.store.HighestSyncedCheckpoint(); err == nil {
		e.syncedFrontier.Set(synced.SequenceNumber + 1)
	} else if !errors.Is(err, storage.ErrNotFound) {
		ctx.Throw(fmt.Errorf("could not load highest synced checkpoint: %w", err))
		return
	}

	e.log.Info().Uint64("next_sequence", next).Msg("starting checkpoint execution")
	e.windowStart = time.Now()

	var inFlight deque.Deque
	epochClosing := false
	expectedSeq := next

	for {
		// fill the pipeline up to the concurrency bound; scheduling stops at
		// the epoch's final checkpoint, later ones belong to the next epoch
		for !epochClosing && inFlight.Len() < e.cfg.MaxConcurrency && next < e.syncedFrontier.Value() {
			checkpoint, err := e.store.CheckpointBySequenceNumber(next)
			if errors.Is(err, storage.ErrNotFound) {
				break
			}
			if err != nil {
				ctx.Throw(fmt.Errorf("could not load checkpoint %d: %w", next, err))
				return
			}
			if checkpoint.Epoch != epoch {
				ctx.Throw(fmt.Errorf("checkpoint %d belongs to epoch %d, executor pinned to epoch %d",
					next, checkpoint.Epoch, epoch))
				return
			}

			entry, ok := e.scheduleCheckpoint(ctx, checkpoint)
			if !ok {
				return
			}
			inFlight.PushBack(entry)
			e.metrics.CheckpointsInFlight(inFlight.Len())
			next++
			if checkpoint.IsLastOfEpoch() {
				epochClosing = true
			}
		}

		if inFlight.Len() == 0 {
			select {
			case <-ctx.Done():
				return
			case <-e.syncNotifier.Channel():
			}
			continue
		}

		front, _ := inFlight.Front()
		head := front.(*inFlightCheckpoint)
		select {
		case <-ctx.Done():
			return
		case <-e.syncNotifier.Channel():
			// more checkpoints became available while the head executes
			continue
		case <-head.done:
		}
		inFlight.PopFront()
		e.metrics.CheckpointsInFlight(inFlight.Len())

		seq := head.checkpoint.SequenceNumber
		if seq != expectedSeq {
			ctx.Throw(fmt.Errorf("watermark advance out of order (checkpoint %d, expected %d)", seq, expectedSeq))
			return
		}
		expectedSeq++

		txCount := len(head.digests)
		if head.boundary != nil {
			if !e.executeEpochBoundary(ctx, head) {
				return
			}
			txCount++
		}

		err = e.store.UpdateHighestExecutedCheckpoint(head.checkpoint)
		if err != nil {
			ctx.Throw(fmt.Errorf("could not advance executed watermark to %d: %w", seq, err))
			return
		}
		e.metrics.CheckpointExecuted(seq, txCount)
		e.reportThroughput(txCount)

		e.log.Debug().
			Uint64("sequence", seq).
			Int("transactions", txCount).
			Msg("checkpoint executed")

		if head.checkpoint.IsLastOfEpoch() {
			if inFlight.Len() != 0 {
				ctx.Throw(fmt.Errorf("completion buffer not empty after final checkpoint of epoch %d (%d entries)",
					epoch, inFlight.Len()))
				return
			}
			err = e.accumulator.AccumulateEpoch(epoch, seq)
			if err != nil {
				ctx.Throw(fmt.Errorf("could not accumulate epoch %d: %w", epoch, err))
				return
			}
			e.log.Info().Uint64("final_sequence", seq).Msg("epoch execution complete")
			close(e.epochComplete)
			return
		}
	}
}

// scheduleCheckpoint prepares and enqueues one checkpoint for execution and
// spawns its wait task. Preparation retries on transient races with state
// sync (manifest or transactions not yet stored); all other failures are
// irrecoverable. Returns false if the context ended or an error was thrown.
func (e *CheckpointExecutor) scheduleCheckpoint(ctx irrecoverable.SignalerContext, checkpoint *atlas.VerifiedCheckpoint) (*inFlightCheckpoint, bool) {

	seq := checkpoint.SequenceNumber
	entry := &inFlightCheckpoint{
		checkpoint: checkpoint,
		done:       make(chan struct{}),
	}

	backoff := retry.WithCappedDuration(time.Second, retry.NewExponential(10*time.Millisecond))
	err := retry.Do(ctx, backoff, func(rctx context.Context) error {
		err := e.prepareAndEnqueue(rctx, checkpoint, entry)
		if err != nil && errors.Is(err, storage.ErrNotFound) {
			// synced checkpoint summaries can land before their manifest or
			// transaction payloads; wait for sync to catch up
			e.metrics.ScheduleRetried(seq)
			e.log.Debug().Err(err).Uint64("sequence", seq).Msg("checkpoint not yet schedulable, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, false
		}
		ctx.Throw(fmt.Errorf("could not schedule checkpoint %d: %w", seq, err))
		return nil, false
	}

	go e.waitTask(ctx, entry)
	return entry, true
}

// prepareAndEnqueue resolves the checkpoint's manifest, assigns shared-object
// versions for every transaction before any is enqueued, and hands the batch
// to the execution backend. Transactions whose effects already exist are not
// re-enqueued, which makes scheduling idempotent across restarts.
func (e *CheckpointExecutor) prepareAndEnqueue(ctx context.Context, checkpoint *atlas.VerifiedCheckpoint, entry *inFlightCheckpoint) error {

	contents, err := e.store.ContentsByDigest(checkpoint.ContentsDigest)
	if err != nil {
		return fmt.Errorf("could not load contents of checkpoint %d: %w", checkpoint.SequenceNumber, err)
	}

	pairs := contents.Digests
	if checkpoint.IsLastOfEpoch() {
		if len(pairs) == 0 {
			return fmt.Errorf("final checkpoint %d of epoch has empty manifest", checkpoint.SequenceNumber)
		}
		// the epoch-changing transaction is by construction the last manifest
		// entry; it runs only after everything before it has drained
		boundary := pairs[len(pairs)-1]
		entry.boundary = &boundary
		pairs = pairs[:len(pairs)-1]
	}

	entry.digests = make([]atlas.Identifier, len(pairs))
	entry.expected = make([]atlas.Identifier, len(pairs))
	for i, pair := range pairs {
		entry.digests[i] = pair.Transaction
		entry.expected[i] = pair.Effects
	}

	if len(entry.digests) == 0 {
		return nil
	}

	executed, err := e.backend.EffectsExist(entry.digests)
	if err != nil {
		return fmt.Errorf("could not check existing effects: %w", err)
	}
	var toRun []atlas.Identifier
	var expectedEffects []atlas.Identifier
	for i, done := range executed {
		if !done {
			toRun = append(toRun, entry.digests[i])
			expectedEffects = append(expectedEffects, entry.expected[i])
		}
	}
	if len(toRun) == 0 {
		return nil
	}

	txs, err := e.backend.ResolveTransactions(toRun)
	if err != nil {
		return fmt.Errorf("could not resolve checkpoint transactions: %w", err)
	}

	// all shared locks are taken before any transaction is enqueued, so that
	// version assignment follows checkpoint order, not completion order
	var merr *multierror.Error
	for i, tx := range txs {
		merr = multierror.Append(merr, e.state.AcquireSharedLocksFromEffects(tx, expectedEffects[i]))
	}
	if err := merr.ErrorOrNil(); err != nil {
		return fmt.Errorf("could not acquire shared locks for checkpoint %d: %w", checkpoint.SequenceNumber, err)
	}

	err = e.backend.Enqueue(ctx, txs, checkpoint.Epoch)
	if err != nil {
		return fmt.Errorf("could not enqueue checkpoint transactions: %w", err)
	}
	return nil
}

// waitTask waits for the effects of the checkpoint's scheduled portion,
// verifies them against the committee-agreed digests, and finalizes the
// checkpoint. The final checkpoint of an epoch is only finalized later,
// together with its boundary transaction.
func (e *CheckpointExecutor) waitTask(ctx irrecoverable.SignalerContext, entry *inFlightCheckpoint) {

	seq := entry.checkpoint.SequenceNumber

	effects, ok := e.awaitAndVerify(ctx, seq, entry.digests, entry.expected)
	if !ok {
		return
	}
	entry.effects = effects

	if entry.boundary == nil {
		if !e.finalizeCheckpoint(ctx, entry, entry.digests, effects) {
			return
		}
	}
	close(entry.done)
}

// awaitAndVerify blocks until the effects of all digests are durably
// recorded, then checks each against its expected digest. A mismatch means
// this validator's execution diverged from the committee, which is
// irrecoverable: continuing would build state on a fork.
func (e *CheckpointExecutor) awaitAndVerify(
	ctx irrecoverable.SignalerContext,
	seq atlas.CheckpointSequenceNumber,
	digests []atlas.Identifier,
	expected []atlas.Identifier,
) ([]*atlas.TransactionEffects, bool) {

	if len(digests) == 0 {
		return nil, true
	}

	var effects []*atlas.TransactionEffects
	for {
		waitCtx, cancel := context.WithTimeout(ctx, e.cfg.EffectsWaitTimeout)
		result, err := e.backend.AwaitEffects(waitCtx, digests)
		cancel()
		if err == nil {
			effects = result
			break
		}
		if ctx.Err() != nil {
			return nil, false
		}

		e.logMissingEffects(seq, digests)
		// never give up: execution may be slow or blocked on an input that
		// state sync still has to deliver
	}

	for i, eff := range effects {
		computed := eff.Digest()
		if computed != expected[i] {
			ctx.Throw(fmt.Errorf(
				"effects diverge from committee at checkpoint %d, transaction %v (computed %v, expected %v): local execution forked",
				seq, digests[i], computed, expected[i]))
			return nil, false
		}
	}
	return effects, true
}

// logMissingEffects reports which transactions the wait is blocked on, with
// the backend's view of what input each is missing.
func (e *CheckpointExecutor) logMissingEffects(seq atlas.CheckpointSequenceNumber, digests []atlas.Identifier) {
	executed, err := e.backend.EffectsExist(digests)
	if err != nil {
		e.log.Warn().Err(err).Uint64("sequence", seq).Msg("effects wait timed out, could not inspect progress")
		e.metrics.EffectsWaitTimedOut(len(digests))
		return
	}

	missing := 0
	for i, done := range executed {
		if done {
			continue
		}
		missing++
		event := e.log.Warn().
			Uint64("sequence", seq).
			Str("transaction", digests[i].String())
		if input, known := e.backend.MissingInput(digests[i]); known {
			event = event.Str("missing_input", input)
		}
		event.Msg("transaction effects still pending after wait timeout")
	}
	e.metrics.EffectsWaitTimedOut(missing)
}

// finalizeCheckpoint durably associates the executed transactions with their
// checkpoint and folds their effects into the running state commitment.
func (e *CheckpointExecutor) finalizeCheckpoint(
	ctx irrecoverable.SignalerContext,
	entry *inFlightCheckpoint,
	digests []atlas.Identifier,
	effects []*atlas.TransactionEffects,
) bool {

	seq := entry.checkpoint.SequenceNumber
	err := e.store.RecordCheckpointTransactions(seq, digests)
	if err != nil {
		ctx.Throw(fmt.Errorf("could not finalize checkpoint %d: %w", seq, err))
		return false
	}
	err = e.accumulator.AccumulateCheckpoint(effects, seq)
	if err != nil {
		ctx.Throw(fmt.Errorf("could not accumulate checkpoint %d: %w", seq, err))
		return false
	}
	return true
}

// executeEpochBoundary runs the epoch-changing transaction of the epoch's
// final checkpoint. It is called on the driver once the checkpoint has
// reached the front of the completion buffer, so every earlier transaction
// of the epoch has already executed.
func (e *CheckpointExecutor) executeEpochBoundary(ctx irrecoverable.SignalerContext, entry *inFlightCheckpoint) bool {

	seq := entry.checkpoint.SequenceNumber
	boundary := entry.boundary
	digest := boundary.Transaction

	e.log.Info().
		Uint64("sequence", seq).
		Str("transaction", digest.String()).
		Msg("executing epoch boundary transaction")

	executed, err := e.backend.EffectsExist([]atlas.Identifier{digest})
	if err != nil {
		ctx.Throw(fmt.Errorf("could not check boundary transaction effects: %w", err))
		return false
	}
	if !executed[0] {
		txs, err := e.backend.ResolveTransactions([]atlas.Identifier{digest})
		if err != nil {
			ctx.Throw(fmt.Errorf("could not resolve boundary transaction of checkpoint %d: %w", seq, err))
			return false
		}
		err = e.state.AcquireSharedLocksFromEffects(txs[0], boundary.Effects)
		if err != nil {
			ctx.Throw(fmt.Errorf("could not acquire shared locks for boundary transaction: %w", err))
			return false
		}
		err = e.backend.Enqueue(ctx, txs, entry.checkpoint.Epoch)
		if err != nil {
			ctx.Throw(fmt.Errorf("could not enqueue boundary transaction: %w", err))
			return false
		}
	}

	boundaryEffects, ok := e.awaitAndVerify(ctx, seq,
		[]atlas.Identifier{digest}, []atlas.Identifier{boundary.Effects})
	if !ok {
		return false
	}

	allDigests := append(append([]atlas.Identifier{}, entry.digests...), digest)
	allEffects := append(append([]*atlas.TransactionEffects{}, entry.effects...), boundaryEffects...)
	return e.finalizeCheckpoint(ctx, entry, allDigests, allEffects)
}

// reportThroughput maintains a one-second sliding window over executed
// transactions and reports the resulting rate.
func (e *CheckpointExecutor) reportThroughput(txCount int) {
	e.windowTxs += txCount
	elapsed := time.Since(e.windowStart)
	if elapsed < time.Second {
		return
	}
	e.metrics.TransactionsPerSecond(float64(e.windowTxs) / elapsed.Seconds())
	e.windowStart = time.Now()
	e.windowTxs = 0
}
