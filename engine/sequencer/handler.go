// Package sequencer turns committed consensus output into a deterministic,
// deduplicated execution schedule. Every commit yields exactly one pending
// checkpoint boundary, even when all of its transactions are dropped as
// duplicates.
package sequencer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ef-ds/deque"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/atlasnet/atlas-go/engine"
	"github.com/atlasnet/atlas-go/model/atlas"
	"github.com/atlasnet/atlas-go/module"
	"github.com/atlasnet/atlas-go/module/component"
	"github.com/atlasnet/atlas-go/module/irrecoverable"
	"github.com/atlasnet/atlas-go/storage"
)

// Config tunes the sequencer.
type Config struct {
	// DedupCacheSize bounds the LRU of recently sequenced keys. The cache is a
	// second line of defense behind the stale-index check, sized to cover the
	// dedup window of several commits.
	DedupCacheSize int
	// SubmitQueueCapacity bounds the hand-off queue to the execution backend.
	// When the backend falls behind, sequencing blocks rather than buffering
	// unboundedly.
	SubmitQueueCapacity int
	// ReorderByGasPrice enables stable reordering of each commit's schedule by
	// descending gas price. Off by default; all validators of a network must
	// agree on the setting.
	ReorderByGasPrice bool
}

func DefaultConfig() Config {
	return Config{
		DedupCacheSize:      100_000,
		SubmitQueueCapacity: 100,
		ReorderByGasPrice:   false,
	}
}

// Handler is the consensus output sequencer. Consensus delivers commits via
// SubmitCommit in commit order; a single worker routine processes them, so all
// per-commit state (last index, rolling hash) is owned by that routine.
type Handler struct {
	*component.ComponentManager

	log     zerolog.Logger
	cfg     Config
	metrics module.SequencerMetrics
	state   module.EpochState
	backend module.ExecutionBackend

	// inbound commits, drained by the sequencing worker
	mu       sync.Mutex
	inbound  deque.Deque
	notifier engine.Notifier

	// schedule hand-off to the submission worker
	submitQueue chan []*atlas.SequencedTransaction

	// owned by the sequencing worker after construction
	lastIndex  atlas.ExecutionIndexWithHash
	hasIndex   bool
	recentKeys *lru.Cache

	// snapshot of currently low-scoring authorities, replaced wholesale by
	// the reputation observer
	lowScoring *atomic.Pointer[atlas.AuthoritySet]
}

var _ component.Component = (*Handler)(nil)

func NewHandler(
	log zerolog.Logger,
	cfg Config,
	metrics module.SequencerMetrics,
	state module.EpochState,
	backend module.ExecutionBackend,
) (*Handler, error) {

	recentKeys, err := lru.New(cfg.DedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("could not initialize dedup cache: %w", err)
	}

	h := &Handler{
		log:         log.With().Str("engine", "sequencer").Logger(),
		cfg:         cfg,
		metrics:     metrics,
		state:       state,
		backend:     backend,
		notifier:    engine.NewNotifier(),
		submitQueue: make(chan []*atlas.SequencedTransaction, cfg.SubmitQueueCapacity),
		recentKeys:  recentKeys,
		lowScoring:  atomic.NewPointer[atlas.AuthoritySet](nil),
	}

	// recover the sequencing position; a fresh epoch has no index yet
	last, err := state.LastConsensusIndex()
	if err == nil {
		h.lastIndex = *last
		h.hasIndex = true
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("could not load last consensus index: %w", err)
	}

	h.ComponentManager = component.NewComponentManagerBuilder().
		AddWorker(h.sequenceWorker).
		AddWorker(h.submitWorker).
		Build()

	return h, nil
}

// SubmitCommit hands one committed sub-DAG to the sequencer. Non-blocking;
// commits queue up until the sequencing worker drains them. Consensus
// guarantees delivery in commit order.
func (h *Handler) SubmitCommit(commit *atlas.CommittedSubDag) {
	h.mu.Lock()
	h.inbound.PushBack(commit)
	h.mu.Unlock()
	h.notifier.Notify()
}

// SetLowScoringAuthorities replaces the low-scoring authority snapshot.
// Sequencing only reads the snapshot for metrics attribution; it never drops
// transactions based on reputation.
func (h *Handler) SetLowScoringAuthorities(set *atlas.AuthoritySet) {
	h.lowScoring.Store(set)
}

func (h *Handler) sequenceWorker(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ready()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.notifier.Channel():
			h.drainCommits(ctx)
		}
	}
}

func (h *Handler) drainCommits(ctx irrecoverable.SignalerContext) {
	for {
		h.mu.Lock()
		next, ok := h.inbound.PopFront()
		h.mu.Unlock()
		if !ok {
			return
		}
		h.handleCommit(ctx, next.(*atlas.CommittedSubDag))

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// handleCommit sequences one consensus commit: it filters the commit's raw
// transactions down to the deterministic schedule, injects the commit's system
// transactions, records the checkpoint boundary and hands the schedule to the
// submission worker. Any violated ordering invariant is irrecoverable.
func (h *Handler) handleCommit(ctx irrecoverable.SignalerContext, commit *atlas.CommittedSubDag) {

	log := h.log.With().
		Uint64("leader_round", commit.LeaderRound).
		Uint64("sub_dag_index", commit.SubDagIndex).
		Logger()

	if h.hasIndex && commit.LeaderRound < h.lastIndex.Index.LastCommittedRound {
		ctx.Throw(fmt.Errorf("consensus commit round regressed (round %d < last %d)",
			commit.LeaderRound, h.lastIndex.Index.LastCommittedRound))
		return
	}

	// a commit whose final position does not advance the persisted index is a
	// replay after restart; the boundary it would produce already exists
	finalIndex := atlas.ExecutionIndex{
		LastCommittedRound: commit.LeaderRound,
		SubDagIndex:        commit.SubDagIndex,
		TransactionIndex:   uint64(commit.TransactionCount()),
	}
	if h.hasIndex && !h.lastIndex.Index.Less(finalIndex) {
		log.Debug().Msg("skipping replayed consensus commit")
		h.metrics.CommitReplayed(commit.LeaderRound)
		return
	}

	timestampMs := commit.CommitTimestampMs
	if epochStart := h.state.EpochStartTimestampMs(); timestampMs < epochStart {
		// consensus timestamps are median-based and can precede the recorded
		// epoch start on the first commits of an epoch
		log.Error().
			Uint64("commit_timestamp_ms", timestampMs).
			Uint64("epoch_start_ms", epochStart).
			Msg("commit timestamp older than epoch start, clamping")
		timestampMs = epochStart
	}

	schedule := make([]*atlas.SequencedTransaction, 0, commit.TransactionCount()+1)

	prologue := &atlas.SystemTransaction{
		Kind: atlas.SystemKindCommitPrologue,
		Prologue: &atlas.CommitPrologue{
			Epoch:             h.state.Epoch(),
			Round:             commit.LeaderRound,
			CommitTimestampMs: timestampMs,
		},
	}
	schedule = append(schedule, atlas.NewSequencedSystem(prologue, finalIndex))

	for _, update := range h.state.NewlyActiveCredentials(commit.LeaderRound) {
		tx := &atlas.SystemTransaction{
			Kind:       atlas.SystemKindCredentialUpdate,
			Credential: update,
		}
		schedule = append(schedule, atlas.NewSequencedSystem(tx, finalIndex))
	}

	var endOfPublish []atlas.AuthorityID
	seenInCommit := make(map[atlas.SequencingKey]struct{})
	lowScoring := h.lowScoring.Load()
	runningHash := h.lastIndex.Hash

	txIndex := uint64(0)
	for _, batch := range commit.Batches {
		for _, raw := range batch.Transactions {
			index := atlas.ExecutionIndex{
				LastCommittedRound: commit.LeaderRound,
				SubDagIndex:        commit.SubDagIndex,
				TransactionIndex:   txIndex,
			}
			txIndex++

			// positions at or below the persisted index were already hashed
			// and sequenced before the restart
			if h.hasIndex && !h.lastIndex.Index.Less(index) {
				h.metrics.TransactionDropped(module.DropReasonStaleIndex)
				continue
			}

			runningHash = updateRunningHash(runningHash, raw)

			tx, err := atlas.DecodeConsensusTransaction(raw)
			if err != nil {
				// consensus batch-verified these bytes before committing them;
				// failing to decode here means the layers disagree
				ctx.Throw(fmt.Errorf("could not decode committed transaction at %+v: %w", index, err))
				return
			}

			key := tx.Key()
			if _, dup := seenInCommit[key]; dup {
				h.metrics.TransactionDropped(module.DropReasonDuplicate)
				continue
			}
			if h.recentKeys.Contains(key) {
				h.metrics.TransactionDropped(module.DropReasonDuplicate)
				continue
			}
			seenInCommit[key] = struct{}{}
			h.recentKeys.Add(key, struct{}{})

			if err := h.state.VerifyConsensusTransaction(tx); err != nil {
				log.Warn().Err(err).
					Str("kind", tx.Kind.String()).
					Msg("dropping transaction that failed verification")
				h.metrics.TransactionDropped(module.DropReasonVerificationFailed)
				continue
			}

			if tx.Kind == atlas.ConsensusKindEndOfPublish {
				h.metrics.EndOfPublishObserved()
				endOfPublish = append(endOfPublish, tx.EndOfEpoch.Author)
				continue
			}

			sequenced := atlas.NewSequencedExternal(tx, batch, index)
			if author, ok := sequenced.Author(); ok && lowScoring.Contains(author) {
				h.metrics.LowScoringAuthorityTransaction()
			}
			schedule = append(schedule, sequenced)
		}
	}

	if h.cfg.ReorderByGasPrice {
		reorderByGasPrice(schedule)
	}

	newIndex := &atlas.ExecutionIndexWithHash{Index: finalIndex, Hash: runningHash}
	pending := &atlas.PendingCheckpoint{
		TimestampMs:  timestampMs,
		CommitHeight: commit.SubDagIndex,
	}

	schedulable, err := h.state.ProcessCommit(schedule, endOfPublish, newIndex, pending)
	if err != nil {
		ctx.Throw(fmt.Errorf("could not process commit at round %d: %w", commit.LeaderRound, err))
		return
	}

	h.lastIndex = *newIndex
	h.hasIndex = true
	h.metrics.CommitProcessed(commit.LeaderRound, len(schedulable))

	log.Debug().
		Int("sequenced", len(schedulable)).
		Int("end_of_publish", len(endOfPublish)).
		Uint64("running_hash", runningHash).
		Msg("sequenced consensus commit")

	if len(schedulable) == 0 {
		return
	}

	// blocking on a full queue applies backpressure to consensus hand-off
	select {
	case h.submitQueue <- schedulable:
		h.metrics.SubmitQueueLength(len(h.submitQueue))
	case <-ctx.Done():
	}
}

func (h *Handler) submitWorker(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ready()
	epoch := h.state.Epoch()
	for {
		select {
		case <-ctx.Done():
			return
		case schedule := <-h.submitQueue:
			h.metrics.SubmitQueueLength(len(h.submitQueue))
			err := h.backend.Enqueue(ctx, schedule, epoch)
			if err != nil {
				ctx.Throw(fmt.Errorf("could not enqueue schedule for execution: %w", err))
				return
			}
		}
	}
}
