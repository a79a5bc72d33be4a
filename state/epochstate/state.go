// Package epochstate implements the per-epoch consensus-facing state of the
// validator: end-of-publish quorum tracking, capability and credential
// bookkeeping, shared-object lock assignment and the durable consensus
// progress record. A fresh State is constructed at every epoch change.
package epochstate

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"

	"github.com/atlasnet/atlas-go/model/atlas"
	"github.com/atlasnet/atlas-go/storage"
)

// State implements module.EpochState.
type State struct {
	log       zerolog.Logger
	committee *atlas.Committee
	progress  storage.ConsensusProgress

	epochStartMs uint64

	mu sync.Mutex
	// end-of-publish quorum tracking; epochClosed flips at most once
	endOfPublishSeen  map[atlas.AuthorityID]struct{}
	endOfPublishStake uint64
	epochClosed       bool
	// highest capability generation observed per authority
	capabilities map[atlas.AuthorityID]uint64
	// credential rotations keyed by the round their activation was observed in
	credentials map[uint64][]*atlas.CredentialUpdate
	// next shared-object version per object; versions are assigned in lock
	// acquisition order, which is why acquisition order must be deterministic
	sharedVersions map[atlas.Identifier]uint64
}

func NewState(
	log zerolog.Logger,
	committee *atlas.Committee,
	progress storage.ConsensusProgress,
	epochStartMs uint64,
) *State {
	return &State{
		log:              log.With().Str("component", "epoch_state").Uint64("epoch", committee.Epoch).Logger(),
		committee:        committee,
		progress:         progress,
		epochStartMs:     epochStartMs,
		endOfPublishSeen: make(map[atlas.AuthorityID]struct{}),
		capabilities:     make(map[atlas.AuthorityID]uint64),
		credentials:      make(map[uint64][]*atlas.CredentialUpdate),
		sharedVersions:   make(map[atlas.Identifier]uint64),
	}
}

func (s *State) Epoch() uint64 {
	return s.committee.Epoch
}

func (s *State) EpochStartTimestampMs() uint64 {
	return s.epochStartMs
}

func (s *State) Committee() *atlas.Committee {
	return s.committee
}

func (s *State) LastConsensusIndex() (*atlas.ExecutionIndexWithHash, error) {
	return s.progress.LastConsensusIndex()
}

// VerifyConsensusTransaction checks content validity of an external
// transaction. User transaction digests are recomputed from the payload;
// authored signals must come from a committee member.
func (s *State) VerifyConsensusTransaction(tx *atlas.ConsensusTransaction) error {
	switch tx.Kind {
	case atlas.ConsensusKindUserTransaction:
		computed := atlas.HashToIdentifier(tx.User.Payload)
		if computed != tx.User.Digest {
			return fmt.Errorf("user transaction digest mismatch (claimed %v, computed %v)",
				tx.User.Digest, computed)
		}
		return nil
	case atlas.ConsensusKindEndOfPublish:
		if !s.committee.Contains(tx.EndOfEpoch.Author) {
			return fmt.Errorf("end-of-publish from non-member authority %v", tx.EndOfEpoch.Author)
		}
		return nil
	case atlas.ConsensusKindCapabilityNotification:
		if !s.committee.Contains(tx.Capability.Author) {
			return fmt.Errorf("capability notification from non-member authority %v", tx.Capability.Author)
		}
		return nil
	default:
		return fmt.Errorf("unknown consensus transaction kind %d", tx.Kind)
	}
}

// RegisterCredentialRotation records a credential rotation observed at its
// activation round. The update becomes visible to commits one round later
// through NewlyActiveCredentials.
func (s *State) RegisterCredentialRotation(update *atlas.CredentialUpdate) error {
	if !s.committee.Contains(update.Authority) {
		return fmt.Errorf("credential rotation for non-member authority %v", update.Authority)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[update.ActivationRound] = append(s.credentials[update.ActivationRound], update)
	return nil
}

// NewlyActiveCredentials returns the rotations whose activation was observed
// one round before the given round, sorted by authority for determinism.
func (s *State) NewlyActiveCredentials(round uint64) []*atlas.CredentialUpdate {
	if round == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.credentials[round-1]
	if len(pending) == 0 {
		return nil
	}
	active := make([]*atlas.CredentialUpdate, len(pending))
	copy(active, pending)
	slices.SortFunc(active, func(a, b *atlas.CredentialUpdate) int {
		return slices.Compare(a.Authority[:], b.Authority[:])
	})
	return active
}

// CapabilityGeneration returns the highest capability generation observed for
// the given authority this epoch.
func (s *State) CapabilityGeneration(id atlas.AuthorityID) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, ok := s.capabilities[id]
	return gen, ok
}

// ProcessCommit consumes one commit's ordered schedule. Capability
// notifications update the in-memory capability table and are never scheduled;
// everything else is schedulable and contributes its execution digest to the
// pending checkpoint boundary. End-of-publish signals accumulate stake toward
// closing the epoch; the last-of-epoch flag flips at most once per epoch.
// The boundary and the advanced consensus index are persisted atomically.
func (s *State) ProcessCommit(
	txs []*atlas.SequencedTransaction,
	endOfPublish []atlas.AuthorityID,
	index *atlas.ExecutionIndexWithHash,
	pending *atlas.PendingCheckpoint,
) ([]*atlas.SequencedTransaction, error) {

	s.mu.Lock()

	for _, author := range endOfPublish {
		if _, seen := s.endOfPublishSeen[author]; seen {
			continue
		}
		s.endOfPublishSeen[author] = struct{}{}
		s.endOfPublishStake += s.committee.StakeOf(author)
	}

	schedulable := make([]*atlas.SequencedTransaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Kind == atlas.SequencedExternal && tx.External.Kind == atlas.ConsensusKindCapabilityNotification {
			note := tx.External.Capability
			if gen, ok := s.capabilities[note.Author]; !ok || note.Generation > gen {
				s.capabilities[note.Author] = note.Generation
			}
			continue
		}
		schedulable = append(schedulable, tx)
	}

	if !s.epochClosed && s.endOfPublishStake >= s.committee.QuorumThreshold() {
		s.epochClosed = true
		pending.LastOfEpoch = true
		s.log.Info().
			Uint64("stake", s.endOfPublishStake).
			Uint64("quorum", s.committee.QuorumThreshold()).
			Msg("end-of-publish quorum reached, epoch checkpoint stream closing")
	}

	s.mu.Unlock()

	pending.Roots = make([]atlas.Identifier, 0, len(schedulable))
	for _, tx := range schedulable {
		digest, ok := tx.Digest()
		if !ok {
			// end-of-publish signals are schedulable for bookkeeping but have
			// no execution digest and hence no root
			continue
		}
		pending.Roots = append(pending.Roots, digest)
	}

	err := s.progress.StorePendingCheckpoint(pending, index)
	if err != nil {
		return nil, fmt.Errorf("could not persist pending checkpoint at height %d: %w",
			pending.CommitHeight, err)
	}

	return schedulable, nil
}

// AcquireSharedLocksFromEffects assigns shared-object versions to the
// transaction's shared inputs in input order and advances each object's next
// version. Callers must acquire locks for all transactions of a checkpoint
// before enqueueing any of them.
func (s *State) AcquireSharedLocksFromEffects(tx *atlas.SequencedTransaction, expectedEffects atlas.Identifier) error {
	inputs := tx.SharedInputs()
	if len(inputs) == 0 {
		return nil
	}
	digest, ok := tx.Digest()
	if !ok {
		return fmt.Errorf("shared lock acquisition for non-executable transaction")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, object := range inputs {
		s.sharedVersions[object]++
	}

	s.log.Debug().
		Str("transaction", digest.String()).
		Str("expected_effects", expectedEffects.String()).
		Int("shared_inputs", len(inputs)).
		Msg("assigned shared object versions")

	return nil
}
