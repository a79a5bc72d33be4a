package atlas

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v4"
)

// ConsensusTransactionKind discriminates the closed set of externally
// authored transaction kinds. The set is fixed per protocol version; every
// consumption site switches exhaustively over it.
type ConsensusTransactionKind uint8

const (
	// ConsensusKindUserTransaction is a user-certified transaction to execute.
	ConsensusKindUserTransaction ConsensusTransactionKind = iota + 1
	// ConsensusKindEndOfPublish signals that the author has stopped
	// submitting ordinary transactions for the current epoch.
	ConsensusKindEndOfPublish
	// ConsensusKindCapabilityNotification advertises the author's supported
	// protocol capabilities; consumed by epoch state, never executed.
	ConsensusKindCapabilityNotification
)

func (k ConsensusTransactionKind) String() string {
	switch k {
	case ConsensusKindUserTransaction:
		return "user_transaction"
	case ConsensusKindEndOfPublish:
		return "end_of_publish"
	case ConsensusKindCapabilityNotification:
		return "capability_notification"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// UserTransaction is the executable payload of a user certificate.
type UserTransaction struct {
	Digest       Identifier
	Payload      []byte
	GasPrice     uint64
	SharedInputs []Identifier
}

// EndOfPublish is an author's signal that it will submit no further user
// transactions this epoch. A quorum of these closes the epoch's checkpoint
// stream.
type EndOfPublish struct {
	Author AuthorityID
}

// CapabilityNotification carries an authority's capability generation.
// Notifications with a stale generation are deduplicated by key.
type CapabilityNotification struct {
	Author     AuthorityID
	Generation uint64
}

// ConsensusTransaction is the externally-authored transaction union delivered
// through consensus batches. Exactly one payload field is set, matching Kind.
type ConsensusTransaction struct {
	Kind       ConsensusTransactionKind
	User       *UserTransaction        `msgpack:",omitempty"`
	EndOfEpoch *EndOfPublish           `msgpack:",omitempty"`
	Capability *CapabilityNotification `msgpack:",omitempty"`
}

// Author returns the authority a transaction payload attributes itself to,
// or false for user transactions (attributed via their certificate instead).
func (t *ConsensusTransaction) Author() (AuthorityID, bool) {
	switch t.Kind {
	case ConsensusKindUserTransaction:
		return ZeroID, false
	case ConsensusKindEndOfPublish:
		return t.EndOfEpoch.Author, true
	case ConsensusKindCapabilityNotification:
		return t.Capability.Author, true
	default:
		return ZeroID, false
	}
}

// Key returns the stable deduplication key of the transaction. The key is
// derived from content, never from stream position, so replays of the same
// transaction under a different index map to the same key.
func (t *ConsensusTransaction) Key() SequencingKey {
	switch t.Kind {
	case ConsensusKindUserTransaction:
		return SequencingKey{External: true, Kind: uint8(t.Kind), Scope: t.User.Digest}
	case ConsensusKindEndOfPublish:
		return SequencingKey{External: true, Kind: uint8(t.Kind), Scope: t.EndOfEpoch.Author}
	case ConsensusKindCapabilityNotification:
		return SequencingKey{External: true, Kind: uint8(t.Kind), Scope: t.Capability.Author, Counter: t.Capability.Generation}
	default:
		panic(fmt.Sprintf("key requested for unknown consensus transaction kind %d", t.Kind))
	}
}

// Encode serializes the transaction for transport through consensus batches.
func (t *ConsensusTransaction) Encode() ([]byte, error) {
	return msgpack.Marshal(t)
}

// DecodeConsensusTransaction deserializes a raw consensus batch entry and
// checks that the payload matches the declared kind. The consensus layer
// batch-verifies entries before committing them, so a failure here indicates
// a consistency violation between layers, not bad peer input.
func DecodeConsensusTransaction(raw []byte) (*ConsensusTransaction, error) {
	var tx ConsensusTransaction
	if err := msgpack.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("could not decode consensus transaction: %w", err)
	}
	switch tx.Kind {
	case ConsensusKindUserTransaction:
		if tx.User == nil {
			return nil, fmt.Errorf("user transaction kind without user payload")
		}
	case ConsensusKindEndOfPublish:
		if tx.EndOfEpoch == nil {
			return nil, fmt.Errorf("end-of-publish kind without payload")
		}
	case ConsensusKindCapabilityNotification:
		if tx.Capability == nil {
			return nil, fmt.Errorf("capability kind without payload")
		}
	default:
		return nil, fmt.Errorf("unknown consensus transaction kind %d", tx.Kind)
	}
	return &tx, nil
}

// SequencingKey is the comparable deduplication key of a sequenced
// transaction. External keys are scoped by content digest or author; system
// keys by the system transaction digest.
type SequencingKey struct {
	External bool
	Kind     uint8
	Scope    Identifier
	Counter  uint64
}

// SystemTransactionKind discriminates validator-locally-constructed
// transactions injected into every commit.
type SystemTransactionKind uint8

const (
	// SystemKindCommitPrologue pins the commit round and timestamp on chain.
	SystemKindCommitPrologue SystemTransactionKind = iota + 1
	// SystemKindCredentialUpdate applies an external credential rotation
	// that became active one round before the current commit.
	SystemKindCredentialUpdate
)

// CommitPrologue is the first transaction of every commit.
type CommitPrologue struct {
	Epoch             uint64
	Round             uint64
	CommitTimestampMs uint64
}

// CredentialUpdate activates a rotated signing credential for an authority.
// Activation is delayed by one round: no transaction in the activation round
// could have been authenticated against the new credential yet.
type CredentialUpdate struct {
	Authority       AuthorityID
	ActivationRound uint64
	Credential      []byte
}

// SystemTransaction is the validator-locally-constructed transaction union.
// Exactly one payload field is set, matching Kind.
type SystemTransaction struct {
	Kind       SystemTransactionKind
	Prologue   *CommitPrologue   `msgpack:",omitempty"`
	Credential *CredentialUpdate `msgpack:",omitempty"`
}

// Encode serializes the system transaction. System transactions are
// constructed locally from committed consensus data, so encoding never fails
// for a well-formed value.
func (t *SystemTransaction) Encode() ([]byte, error) {
	return msgpack.Marshal(t)
}

// Digest returns the content digest of the system transaction. Every honest
// validator constructs byte-identical system transactions from the same
// commit, so the digest is consistent across the committee.
func (t *SystemTransaction) Digest() Identifier {
	raw, err := t.Encode()
	if err != nil {
		panic(fmt.Sprintf("could not encode system transaction: %v", err))
	}
	return HashToIdentifier(raw)
}

// Key returns the stable deduplication key of the system transaction.
func (t *SystemTransaction) Key() SequencingKey {
	return SequencingKey{External: false, Kind: uint8(t.Kind), Scope: t.Digest()}
}
