package atlas

import (
	"fmt"
	"math"
)

// SequencedTransactionKind discriminates the two origins of a sequenced
// transaction.
type SequencedTransactionKind uint8

const (
	// SequencedExternal is a transaction delivered through a consensus batch.
	SequencedExternal SequencedTransactionKind = iota + 1
	// SequencedSystem is a transaction constructed locally by the validator.
	SequencedSystem
)

// SequencedTransaction is one entry of the deterministic, deduplicated
// execution schedule produced from a consensus commit. Exactly one of
// External/System is set, matching Kind. Batch points into the consensus
// commit for provenance (author attribution and logging); it is shared with
// the commit and must not be mutated.
type SequencedTransaction struct {
	Kind     SequencedTransactionKind
	External *ConsensusTransaction
	System   *SystemTransaction
	Batch    *CertifiedBatch
	Index    ExecutionIndex
}

// NewSequencedExternal wraps an externally authored transaction.
func NewSequencedExternal(tx *ConsensusTransaction, batch *CertifiedBatch, index ExecutionIndex) *SequencedTransaction {
	return &SequencedTransaction{
		Kind:     SequencedExternal,
		External: tx,
		Batch:    batch,
		Index:    index,
	}
}

// NewSequencedSystem wraps a validator-locally-constructed transaction.
func NewSequencedSystem(tx *SystemTransaction, index ExecutionIndex) *SequencedTransaction {
	return &SequencedTransaction{
		Kind:   SequencedSystem,
		System: tx,
		Index:  index,
	}
}

// Key returns the stable deduplication key.
func (t *SequencedTransaction) Key() SequencingKey {
	switch t.Kind {
	case SequencedExternal:
		return t.External.Key()
	case SequencedSystem:
		return t.System.Key()
	default:
		panic(fmt.Sprintf("key requested for unknown sequenced transaction kind %d", t.Kind))
	}
}

// GasPrice returns the price used for deterministic reordering. Non-fee-paying
// transactions (system transactions and external signals) report the maximum
// price so a descending stable sort keeps them at the front in their original
// relative order.
func (t *SequencedTransaction) GasPrice() uint64 {
	switch t.Kind {
	case SequencedExternal:
		if t.External.Kind == ConsensusKindUserTransaction {
			return t.External.User.GasPrice
		}
		return math.MaxUint64
	case SequencedSystem:
		return math.MaxUint64
	default:
		panic(fmt.Sprintf("gas price requested for unknown sequenced transaction kind %d", t.Kind))
	}
}

// Digest returns the execution digest of the transaction. Only executable
// transactions (user and system) have one; signals like end-of-publish are
// consumed by epoch state instead of being executed.
func (t *SequencedTransaction) Digest() (Identifier, bool) {
	switch t.Kind {
	case SequencedExternal:
		if t.External.Kind == ConsensusKindUserTransaction {
			return t.External.User.Digest, true
		}
		return ZeroID, false
	case SequencedSystem:
		return t.System.Digest(), true
	default:
		panic(fmt.Sprintf("digest requested for unknown sequenced transaction kind %d", t.Kind))
	}
}

// SharedInputs returns the shared-object inputs the transaction touches.
func (t *SequencedTransaction) SharedInputs() []Identifier {
	if t.Kind == SequencedExternal && t.External.Kind == ConsensusKindUserTransaction {
		return t.External.User.SharedInputs
	}
	return nil
}

// Author returns the authority the transaction is attributed to: the payload
// author for signals, the certificate author for user transactions. System
// transactions have no author.
func (t *SequencedTransaction) Author() (AuthorityID, bool) {
	if t.Kind != SequencedExternal {
		return ZeroID, false
	}
	if author, ok := t.External.Author(); ok {
		return author, true
	}
	if t.Batch != nil {
		return t.Batch.Author, true
	}
	return ZeroID, false
}
