package atlas

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v4"
)

// ExecutionStatus is the terminal status of an executed transaction. A failed
// transaction still produces effects (gas charges, version bumps); failure is
// not an error condition for sequencing or checkpointing.
type ExecutionStatus uint8

const (
	ExecutionStatusSuccess ExecutionStatus = iota + 1
	ExecutionStatusFailure
)

// TransactionEffects is the deterministic output of executing one
// transaction, addressed by its content digest.
type TransactionEffects struct {
	TransactionDigest Identifier
	Status            ExecutionStatus
	ExecutedEpoch     uint64
	GasUsed           uint64
	// SharedVersions records the shared-object versions assigned to the
	// transaction's shared inputs, in input order.
	SharedVersions []uint64
	Dependencies   []Identifier
}

// Digest returns the content digest of the effects. Validators compare this
// value against the checkpoint manifest to detect forks.
func (e *TransactionEffects) Digest() Identifier {
	raw, err := msgpack.Marshal(e)
	if err != nil {
		panic(fmt.Sprintf("could not encode transaction effects: %v", err))
	}
	return HashToIdentifier(raw)
}
