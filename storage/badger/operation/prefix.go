package operation

import (
	"encoding/binary"
	"fmt"

	"github.com/atlasnet/atlas-go/model/atlas"
)

// Key prefix codes. Each code owns one keyspace; codes are never reused.
const (
	codeCheckpointBySeq         = 1 // seq -> VerifiedCheckpoint
	codeCheckpointContents      = 2 // contents digest -> CheckpointContents
	codeHighestSynced           = 3 // () -> seq
	codeHighestExecuted         = 4 // () -> VerifiedCheckpoint (the watermark)
	codeCheckpointTransactions  = 5 // seq -> []Identifier
	codeLastConsensusIndex      = 6 // () -> ExecutionIndexWithHash
	codePendingCheckpoint       = 7 // commit height -> PendingCheckpoint
	codeLatestPendingCheckpoint = 8 // () -> commit height
)

// makePrefix constructs a key from a one-byte code followed by the big-endian
// encodings of the given parts. Big-endian keeps numeric keys in iteration
// order.
func makePrefix(code byte, parts ...interface{}) []byte {
	key := []byte{code}
	for _, part := range parts {
		switch p := part.(type) {
		case uint64:
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], p)
			key = append(key, buf[:]...)
		case atlas.Identifier:
			key = append(key, p[:]...)
		default:
			panic(fmt.Sprintf("unsupported key part type %T", part))
		}
	}
	return key
}
