package sequencer

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// updateRunningHash folds one accepted raw transaction into the rolling
// checksum of the consensus output stream. The previous checksum is hashed
// together with the raw bytes, so the result commits to the full accepted
// prefix, not just the latest transaction. Two honest validators at the same
// consensus index must hold the same checksum.
func updateRunningHash(prev uint64, raw []byte) uint64 {
	h := xxhash.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], prev)
	_, _ = h.Write(buf[:])
	_, _ = h.Write(raw)
	return h.Sum64()
}
