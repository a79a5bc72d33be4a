package sequencer

import (
	"sort"

	"github.com/atlasnet/atlas-go/model/atlas"
)

// reorderByGasPrice stably sorts a schedule by descending gas price. System
// transactions and external signals report the maximum price, so they stay at
// the front in their original relative order; ties between user transactions
// likewise keep their consensus order. The sort is deterministic given the
// same input schedule, so every validator that enables it derives the same
// final order.
func reorderByGasPrice(txs []*atlas.SequencedTransaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].GasPrice() > txs[j].GasPrice()
	})
}
