package fetch

import (
	"sort"

	"github.com/0xmhha/pns-indexer/types"
)

// Merge concatenates per-contract event batches into one sequence ordered
// by (block, transaction index, log index). Events at the same position
// keep their input order.
func Merge(batches ...[]types.Event) []types.Event {
	total := 0
	for _, b := range batches {
		total += len(b)
	}

	merged := make([]types.Event, 0, total)
	for _, b := range batches {
		merged = append(merged, b...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Base().Position().Less(merged[j].Base().Position())
	})
	return merged
}
