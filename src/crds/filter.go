package crds

import (
	"math"

	"github.com/mosaicnetworks/murmur/src/protocol"
)

const (
	// FalsePositiveRate is the target false-positive rate of pull filter
	// blooms.
	FalsePositiveRate = 0.1

	// maxBloomBits caps a pull filter bloom so the encoded filter leaves
	// room for the rest of the pull request within one datagram.
	maxBloomBits = 4096
)

// BuildCrdsFilters partitions the 64-bit hash-prefix space into 2^maskBits
// slices, each covered by a bloom of the hashes this node already holds:
// stored values, recently purged values, and recent failed pull inserts. The
// requester sends one pull request per filter; the responder answers with
// values that fall in the slice and are absent from the bloom.
func BuildCrdsFilters(t *Table, failedHashes []protocol.Hash, maxItems int, maxFilters int) []protocol.CrdsFilter {
	entries := t.Entries()
	purged := t.Purged.Values()

	numItems := len(entries) + len(purged) + len(failedHashes)
	maskBits := filterMaskBits(numItems, maxItems, maxFilters)

	numFilters := 1 << maskBits
	filters := make([]protocol.CrdsFilter, numFilters)
	for i := range filters {
		bloom := protocol.NewBloomRandom(maxItems, FalsePositiveRate, maxBloomBits)
		filters[i] = protocol.NewCrdsFilter(bloom, uint64(i), maskBits)
	}

	addHash := func(h protocol.Hash) {
		idx := 0
		if maskBits > 0 {
			idx = int(protocol.HashPrefix(h) >> (64 - maskBits))
		}
		filters[idx].Add(h)
	}

	for _, e := range entries {
		addHash(e.ValueHash)
	}
	for _, h := range purged {
		addHash(h)
	}
	for _, h := range failedHashes {
		addHash(h)
	}

	return filters
}

// filterMaskBits sizes the partition so each bloom covers at most maxItems
// hashes, without producing more than maxFilters filters.
func filterMaskBits(numItems, maxItems, maxFilters int) uint32 {
	if numItems <= maxItems || maxItems == 0 {
		return 0
	}
	bits := uint32(math.Ceil(math.Log2(float64(numItems) / float64(maxItems))))
	for bits > 0 && 1<<bits > maxFilters {
		bits--
	}
	return bits
}

// FilterCrdsValues answers a pull filter: values in the filter's hash slice,
// absent from its bloom, and no newer than the caller's wallclock, up to
// maxValues. Scan order follows the cursor so repeated requests see a stable
// prefix.
func FilterCrdsValues(t *Table, filter *protocol.CrdsFilter, callerWallclock uint64, maxValues int) []protocol.CrdsValue {
	var out []protocol.CrdsValue
	for _, e := range t.Entries() {
		if len(out) >= maxValues {
			break
		}
		if e.Value.Wallclock() > callerWallclock {
			continue
		}
		if !filter.TestMask(e.ValueHash) {
			continue
		}
		if filter.Contains(e.ValueHash) {
			continue
		}
		out = append(out, e.Value)
	}
	return out
}
