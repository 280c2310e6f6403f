package crds

import (
	"testing"

	"github.com/mosaicnetworks/murmur/src/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCrdsFiltersSmallTable(t *testing.T) {
	me := newKeyPair(t)
	table := NewTable(protocol.PubkeyFromPublicKey(me.Public))
	now := nowMs()

	seedContactInfos(t, table, 10, now)

	filters := BuildCrdsFilters(table, nil, 512, 20)
	require.Len(t, filters, 1, "a small table fits one filter")
	assert.EqualValues(t, 0, filters[0].MaskBits)

	// every stored hash is covered
	for _, e := range table.Entries() {
		assert.True(t, filters[0].Contains(e.ValueHash))
	}
}

func TestBuildCrdsFiltersPartitions(t *testing.T) {
	me := newKeyPair(t)
	table := NewTable(protocol.PubkeyFromPublicKey(me.Public))
	now := nowMs()

	seedContactInfos(t, table, 40, now)

	filters := BuildCrdsFilters(table, nil, 16, 20)
	require.True(t, len(filters) > 1, "40 items over 16 per bloom needs partitioning")
	require.True(t, len(filters) <= 20)

	// each hash is covered by the filter owning its partition
	for _, e := range table.Entries() {
		covered := false
		for i := range filters {
			if filters[i].TestMask(e.ValueHash) && filters[i].Contains(e.ValueHash) {
				covered = true
				break
			}
		}
		assert.True(t, covered, "hash %s not covered", e.ValueHash)
	}
}

func TestBuildCrdsFiltersIncludesPurgedAndFailed(t *testing.T) {
	me := newKeyPair(t)
	table := NewTable(protocol.PubkeyFromPublicKey(me.Public))
	now := nowMs()

	kp := newKeyPair(t)
	v1 := newContactInfo(t, kp, now)
	require.NoError(t, table.Insert(v1, now))
	v2 := newContactInfo(t, kp, now+1)
	require.NoError(t, table.Insert(v2, now))

	purged := table.Purged.Values()
	require.Len(t, purged, 1)

	failed := protocol.Hash{7, 7, 7}

	filters := BuildCrdsFilters(table, []protocol.Hash{failed}, 512, 20)
	require.Len(t, filters, 1)
	assert.True(t, filters[0].Contains(purged[0]), "purged hash must be covered")
	assert.True(t, filters[0].Contains(failed), "failed hash must be covered")
}

func TestFilterCrdsValues(t *testing.T) {
	me := newKeyPair(t)
	table := NewTable(protocol.PubkeyFromPublicKey(me.Public))
	now := nowMs()

	seedContactInfos(t, table, 10, now)

	empty := protocol.NewCrdsFilter(protocol.NewBloomRandom(100, FalsePositiveRate, 4096), 0, 0)

	// an empty filter with caller wallclock in the future returns everything
	values := FilterCrdsValues(table, &empty, now+1000, 100)
	assert.Len(t, values, 10)

	// a caller older than every value gets nothing
	values = FilterCrdsValues(table, &empty, now-1000, 100)
	assert.Empty(t, values)

	// maxValues caps the response
	values = FilterCrdsValues(table, &empty, now+1000, 3)
	assert.Len(t, values, 3)

	// hashes present in the bloom are withheld
	full := protocol.NewCrdsFilter(protocol.NewBloomRandom(100, FalsePositiveRate, 4096), 0, 0)
	for _, e := range table.Entries() {
		full.Add(e.ValueHash)
	}
	values = FilterCrdsValues(table, &full, now+1000, 100)
	assert.Empty(t, values)
}
