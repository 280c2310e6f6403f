package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
)

// Bloom is a bloom filter over byte strings, keyed so that two filters built
// over the same items do not share false positives. It travels on the wire
// inside pull filters, so its fields are exported for the codec.
type Bloom struct {
	Keys    []uint64
	Bits    []uint64
	NumBits uint64
}

// NewBloom builds an empty filter with the given bit count and hash keys.
func NewBloom(numBits uint64, keys []uint64) *Bloom {
	if numBits == 0 {
		numBits = 1
	}
	return &Bloom{
		Keys:    keys,
		Bits:    make([]uint64, (numBits+63)/64),
		NumBits: numBits,
	}
}

// NewBloomRandom sizes a filter for numItems at the given false-positive rate,
// capped at maxBits, with randomly drawn hash keys.
func NewBloomRandom(numItems int, falseRate float64, maxBits uint64) *Bloom {
	numBits := optimalNumBits(numItems, falseRate)
	if numBits > maxBits {
		numBits = maxBits
	}
	if numBits == 0 {
		numBits = 1
	}

	numKeys := optimalNumKeys(numBits, numItems)
	keys := make([]uint64, numKeys)
	var buf [8]byte
	for i := range keys {
		rand.Read(buf[:])
		keys[i] = binary.LittleEndian.Uint64(buf[:])
	}

	return NewBloom(numBits, keys)
}

// ns * ln(fp) / ln(2)^2
func optimalNumBits(numItems int, falseRate float64) uint64 {
	if numItems == 0 {
		return 0
	}
	n := math.Ceil(float64(numItems) * math.Abs(math.Log(falseRate)) / (math.Ln2 * math.Ln2))
	return uint64(n)
}

// m/n * ln(2)
func optimalNumKeys(numBits uint64, numItems int) int {
	if numItems == 0 {
		return 1
	}
	k := int(math.Round(float64(numBits) / float64(numItems) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return k
}

func (b *Bloom) pos(item []byte, key uint64) uint64 {
	return hashWithKey(item, key) % b.NumBits
}

// Add inserts an item.
func (b *Bloom) Add(item []byte) {
	for _, k := range b.Keys {
		p := b.pos(item, k)
		b.Bits[p/64] |= uint64(1) << (p % 64)
	}
}

// Contains reports whether the item may have been inserted. False positives
// are possible, false negatives are not.
func (b *Bloom) Contains(item []byte) bool {
	for _, k := range b.Keys {
		p := b.pos(item, k)
		if b.Bits[p/64]&(uint64(1)<<(p%64)) == 0 {
			return false
		}
	}
	return true
}

// hashWithKey mixes the key into an FNV-1a hash of the item.
func hashWithKey(item []byte, key uint64) uint64 {
	var kb [8]byte
	binary.LittleEndian.PutUint64(kb[:], key)
	h := fnv.New64a()
	h.Write(kb[:])
	h.Write(item)
	return h.Sum64()
}

// CrdsFilter is the pull-request filter: a bloom of known value hashes plus a
// mask selecting the slice of the hash space the requester is asking about.
type CrdsFilter struct {
	Bloom    Bloom
	Mask     uint64
	MaskBits uint32
}

// NewCrdsFilter builds the filter for partition index out of 2^maskBits.
func NewCrdsFilter(bloom *Bloom, index uint64, maskBits uint32) CrdsFilter {
	return CrdsFilter{
		Bloom:    *bloom,
		Mask:     ComputeMask(index, maskBits),
		MaskBits: maskBits,
	}
}

// ComputeMask places the partition index in the top maskBits bits and fills
// the rest with ones.
func ComputeMask(index uint64, maskBits uint32) uint64 {
	if maskBits == 0 {
		return ^uint64(0)
	}
	if maskBits >= 64 {
		return index
	}
	return index<<(64-maskBits) | ^uint64(0)>>maskBits
}

// HashPrefix interprets the first 8 bytes of a value hash as a big-endian
// integer, the coordinate the mask partitions on.
func HashPrefix(h Hash) uint64 {
	return binary.BigEndian.Uint64(h[:8])
}

// TestMask reports whether the hash falls in this filter's partition.
func (f *CrdsFilter) TestMask(h Hash) bool {
	if f.MaskBits == 0 {
		return true
	}
	shift := 64 - f.MaskBits
	if f.MaskBits >= 64 {
		shift = 0
	}
	return HashPrefix(h)>>shift == f.Mask>>shift
}

// Add records a value hash in the filter's bloom.
func (f *CrdsFilter) Add(h Hash) {
	f.Bloom.Add(h[:])
}

// Contains reports whether the requester already claims to hold the hash.
func (f *CrdsFilter) Contains(h Hash) bool {
	return f.Bloom.Contains(h[:])
}

// Sanitize enforces structural limits on a peer-supplied filter.
func (f *CrdsFilter) Sanitize() error {
	if f.MaskBits > 64 {
		return fmt.Errorf("mask_bits %d out of range", f.MaskBits)
	}
	if f.Bloom.NumBits == 0 || uint64(len(f.Bloom.Bits)) != (f.Bloom.NumBits+63)/64 {
		return fmt.Errorf("malformed bloom: num_bits=%d words=%d", f.Bloom.NumBits, len(f.Bloom.Bits))
	}
	return nil
}
