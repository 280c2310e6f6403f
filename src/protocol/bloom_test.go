package protocol

import (
	"crypto/rand"
	"testing"
)

func randomHash(t *testing.T) Hash {
	var h Hash
	if _, err := rand.Read(h[:]); err != nil {
		t.Fatalf("err: %v", err)
	}
	return h
}

func TestBloomAddContains(t *testing.T) {
	bloom := NewBloomRandom(100, 0.1, 4096)

	var items []Hash
	for i := 0; i < 50; i++ {
		items = append(items, randomHash(t))
	}

	for _, h := range items {
		bloom.Add(h[:])
	}
	for _, h := range items {
		if !bloom.Contains(h[:]) {
			t.Fatalf("bloom must not produce false negatives")
		}
	}

	// with 50 items in a filter sized for 100 at 10% fp, a run of 100
	// misses should not all come back positive
	misses := 0
	for i := 0; i < 100; i++ {
		h := randomHash(t)
		if !bloom.Contains(h[:]) {
			misses++
		}
	}
	if misses == 0 {
		t.Fatalf("bloom reports everything as present")
	}
}

func TestBloomSizing(t *testing.T) {
	bloom := NewBloomRandom(512, 0.1, 4096)
	if bloom.NumBits > 4096 {
		t.Fatalf("bloom must respect the bit cap, got %d", bloom.NumBits)
	}
	if len(bloom.Bits) != int((bloom.NumBits+63)/64) {
		t.Fatalf("bit words do not match NumBits")
	}
	if len(bloom.Keys) == 0 {
		t.Fatalf("bloom needs at least one key")
	}
}

func TestFilterMask(t *testing.T) {
	// mask_bits=1 with index 0 selects hashes whose top bit is clear
	f := NewCrdsFilter(NewBloomRandom(100, 0.1, 4096), 0, 1)

	if f.Mask != ^uint64(0)>>1 {
		t.Fatalf("wrong mask for index 0: %x", f.Mask)
	}

	low := Hash{0x00}
	high := Hash{0x80}
	if !f.TestMask(low) {
		t.Fatalf("hash with top bit clear should match")
	}
	if f.TestMask(high) {
		t.Fatalf("hash with top bit set should not match")
	}

	f1 := NewCrdsFilter(NewBloomRandom(100, 0.1, 4096), 1, 1)
	if !f1.TestMask(high) || f1.TestMask(low) {
		t.Fatalf("partition 1 should match only hashes with the top bit set")
	}

	// zero mask bits matches everything
	f0 := NewCrdsFilter(NewBloomRandom(100, 0.1, 4096), 0, 0)
	if !f0.TestMask(low) || !f0.TestMask(high) {
		t.Fatalf("mask_bits=0 should match all hashes")
	}
}

func TestFilterSanitize(t *testing.T) {
	f := NewCrdsFilter(NewBloomRandom(100, 0.1, 4096), 0, 1)
	if err := f.Sanitize(); err != nil {
		t.Fatalf("well-formed filter should sanitize: %v", err)
	}

	f.MaskBits = 65
	if err := f.Sanitize(); err == nil {
		t.Fatalf("mask_bits > 64 should not sanitize")
	}

	f.MaskBits = 1
	f.Bloom.Bits = f.Bloom.Bits[:len(f.Bloom.Bits)-1]
	if err := f.Sanitize(); err == nil {
		t.Fatalf("truncated bloom should not sanitize")
	}
}
