package crds

import (
	"github.com/mosaicnetworks/murmur/src/protocol"
)

type hashTime struct {
	hash protocol.Hash
	ts   uint64
}

// HashTimeQueue is a FIFO of (hash, insertion time) pairs. Trimming only ever
// removes a prefix. Timestamps are not required to be in order (Table's
// AttemptTrim stamps evicted hashes with the origin's last activity time), so
// an entry older than the cutoff stays while a newer entry sits ahead of it.
type HashTimeQueue struct {
	items []hashTime
}

// NewHashTimeQueue returns an empty queue.
func NewHashTimeQueue() *HashTimeQueue {
	return &HashTimeQueue{}
}

// Push appends a hash observed at ts.
func (q *HashTimeQueue) Push(h protocol.Hash, ts uint64) {
	q.items = append(q.items, hashTime{hash: h, ts: ts})
}

// Trim drops entries from the front of the queue while they are older than
// cutoff.
func (q *HashTimeQueue) Trim(cutoff uint64) {
	i := 0
	for i < len(q.items) && q.items[i].ts < cutoff {
		i++
	}
	if i > 0 {
		q.items = append([]hashTime{}, q.items[i:]...)
	}
}

// Values returns the queued hashes in insertion order.
func (q *HashTimeQueue) Values() []protocol.Hash {
	out := make([]protocol.Hash, len(q.items))
	for i, it := range q.items {
		out[i] = it.hash
	}
	return out
}

// Len returns the number of queued entries.
func (q *HashTimeQueue) Len() int {
	return len(q.items)
}
