package crds

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/murmur/src/crypto/keys"
	"github.com/mosaicnetworks/murmur/src/protocol"
)

func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}

func newKeyPair(t *testing.T) *keys.KeyPair {
	kp, err := keys.GenerateKeyPair()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return kp
}

func newContactInfo(t *testing.T, kp *keys.KeyPair, wallclock uint64) protocol.CrdsValue {
	ci := &protocol.LegacyContactInfo{
		ID:        protocol.PubkeyFromPublicKey(kp.Public),
		Gossip:    protocol.SocketAddr{IP: []byte{127, 0, 0, 1}, Port: 8001},
		Wallclock: wallclock,
	}
	v, err := protocol.NewSignedValue(protocol.NewContactInfoData(ci), kp)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return v
}

func TestInsertAndGet(t *testing.T) {
	me := newKeyPair(t)
	table := NewTable(protocol.PubkeyFromPublicKey(me.Public))

	kp := newKeyPair(t)
	now := nowMs()
	v := newContactInfo(t, kp, now)

	if err := table.Insert(v, now); err != nil {
		t.Fatalf("err: %v", err)
	}

	got := table.Get(v.Label())
	if got == nil {
		t.Fatalf("inserted value not found")
	}
	if got.Value.Wallclock() != now {
		t.Fatalf("wrong wallclock: %d", got.Value.Wallclock())
	}

	if table.Len() != 1 || table.NumOrigins() != 1 {
		t.Fatalf("wrong table size: len=%d origins=%d", table.Len(), table.NumOrigins())
	}
}

func TestInsertStaleRejected(t *testing.T) {
	me := newKeyPair(t)
	table := NewTable(protocol.PubkeyFromPublicKey(me.Public))

	kp := newKeyPair(t)
	now := nowMs()

	fresh := newContactInfo(t, kp, now)
	if err := table.Insert(fresh, now); err != nil {
		t.Fatalf("err: %v", err)
	}

	stale := newContactInfo(t, kp, now-1)
	if err := table.Insert(stale, now); err != ErrOutdated {
		t.Fatalf("stale insert should return ErrOutdated, got %v", err)
	}

	dup := fresh
	if err := table.Insert(dup, now); err != ErrDuplicate {
		t.Fatalf("duplicate insert should return ErrDuplicate, got %v", err)
	}

	newer := newContactInfo(t, kp, now+1)
	if err := table.Insert(newer, now); err != nil {
		t.Fatalf("newer insert should succeed: %v", err)
	}
	if table.Get(newer.Label()).Value.Wallclock() != now+1 {
		t.Fatalf("newer value did not overwrite")
	}

	// the overwritten value's hash lands on the purged list
	if table.Purged.Len() != 1 {
		t.Fatalf("purged should hold the overwritten hash, len=%d", table.Purged.Len())
	}
}

func TestInsertValuesClassification(t *testing.T) {
	me := newKeyPair(t)
	table := NewTable(protocol.PubkeyFromPublicKey(me.Public))

	now := nowMs()
	timeout := uint64(15000)

	fresh := newContactInfo(t, newKeyPair(t), now)
	old := newContactInfo(t, newKeyPair(t), now-timeout-1)
	dup := fresh

	res := table.InsertValues(
		[]protocol.CrdsValue{fresh, old, dup},
		now, timeout, true, false,
	)

	if len(res.Inserted) != 1 || res.Inserted[0] != 0 {
		t.Fatalf("wrong inserted list: %v", res.Inserted)
	}
	if len(res.Timeouts) != 1 || res.Timeouts[0] != 1 {
		t.Fatalf("wrong timeouts list: %v", res.Timeouts)
	}
	if len(res.Failed) != 1 || res.Failed[0] != 2 {
		t.Fatalf("wrong failed list: %v", res.Failed)
	}

	// without recordTimeouts the out-of-window value counts as failed
	table2 := NewTable(protocol.PubkeyFromPublicKey(me.Public))
	res2 := table2.InsertValues([]protocol.CrdsValue{old}, now, timeout, false, false)
	if len(res2.Timeouts) != 0 || len(res2.Failed) != 1 {
		t.Fatalf("wrong classification without recordTimeouts: %+v", res2)
	}
}

func TestGetEntriesWithCursor(t *testing.T) {
	me := newKeyPair(t)
	table := NewTable(protocol.PubkeyFromPublicKey(me.Public))

	now := nowMs()
	total := 10
	for i := 0; i < total; i++ {
		if err := table.Insert(newContactInfo(t, newKeyPair(t), now), now); err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	var cursor uint64
	first := table.GetEntriesWithCursor(nil, &cursor, 4)
	if len(first) != 4 {
		t.Fatalf("wrong batch size: %d", len(first))
	}
	if cursor != 4 {
		t.Fatalf("cursor should advance to 4, got %d", cursor)
	}
	for i := 1; i < len(first); i++ {
		if first[i].Cursor <= first[i-1].Cursor {
			t.Fatalf("entries must come back in cursor order")
		}
	}

	rest := table.GetEntriesWithCursor(nil, &cursor, 100)
	if len(rest) != total-4 {
		t.Fatalf("wrong remainder: %d", len(rest))
	}
	if table.GetEntriesWithCursor(nil, &cursor, 100) != nil {
		t.Fatalf("drained table should return nothing")
	}
}

func TestAttemptTrim(t *testing.T) {
	me := newKeyPair(t)
	myPk := protocol.PubkeyFromPublicKey(me.Public)
	table := NewTable(myPk)

	base := nowMs()
	// staggered activity so eviction order is deterministic
	for i := 0; i < 10; i++ {
		v := newContactInfo(t, newKeyPair(t), base+uint64(i))
		if err := table.Insert(v, base+uint64(i)); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
	mine := newContactInfo(t, me, base)
	if err := table.Insert(mine, base); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := table.AttemptTrim(5); err != nil {
		t.Fatalf("err: %v", err)
	}
	if table.NumOrigins() != 5 {
		t.Fatalf("trim should leave 5 origins, got %d", table.NumOrigins())
	}

	// own records survive even though they are the least recently active
	if table.Get(mine.Label()) == nil {
		t.Fatalf("own value must never be evicted")
	}

	if table.Purged.Len() == 0 {
		t.Fatalf("evicted hashes should land on the purged list")
	}
}

func TestRemoveOldLabels(t *testing.T) {
	me := newKeyPair(t)
	table := NewTable(protocol.PubkeyFromPublicKey(me.Public))

	now := nowMs()
	timeout := uint64(15000)

	old := newContactInfo(t, newKeyPair(t), now-timeout-1)
	fresh := newContactInfo(t, newKeyPair(t), now)
	mineOld := newContactInfo(t, me, now-timeout-1)

	// bypass the staleness window on insert
	for _, v := range []protocol.CrdsValue{old, fresh, mineOld} {
		if err := table.Insert(v, now); err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	if err := table.RemoveOldLabels(now, timeout); err != nil {
		t.Fatalf("err: %v", err)
	}

	if table.Get(old.Label()) != nil {
		t.Fatalf("old label should be removed")
	}
	if table.Get(fresh.Label()) == nil {
		t.Fatalf("fresh label should survive")
	}
	if table.Get(mineOld.Label()) == nil {
		t.Fatalf("own labels are exempt from removal")
	}
}

func TestUpdateRecordTimestamp(t *testing.T) {
	me := newKeyPair(t)
	table := NewTable(protocol.PubkeyFromPublicKey(me.Public))

	kp := newKeyPair(t)
	now := nowMs()
	v := newContactInfo(t, kp, now)
	if err := table.Insert(v, now); err != nil {
		t.Fatalf("err: %v", err)
	}

	table.UpdateRecordTimestamp(v.ID(), now+5000)

	if got := table.GetContactInfo(v.ID()); got.InsertedAt != now+5000 {
		t.Fatalf("contact info timestamp not refreshed: %d", got.InsertedAt)
	}
}

func TestHashTimeQueue(t *testing.T) {
	q := NewHashTimeQueue()

	q.Push(protocol.Hash{1}, 100)
	q.Push(protocol.Hash{2}, 200)
	q.Push(protocol.Hash{3}, 300)

	if q.Len() != 3 {
		t.Fatalf("wrong length: %d", q.Len())
	}

	q.Trim(200)
	values := q.Values()
	if len(values) != 2 || values[0] != (protocol.Hash{2}) || values[1] != (protocol.Hash{3}) {
		t.Fatalf("trim removed the wrong entries: %v", values)
	}

	q.Trim(1000)
	if q.Len() != 0 {
		t.Fatalf("queue should be empty after full trim")
	}
}
