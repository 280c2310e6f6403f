package gossip

import (
	"testing"

	"github.com/mosaicnetworks/murmur/src/protocol"
)

func epochSlotsValue(t *testing.T, index uint8, payload int, now uint64) protocol.CrdsValue {
	kp := testKeyPair(t)
	slots := make([]byte, payload)
	for i := range slots {
		slots[i] = byte(i)
	}
	v, err := protocol.NewSignedValue(protocol.NewEpochSlotsData(&protocol.EpochSlots{
		From:      protocol.PubkeyFromPublicKey(kp.Public),
		Index:     index,
		Slots:     slots,
		Wallclock: now,
	}), kp)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return v
}

// The push scan must advance the cursor monotonically across iterations and
// eventually drain every qualifying value, even when the byte budget forces
// it to stop early and rewind.
func TestBuildPushMessagesCursor(t *testing.T) {
	e := testEngine(t)
	now := nowMillis()

	// one active peer so the fanout is non-empty
	peerKey := testKeyPair(t)
	seedTable(t, e, []protocol.CrdsValue{contactInfoValue(t, peerKey, 8002, now)}, now)
	e.rotateActiveSet(now)
	if e.activeSet.Len() != 1 {
		t.Fatalf("active set should hold the seeded peer")
	}

	// values big enough that one scan cannot fit them all in the byte budget
	total := 100
	for i := 0; i < total; i++ {
		seedTable(t, e, []protocol.CrdsValue{epochSlotsValue(t, uint8(i%200), 900, now)}, now)
	}

	e.crdsLock.RLock()
	tableCursor := uint64(e.crdsTable.Len())
	e.crdsLock.RUnlock()

	var cursor uint64
	prev := uint64(0)

	for i := 0; i < 20 && cursor < tableCursor; i++ {
		e.buildPushMessages(&cursor, now)
		if cursor < prev {
			t.Fatalf("cursor went backwards: %d -> %d", prev, cursor)
		}
		prev = cursor
	}

	if cursor != tableCursor {
		t.Fatalf("push scan did not drain the table: cursor=%d want=%d", cursor, tableCursor)
	}

	// every emitted packet fits the MTU and decodes as a push message
	packets := e.egress.TryDrain()
	if len(packets) == 0 {
		t.Fatalf("expected push packets")
	}

	seen := 0
	for i := range packets {
		if packets[i].Size > protocol.PacketDataSize {
			t.Fatalf("packet %d exceeds MTU: %d", i, packets[i].Size)
		}
		msg, err := protocol.Decode(packets[i].Bytes())
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if msg.Kind != protocol.KindPushMessage {
			t.Fatalf("wrong kind: %s", msg.Kind)
		}
		seen += len(msg.PushMessage.Values)
	}
	// peer contact info + the epoch slots values, each fanned out once
	if seen != total+1 {
		t.Fatalf("pushed %d values, want %d", seen, total+1)
	}
}

// Values older than the push timeout are dropped for good: the cursor is not
// rewound over them.
func TestBuildPushMessagesDropsOldValues(t *testing.T) {
	e := testEngine(t)
	now := nowMillis()

	peerKey := testKeyPair(t)
	seedTable(t, e, []protocol.CrdsValue{contactInfoValue(t, peerKey, 8002, now)}, now)
	e.rotateActiveSet(now)

	// insert with an insertion timestamp far in the past
	old := contactInfoValue(t, testKeyPair(t), 8003, now)
	e.crdsLock.Lock()
	if err := e.crdsTable.Insert(old, now-PushMsgTimeoutMs-1000); err != nil {
		t.Fatalf("err: %v", err)
	}
	e.crdsLock.Unlock()

	var cursor uint64
	e.buildPushMessages(&cursor, now)

	if cursor != 2 {
		t.Fatalf("dropped values still count as considered, cursor=%d", cursor)
	}

	// the old value was not pushed
	for _, pkt := range e.egress.TryDrain() {
		msg, err := protocol.Decode(pkt.Bytes())
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		for _, v := range msg.PushMessage.Values {
			if v.Label() == old.Label() {
				t.Fatalf("stale value should not be pushed")
			}
		}
	}
}

func TestBuildPullRequests(t *testing.T) {
	e := testEngine(t)
	now := nowMillis()

	// no peers, no entrypoints
	if err := e.buildPullRequests(now); err != ErrNoPeers {
		t.Fatalf("expected ErrNoPeers, got %v", err)
	}

	values, _ := randomContactInfos(t, 3, now)
	seedTable(t, e, values, now)

	if err := e.buildPullRequests(now); err != nil {
		t.Fatalf("err: %v", err)
	}

	packets := e.egress.TryDrain()
	if len(packets) == 0 {
		t.Fatalf("expected pull request packets")
	}

	peerAddrs := make(map[string]bool)
	for i := range values {
		peerAddrs[values[i].ContactInfo().Gossip.String()] = true
	}

	for i := range packets {
		msg, err := protocol.Decode(packets[i].Bytes())
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if msg.Kind != protocol.KindPullRequest {
			t.Fatalf("wrong kind: %s", msg.Kind)
		}
		if !peerAddrs[packets[i].Addr.String()] {
			t.Fatalf("pull request sent to unknown endpoint %v", packets[i].Addr)
		}

		// the request carries our freshly stamped, re-signed contact info
		carried := msg.PullRequest.Value
		if carried.ID() != e.myPubkey {
			t.Fatalf("pull request must carry our contact info")
		}
		if carried.Wallclock() != now {
			t.Fatalf("contact info wallclock not refreshed: %d", carried.Wallclock())
		}
		if !carried.Verify() {
			t.Fatalf("refreshed contact info must be re-signed")
		}
	}
}

func TestGetGossipNodesFiltering(t *testing.T) {
	e := testEngine(t)
	e.conf.ShredVersion = 1
	e.myContactInfo.ShredVersion = 1
	now := nowMillis()

	newPeer := func(shred uint16, port uint16) protocol.CrdsValue {
		kp := testKeyPair(t)
		ci := &protocol.LegacyContactInfo{
			ID:           protocol.PubkeyFromPublicKey(kp.Public),
			Gossip:       protocol.SocketAddr{IP: []byte{127, 0, 0, 1}, Port: port},
			ShredVersion: shred,
			Wallclock:    now,
		}
		v, err := protocol.NewSignedValue(protocol.NewContactInfoData(ci), kp)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		return v
	}

	valid := newPeer(1, 8010)
	wrongShred := newPeer(2, 8011)
	badSocket := newPeer(1, 0)

	seedTable(t, e, []protocol.CrdsValue{valid, wrongShred, badSocket}, now)

	// a peer that has been silent past the activity timeout
	stale := newPeer(1, 8012)
	e.crdsLock.Lock()
	if err := e.crdsTable.Insert(stale, now-GossipActiveTimeoutMs-1); err != nil {
		t.Fatalf("err: %v", err)
	}
	e.crdsLock.Unlock()

	// our own contact info
	mine, err := protocol.NewSignedValue(protocol.NewContactInfoData(&protocol.LegacyContactInfo{
		ID:           e.myPubkey,
		Gossip:       protocol.SocketAddr{IP: []byte{127, 0, 0, 1}, Port: 8013},
		ShredVersion: 1,
		Wallclock:    now,
	}), e.keypair)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	seedTable(t, e, []protocol.CrdsValue{mine}, now)

	nodes := e.getGossipNodes(20, now)
	if len(nodes) != 1 {
		t.Fatalf("expected exactly one qualified peer, got %d", len(nodes))
	}
	if nodes[0].Value.ID() != valid.ID() {
		t.Fatalf("wrong peer selected")
	}
}

func TestDrainPushQueue(t *testing.T) {
	e := testEngine(t)
	now := nowMillis()

	value := contactInfoValue(t, testKeyPair(t), 8020, now)

	e.pushQueueLock.Lock()
	e.pushQueue = append(e.pushQueue, value)
	e.pushQueueLock.Unlock()

	e.drainPushQueueToCrdsTable(now)

	if len(e.pushQueue) != 0 {
		t.Fatalf("push queue should be empty after drain")
	}
	if e.crdsTable.Get(value.Label()) == nil {
		t.Fatalf("drained value should be in the table")
	}
}

func TestPushSelf(t *testing.T) {
	e := testEngine(t)
	now := nowMillis()

	e.pushSelf(now)

	e.pushQueueLock.Lock()
	defer e.pushQueueLock.Unlock()

	if len(e.pushQueue) != 1 {
		t.Fatalf("push queue should hold our contact info")
	}
	v := e.pushQueue[0]
	if v.ID() != e.myPubkey {
		t.Fatalf("wrong origin on self push")
	}
	if v.Wallclock() != now {
		t.Fatalf("self push wallclock not stamped")
	}
	if !v.Verify() {
		t.Fatalf("self push must be re-signed after stamping")
	}
}

func TestTrimMemory(t *testing.T) {
	e := testEngine(t)
	now := nowMillis()

	// a value old enough to be removed by the label sweep
	old := contactInfoValue(t, testKeyPair(t), 8030, now-PullCrdsTimeoutMs-1000)
	e.crdsLock.Lock()
	if err := e.crdsTable.Insert(old, now); err != nil {
		t.Fatalf("err: %v", err)
	}
	e.crdsLock.Unlock()

	e.failedPullLock.Lock()
	e.failedPullHashes.Push(protocol.Hash{1}, now-FailedInsertsRetentionMs-1)
	e.failedPullHashes.Push(protocol.Hash{2}, now)
	e.failedPullLock.Unlock()

	e.trimMemory(now)

	if e.crdsTable.Get(old.Label()) != nil {
		t.Fatalf("old label should be swept")
	}
	if e.failedPullHashes.Len() != 1 {
		t.Fatalf("expired failed-pull hash should be trimmed, len=%d", e.failedPullHashes.Len())
	}
}
