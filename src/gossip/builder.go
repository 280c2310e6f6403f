package gossip

import (
	"math/rand"
	"net"
	"time"

	"github.com/mosaicnetworks/murmur/src/crds"
	"github.com/mosaicnetworks/murmur/src/protocol"
	"github.com/mosaicnetworks/murmur/src/telemetry"
	"github.com/sirupsen/logrus"
)

// builder is the periodic worker: it constructs pull requests every other
// iteration, drains the push queue into the CRDS table, builds push messages
// from the cursor, trims memory, and periodically republishes the node's own
// contact info while rotating the active set.
func (e *Engine) builder() {
	e.pingEntrypoints()

	// pushCursor is the next unseen CRDS ordinal; shouldSendPulls toggles
	// the pull round on and off across iterations
	var pushCursor uint64
	shouldSendPulls := true

	var lastPushTs uint64

	for !e.exiting() {
		start := time.Now()
		now := nowMillis()

		if shouldSendPulls {
			if err := e.buildPullRequests(now); err != nil {
				e.logger.WithError(err).Error("build_pull_requests")
			}
		}
		shouldSendPulls = !shouldSendPulls

		e.drainPushQueueToCrdsTable(now)

		e.buildPushMessages(&pushCursor, now)

		e.trimMemory(now)

		if now-lastPushTs > PullCrdsTimeoutMs/2 {
			e.pushSelf(now)
			e.rotateActiveSet(now)
			lastPushTs = now
			e.logStats()
		}

		e.updateGauges()

		elapsed := time.Since(start)
		if sleep := time.Duration(GossipSleepMillis)*time.Millisecond - elapsed; sleep > 0 {
			time.Sleep(sleep)
		}
	}
}

// pingEntrypoints sends an initial ping to each configured entrypoint so the
// cluster learns our address even before the first pull round.
func (e *Engine) pingEntrypoints() {
	for _, addr := range e.conf.Entrypoints {
		ping, err := protocol.NewPing(e.keypair)
		if err != nil {
			e.logger.WithError(err).Error("ping_entrypoint")
			continue
		}
		raw, err := protocol.Encode(protocol.NewPingMessage(ping))
		if err != nil {
			e.logger.WithError(err).Error("ping_entrypoint")
			continue
		}
		pkt, err := protocol.NewPacket(addr, raw)
		if err != nil {
			e.logger.WithError(err).Error("ping_entrypoint")
			continue
		}
		e.egress.Send(pkt)
	}
}

// refreshMyContactInfo restamps the node's own contact info and re-signs it.
// Called before every push-of-self and pull request so peers always see a
// fresh wallclock under our signature.
func (e *Engine) refreshMyContactInfo(now uint64) (protocol.CrdsValue, error) {
	e.myContactInfo.Wallclock = now
	ci := e.myContactInfo
	return protocol.NewSignedValue(protocol.NewContactInfoData(&ci), e.keypair)
}

// pushSelf appends the refreshed contact info to the push queue; the next
// drain inserts it into the table and the push scan fans it out.
func (e *Engine) pushSelf(now uint64) {
	value, err := e.refreshMyContactInfo(now)
	if err != nil {
		e.logger.WithError(err).Error("push_self")
		return
	}

	e.pushQueueLock.Lock()
	e.pushQueue = append(e.pushQueue, value)
	e.pushQueueLock.Unlock()
}

// drainPushQueueToCrdsTable moves locally produced values into the table.
// This is the one place two locks nest: push-queue first, then CRDS.
func (e *Engine) drainPushQueueToCrdsTable(now uint64) {
	e.pushQueueLock.Lock()
	e.crdsLock.Lock()

	for i := range e.pushQueue {
		e.crdsTable.Insert(e.pushQueue[i], now)
	}
	e.pushQueue = e.pushQueue[:0]

	e.crdsLock.Unlock()
	e.pushQueueLock.Unlock()
}

// buildPushMessages scans the table from the push cursor, fans each fresh
// value out to the active-set peers that have not pruned its origin, and
// chunks the result into push packets.
//
// The scan stops early when the byte budget fills up; the cursor is then
// moved back to the ordinal of the first value the budget blocked, so the
// unsent tail is re-examined next iteration. Values dropped for age count as
// considered: they are gone for good, only budget-blocked values are retried.
func (e *Engine) buildPushMessages(pushCursor *uint64, now uint64) {
	e.crdsLock.RLock()
	entries := e.crdsTable.GetEntriesWithCursor(nil, pushCursor, entriesPerPushScan)
	// copy out what the loop needs so the lock drops before fanout
	type scanEntry struct {
		value      protocol.CrdsValue
		insertedAt uint64
		cursor     uint64
	}
	scan := make([]scanEntry, len(entries))
	for i, v := range entries {
		scan[i] = scanEntry{value: v.Value, insertedAt: v.InsertedAt, cursor: v.Cursor}
	}
	e.crdsLock.RUnlock()

	var groups []ValueGroup
	groupIdx := make(map[string]int)

	totalByteSize := 0
	considered := 0

	for i := range scan {
		age := absDiff(scan[i].insertedAt, now)
		if age > PushMsgTimeoutMs {
			considered++
			continue
		}

		size, err := protocol.SerializedSize(&scan[i].value)
		if err != nil {
			e.logger.WithError(err).Debug("push value size")
			considered++
			continue
		}
		if totalByteSize+size > MaxBytesPerPush {
			break
		}
		totalByteSize += size

		origin := scan[i].value.ID()

		e.activeSetLock.RLock()
		peers := e.activeSet.GetFanoutPeers(origin)
		e.activeSetLock.RUnlock()

		for _, peer := range peers {
			key := peer.String()
			idx, ok := groupIdx[key]
			if !ok {
				idx = len(groups)
				groups = append(groups, ValueGroup{Endpoint: peer.UDPAddr()})
				groupIdx[key] = idx
			}
			groups[idx].Values = append(groups[idx].Values, scan[i].value)
		}
		considered++
	}

	// retry only what the byte budget blocked; ordinals can have gaps, so
	// rewind to the blocked value's own ordinal rather than by a count
	if considered < len(scan) {
		*pushCursor = scan[considered].cursor
	}

	if len(groups) == 0 {
		return
	}

	packets, err := BuildPacketsFromValues(protocol.KindPushMessage, e.myPubkey, groups, PushMessageMaxPayloadSize)
	if err != nil {
		e.logger.WithError(err).Error("build_push_messages")
		return
	}

	for i := range packets {
		e.egress.Send(packets[i])
	}
}

// buildPullRequests builds the bloom filters covering what we already hold
// and sends each one to a random qualified peer. With no qualified peers the
// configured entrypoints stand in; with neither, the round fails with
// ErrNoPeers.
func (e *Engine) buildPullRequests(now uint64) error {
	e.failedPullLock.Lock()
	failedHashes := e.failedPullHashes.Values()
	e.failedPullLock.Unlock()

	e.crdsLock.RLock()
	filters := crds.BuildCrdsFilters(e.crdsTable, failedHashes, MaxBloomItems, MaxNumPullRequests)
	e.crdsLock.RUnlock()

	peers := e.getGossipNodes(MaxNumPullRequests, now)

	var endpoints []*net.UDPAddr
	for _, p := range peers {
		endpoints = append(endpoints, p.Value.ContactInfo().Gossip.UDPAddr())
	}
	if len(endpoints) == 0 {
		endpoints = e.conf.Entrypoints
	}
	if len(endpoints) == 0 {
		return ErrNoPeers
	}

	value, err := e.refreshMyContactInfo(now)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(int64(now)))

	for _, filter := range filters {
		endpoint := endpoints[rng.Intn(len(endpoints))]

		raw, err := protocol.Encode(protocol.NewPullRequest(filter, value))
		if err != nil {
			e.logger.WithError(err).Error("build_pull_requests encode")
			continue
		}
		pkt, err := protocol.NewPacket(endpoint, raw)
		if err != nil {
			e.logger.WithError(err).Error("build_pull_requests packet")
			continue
		}
		e.egress.Send(pkt)
	}

	return nil
}

// trimMemory enforces the table's memory bounds. A failure here means the
// table can no longer bound itself, which forfeits a core invariant: fatal.
func (e *Engine) trimMemory(now uint64) {
	e.crdsLock.Lock()
	e.crdsTable.Purged.Trim(saturatingSub(now, 5*PullCrdsTimeoutMs))
	if err := e.crdsTable.AttemptTrim(crds.UniquePubkeyCapacity); err != nil {
		e.logger.WithError(err).Fatal("trim_memory: attempt_trim")
	}
	if err := e.crdsTable.RemoveOldLabels(now, PullCrdsTimeoutMs); err != nil {
		e.logger.WithError(err).Fatal("trim_memory: remove_old_labels")
	}
	e.crdsLock.Unlock()

	e.failedPullLock.Lock()
	e.failedPullHashes.Trim(saturatingSub(now, FailedInsertsRetentionMs))
	e.failedPullLock.Unlock()
}

// rotateActiveSet refreshes the push peer set from the currently known
// gossip nodes.
func (e *Engine) rotateActiveSet(now uint64) {
	peers := e.getGossipNodes(crds.NumActiveSetEntries, now)

	e.activeSetLock.Lock()
	e.activeSet.Rotate(peers)
	size := e.activeSet.Len()
	e.activeSetLock.Unlock()

	e.logger.WithFields(logrus.Fields{
		"peers": size,
	}).Debug("rotate_active_set")
}

// getGossipNodes returns up to max peers that look alive and reachable:
// recently active, not ourselves, matching shred version, and with a sane
// gossip socket.
func (e *Engine) getGossipNodes(max int, now uint64) []*crds.VersionedValue {
	cutoff := saturatingSub(now, GossipActiveTimeoutMs)

	e.crdsLock.RLock()
	defer e.crdsLock.RUnlock()

	var out []*crds.VersionedValue
	for _, v := range e.crdsTable.GetContactInfos(nil) {
		if len(out) >= max {
			break
		}
		ci := v.Value.ContactInfo()
		if ci == nil {
			continue
		}
		if v.InsertedAt < cutoff {
			continue
		}
		if ci.ID == e.myPubkey {
			continue
		}
		if e.conf.ShredVersion != 0 && ci.ShredVersion != e.conf.ShredVersion {
			continue
		}
		if protocol.SanitizeSocket(ci.Gossip) != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (e *Engine) updateGauges() {
	e.crdsLock.RLock()
	size := e.crdsTable.Len()
	origins := e.crdsTable.NumOrigins()
	e.crdsLock.RUnlock()

	telemetry.CrdsTableSize.Set(float64(size))
	telemetry.CrdsOrigins.Set(float64(origins))
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
