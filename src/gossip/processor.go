package gossip

import (
	"fmt"
	"net"
	"time"

	"github.com/mosaicnetworks/murmur/src/crds"
	"github.com/mosaicnetworks/murmur/src/protocol"
	"github.com/mosaicnetworks/murmur/src/telemetry"
	"github.com/sirupsen/logrus"
)

// processor drains the verified queue and dispatches on the message kind.
// Critical sections on the shared state last only as long as a single table
// operation; response packets are built outside the locks and handed to the
// egress queue.
func (e *Engine) processor() {
	for !e.exiting() {
		messages := e.verified.TryDrain()
		if messages == nil {
			time.Sleep(time.Millisecond)
			continue
		}

		for i := range messages {
			e.dispatch(&messages[i])

			// keep the origin count bounded no matter how fast inserts
			// arrive between builder iterations
			e.crdsLock.Lock()
			e.crdsTable.AttemptTrim(crds.UniquePubkeyCapacity)
			e.crdsLock.Unlock()
		}
	}
}

func (e *Engine) dispatch(msg *VerifiedMessage) {
	now := nowMillis()

	switch msg.Message.Kind {
	case protocol.KindPushMessage:
		e.handlePushMessage(msg.Message.PushMessage, now)
	case protocol.KindPullResponse:
		e.handlePullResponse(msg.Message.PullResponse, now)
	case protocol.KindPullRequest:
		if err := e.handlePullRequest(msg.FromEndpoint, msg.Message.PullRequest, now); err != nil {
			e.logger.WithError(err).WithField("from", msg.FromEndpoint).Error("handle_pull_request")
		}
	case protocol.KindPruneMessage:
		if err := e.handlePruneMessage(&msg.Message.PruneMessage.Data, now); err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"from":   msg.Message.PruneMessage.From.Short(),
				"origin": msg.FromEndpoint,
			}).Error("handle_prune_message")
		}
	case protocol.KindPingMessage:
		if err := e.handlePing(msg.FromEndpoint, msg.Message.Ping); err != nil {
			e.logger.WithError(err).WithField("from", msg.FromEndpoint).Error("handle_ping")
		}
	case protocol.KindPongMessage:
		// the ping cache that would consume pongs is an extension point;
		// without one they are only evidence of life
		e.logger.WithFields(logrus.Fields{
			"from": msg.Message.Pong.From.Short(),
		}).Debug("Pong")
	}
}

// handlePushMessage inserts the pushed values and answers with prune messages
// for the origins whose inserts failed: the sender is forwarding records we
// already have, so we ask it to stop.
func (e *Engine) handlePushMessage(msg *protocol.PushMessage, now uint64) {
	e.crdsLock.Lock()
	res := e.crdsTable.InsertValues(msg.Values, now, PushMsgTimeoutMs, false, false)
	e.crdsLock.Unlock()

	if len(res.Failed) == 0 {
		return
	}

	failedOrigins := make(map[protocol.Pubkey]struct{})
	for _, idx := range res.Failed {
		failedOrigins[msg.Values[idx].ID()] = struct{}{}
	}

	packets, err := e.buildPruneMessages(failedOrigins, msg.From, now)
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"destination": msg.From.Short(),
			"origins":     len(failedOrigins),
		}).Error("build_prune_message")
		return
	}

	for i := range packets {
		e.egress.Send(packets[i])
	}
	telemetry.PrunesSent.Add(float64(len(packets)))
}

// handlePullResponse inserts the returned values with timestamp updates for
// their origins. Values that failed to insert are remembered in the
// failed-pull-hashes queue so the next round of pull filters covers them.
func (e *Engine) handlePullResponse(msg *protocol.PullResponse, now uint64) {
	e.crdsLock.Lock()
	res := e.crdsTable.InsertValues(msg.Values, now, PullCrdsTimeoutMs, true, true)

	for _, idx := range res.Inserted {
		e.crdsTable.UpdateRecordTimestamp(msg.Values[idx].ID(), now)
	}
	for _, idx := range res.Timeouts {
		// timed-out values are inserted unconditionally, with no separate
		// UpdateRecordTimestamp call: stale data is better than a hole in
		// the table
		e.crdsTable.Insert(msg.Values[idx], now)
	}
	e.crdsLock.Unlock()

	if len(res.Failed) == 0 {
		return
	}

	e.failedPullLock.Lock()
	e.failedPullHashes.Trim(saturatingSub(now, FailedInsertsRetentionMs))
	for _, idx := range res.Failed {
		hash, err := msg.Values[idx].Hash()
		if err != nil {
			continue
		}
		e.failedPullHashes.Push(hash, now)
	}
	e.failedPullLock.Unlock()
}

// handlePullRequest answers a peer's filter with the values it is missing,
// chunked into packets addressed back to the requesting endpoint.
func (e *Engine) handlePullRequest(from *net.UDPAddr, req *protocol.PullRequest, now uint64) error {
	if e.pingCache != nil && !e.pingCache.Check(req.Value.ID(), from) {
		return nil
	}

	e.crdsLock.Lock()
	// learn about the caller regardless of whether we can answer
	e.crdsTable.Insert(req.Value, now)
	e.crdsTable.UpdateRecordTimestamp(req.Value.ID(), now)
	e.crdsLock.Unlock()

	e.crdsLock.RLock()
	values := crds.FilterCrdsValues(e.crdsTable, &req.Filter, req.Value.Wallclock(), MaxPullResponseValues)
	e.crdsLock.RUnlock()

	if len(values) == 0 {
		return nil
	}

	packets, err := BuildPacketsFromValues(
		protocol.KindPullResponse,
		e.myPubkey,
		[]ValueGroup{{Endpoint: from, Values: values}},
		PushMessageMaxPayloadSize,
	)
	if err != nil {
		return err
	}

	for i := range packets {
		e.egress.Send(packets[i])
	}
	return nil
}

// handlePruneMessage applies a peer's prune to the active set.
func (e *Engine) handlePruneMessage(data *protocol.PruneData, now uint64) error {
	if data.Wallclock < saturatingSub(now, PruneMsgTimeoutMs) {
		return ErrPruneMessageTooOld
	}
	if data.Destination != e.myPubkey {
		return ErrBadDestination
	}

	e.activeSetLock.Lock()
	for _, origin := range data.Prunes {
		if origin == e.myPubkey {
			continue
		}
		e.activeSet.Prune(data.Pubkey, origin)
	}
	e.activeSetLock.Unlock()

	return nil
}

// handlePing answers with a signed pong.
func (e *Engine) handlePing(from *net.UDPAddr, ping *protocol.Ping) error {
	pong, err := protocol.NewPong(ping, e.keypair)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}

	raw, err := protocol.Encode(protocol.NewPongMessage(pong))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	pkt, err := protocol.NewPacket(from, raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	e.egress.Send(pkt)
	return nil
}

// buildPruneMessages builds signed prune packets telling destination to stop
// forwarding the failed origins, chunked to MaxPruneDataNodes origins each.
func (e *Engine) buildPruneMessages(failedOrigins map[protocol.Pubkey]struct{}, destination protocol.Pubkey, now uint64) ([]protocol.Packet, error) {
	e.crdsLock.RLock()
	destInfo := e.crdsTable.GetContactInfo(destination)
	e.crdsLock.RUnlock()

	if destInfo == nil {
		return nil, ErrCantFindContactInfo
	}

	gossipAddr := destInfo.Value.ContactInfo().Gossip
	if err := protocol.SanitizeSocket(gossipAddr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGossipAddress, err)
	}
	endpoint := gossipAddr.UDPAddr()

	prunes := make([]protocol.Pubkey, 0, len(failedOrigins))
	for origin := range failedOrigins {
		if origin == e.myPubkey {
			continue
		}
		prunes = append(prunes, origin)
	}

	var packets []protocol.Packet
	for start := 0; start < len(prunes); start += protocol.MaxPruneDataNodes {
		end := start + protocol.MaxPruneDataNodes
		if end > len(prunes) {
			end = len(prunes)
		}

		data := protocol.PruneData{
			Pubkey:      e.myPubkey,
			Prunes:      prunes[start:end],
			Destination: destination,
			Wallclock:   now,
		}
		if err := data.Sign(e.keypair); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSignature, err)
		}

		raw, err := protocol.Encode(protocol.NewPruneMessage(e.myPubkey, data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
		}

		pkt, err := protocol.NewPacket(endpoint, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		packets = append(packets, pkt)
	}

	return packets, nil
}

// saturatingSub keeps unsigned wallclock arithmetic from wrapping near zero.
func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
