package gossip

import (
	"time"

	"github.com/mosaicnetworks/murmur/src/telemetry"
)

// responder drains the egress queue onto the socket. Send errors are logged
// and dropped; UDP gives no delivery guarantee anyway.
func (e *Engine) responder() {
	for !e.exiting() {
		packets := e.egress.TryDrain()
		if packets == nil {
			time.Sleep(time.Millisecond)
			continue
		}

		for i := range packets {
			pkt := &packets[i]
			if _, err := e.conn.WriteToUDP(pkt.Bytes(), pkt.Addr); err != nil {
				e.logger.WithError(err).WithField("to", pkt.Addr).Debug("Socket write")
				continue
			}
			telemetry.PacketsSent.Inc()
		}
	}
}
