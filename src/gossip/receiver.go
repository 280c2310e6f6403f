package gossip

import (
	"net"
	"time"

	"github.com/mosaicnetworks/murmur/src/protocol"
	"github.com/mosaicnetworks/murmur/src/telemetry"
)

// receiver reads datagrams off the socket and feeds the ingress queue. The
// read deadline keeps the loop responsive to the exit flag; timeouts are not
// errors.
func (e *Engine) receiver() {
	for !e.exiting() {
		e.conn.SetReadDeadline(time.Now().Add(time.Second))

		var pkt protocol.Packet
		n, addr, err := e.conn.ReadFromUDP(pkt.Data[:])
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if e.exiting() {
				return
			}
			e.logger.WithError(err).Debug("Socket read")
			continue
		}

		pkt.Addr = addr
		pkt.Size = n

		telemetry.PacketsReceived.Inc()

		e.ingress.Send(pkt)
	}
}
