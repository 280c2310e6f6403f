package gossip

import (
	"time"

	"github.com/mosaicnetworks/murmur/src/protocol"
	"github.com/mosaicnetworks/murmur/src/telemetry"
	"github.com/sirupsen/logrus"
)

// verifier drains the ingress queue, decodes and checks each packet, and
// forwards the survivors to the verified queue. Every failure is a silent
// drop: the sender is untrusted, so there is nobody to report to.
//
// The loop polls rather than blocks so it can also poll the exit flag.
func (e *Engine) verifier() {
	for !e.exiting() {
		packets := e.ingress.TryDrain()
		if packets == nil {
			time.Sleep(time.Millisecond)
			continue
		}

		for i := range packets {
			e.verifyPacket(&packets[i])
		}
	}
}

func (e *Engine) verifyPacket(pkt *protocol.Packet) {
	msg, err := protocol.Decode(pkt.Bytes())
	if err != nil {
		telemetry.MessagesDropped.WithLabelValues("decode").Inc()
		e.logger.WithError(err).WithField("from", pkt.Addr).Debug("Packet decode")
		return
	}

	if err := msg.Sanitize(); err != nil {
		telemetry.MessagesDropped.WithLabelValues("sanitize").Inc()
		e.logger.WithError(err).WithFields(logrus.Fields{
			"kind": msg.Kind.String(),
			"from": pkt.Addr,
		}).Debug("Message sanitize")
		return
	}

	if !msg.VerifySignatures() {
		telemetry.MessagesDropped.WithLabelValues("signature").Inc()
		e.logger.WithFields(logrus.Fields{
			"kind": msg.Kind.String(),
			"from": pkt.Addr,
		}).Debug("Message signature")
		return
	}

	telemetry.MessagesVerified.WithLabelValues(msg.Kind.String()).Inc()

	e.verified.Send(VerifiedMessage{
		FromEndpoint: pkt.Addr,
		Message:      msg,
	})
}
