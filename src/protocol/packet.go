package protocol

import (
	"fmt"
	"net"
)

// PacketDataSize is the maximum UDP payload the engine will send or accept.
// 1232 = 1280 (IPv6 minimum MTU) - 40 (IPv6 header) - 8 (UDP header).
const PacketDataSize = 1232

// Packet is a raw datagram paired with its remote endpoint. On ingress Addr
// is the sender; on egress it is the destination.
type Packet struct {
	Addr *net.UDPAddr
	Data [PacketDataSize]byte
	Size int
}

// NewPacket copies payload into a Packet bound for addr. It fails if the
// payload exceeds PacketDataSize.
func NewPacket(addr *net.UDPAddr, payload []byte) (Packet, error) {
	var p Packet
	if len(payload) > PacketDataSize {
		return p, fmt.Errorf("payload size %d exceeds %d", len(payload), PacketDataSize)
	}
	p.Addr = addr
	p.Size = copy(p.Data[:], payload)
	return p, nil
}

// Bytes returns the used portion of the packet buffer.
func (p *Packet) Bytes() []byte {
	return p.Data[:p.Size]
}
