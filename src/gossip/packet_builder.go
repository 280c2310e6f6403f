package gossip

import (
	"fmt"
	"net"

	"github.com/mosaicnetworks/murmur/src/protocol"
)

// ValueGroup is an ordered batch of values bound for one endpoint.
type ValueGroup struct {
	Endpoint *net.UDPAddr
	Values   []protocol.CrdsValue
}

// BuildPacketsFromValues chunks each group's values into Protocol messages of
// the given kind (PushMessage or PullResponse), such that the summed encoded
// value sizes of one chunk never exceed maxChunkBytes. The caller picks
// maxChunkBytes so the full envelope fits in PacketDataSize.
//
// A chunk is flushed when the next value would overflow it, and once at the
// end of each group. A single value larger than maxChunkBytes is a structural
// invariant violation and aborts the build.
func BuildPacketsFromValues(kind protocol.MessageKind, from protocol.Pubkey, groups []ValueGroup, maxChunkBytes int) ([]protocol.Packet, error) {
	if kind != protocol.KindPushMessage && kind != protocol.KindPullResponse {
		return nil, fmt.Errorf("%w: kind %s cannot carry value chunks", ErrSerialization, kind)
	}

	var packets []protocol.Packet

	for gi := range groups {
		group := &groups[gi]
		if len(group.Values) == 0 {
			continue
		}

		var chunk []protocol.CrdsValue
		chunkBytes := 0

		flush := func() error {
			if len(chunk) == 0 {
				return nil
			}
			pkt, err := encodeValuePacket(kind, from, group.Endpoint, chunk)
			if err != nil {
				return err
			}
			packets = append(packets, pkt)
			chunk = nil
			chunkBytes = 0
			return nil
		}

		for i := range group.Values {
			size, err := protocol.SerializedSize(&group.Values[i])
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
			}
			if size > maxChunkBytes {
				return nil, fmt.Errorf("%w: value size %d exceeds chunk bound %d", ErrSerialization, size, maxChunkBytes)
			}
			if chunkBytes+size > maxChunkBytes {
				if err := flush(); err != nil {
					return nil, err
				}
			}
			chunk = append(chunk, group.Values[i])
			chunkBytes += size
		}

		if err := flush(); err != nil {
			return nil, err
		}
	}

	return packets, nil
}

func encodeValuePacket(kind protocol.MessageKind, from protocol.Pubkey, endpoint *net.UDPAddr, values []protocol.CrdsValue) (protocol.Packet, error) {
	var msg *protocol.Protocol
	if kind == protocol.KindPushMessage {
		msg = protocol.NewPushMessage(from, values)
	} else {
		msg = protocol.NewPullResponse(from, values)
	}

	raw, err := protocol.Encode(msg)
	if err != nil {
		return protocol.Packet{}, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	pkt, err := protocol.NewPacket(endpoint, raw)
	if err != nil {
		return protocol.Packet{}, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return pkt, nil
}
