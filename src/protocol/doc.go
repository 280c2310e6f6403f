// Package protocol defines the wire-level types of the murmur gossip
// protocol: the CRDS record variants, the Protocol message envelope, and the
// binary codec that puts them on UDP datagrams.
//
// Every message is framed as a one-byte kind tag followed by the
// codec-encoded body, and must fit in a single datagram of at most
// PacketDataSize bytes.
package protocol
