package protocol

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"net"

	"github.com/mosaicnetworks/murmur/src/common"
)

// PubkeySize is the length of an Ed25519 public key in bytes.
const PubkeySize = ed25519.PublicKeySize

// Pubkey is a 32-byte Ed25519 public key. It identifies the origin of a CRDS
// record and the sender of a protocol message.
type Pubkey [PubkeySize]byte

// PubkeyFromBytes copies b into a Pubkey. It returns an error if b is not
// exactly PubkeySize bytes.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var pk Pubkey
	if len(b) != PubkeySize {
		return pk, fmt.Errorf("invalid pubkey length %d", len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// PubkeyFromPublicKey converts an ed25519 public key to a Pubkey.
func PubkeyFromPublicKey(pub ed25519.PublicKey) Pubkey {
	var pk Pubkey
	copy(pk[:], pub)
	return pk
}

// Ed25519 returns the key in the form expected by the ed25519 package.
func (p Pubkey) Ed25519() ed25519.PublicKey {
	return ed25519.PublicKey(p[:])
}

// IsZero reports whether the key is all zeroes.
func (p Pubkey) IsZero() bool {
	var zero Pubkey
	return p == zero
}

func (p Pubkey) String() string {
	return common.EncodeToString(p[:])
}

// Short returns an abbreviated representation for log fields.
func (p Pubkey) Short() string {
	return common.ShortHex(p[:])
}

// SocketAddr is the wire representation of a UDP endpoint.
type SocketAddr struct {
	IP   []byte
	Port uint16
}

// SocketAddrFromUDP converts a net.UDPAddr to a SocketAddr.
func SocketAddrFromUDP(addr *net.UDPAddr) SocketAddr {
	ip := addr.IP.To4()
	if ip == nil {
		ip = addr.IP
	}
	return SocketAddr{IP: append([]byte{}, ip...), Port: uint16(addr.Port)}
}

// UDPAddr converts the SocketAddr back to a net.UDPAddr.
func (s SocketAddr) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.IP(s.IP), Port: int(s.Port)}
}

func (s SocketAddr) String() string {
	return s.UDPAddr().String()
}

// Equal reports whether two socket addresses denote the same endpoint.
func (s SocketAddr) Equal(o SocketAddr) bool {
	return s.Port == o.Port && bytes.Equal(s.IP, o.IP)
}

// SanitizeSocket verifies that a peer-supplied socket address is usable as a
// send target: a well-formed, non-wildcard unicast IP and a non-zero port.
func SanitizeSocket(s SocketAddr) error {
	ip := net.IP(s.IP)
	if len(s.IP) != net.IPv4len && len(s.IP) != net.IPv6len {
		return fmt.Errorf("invalid IP length %d", len(s.IP))
	}
	if ip.IsUnspecified() {
		return fmt.Errorf("unspecified IP %s", ip)
	}
	if ip.IsMulticast() {
		return fmt.Errorf("multicast IP %s", ip)
	}
	if s.Port == 0 {
		return fmt.Errorf("port is zero")
	}
	return nil
}
