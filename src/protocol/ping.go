package protocol

import (
	"crypto/rand"

	"github.com/mosaicnetworks/murmur/src/crypto"
	"github.com/mosaicnetworks/murmur/src/crypto/keys"
)

// pingPongPrefix is mixed into the pong hash so that a pong cannot be
// confused with a signature over arbitrary 32 bytes.
var pingPongPrefix = []byte("MURMUR_PING_PONG")

// Ping is a liveness probe carrying a random token signed by the sender.
type Ping struct {
	From      Pubkey
	Token     [32]byte
	Signature [keys.SignatureSize]byte
}

// NewPing builds a ping with a fresh random token, signed with kp.
func NewPing(kp *keys.KeyPair) (*Ping, error) {
	p := &Ping{From: PubkeyFromPublicKey(kp.Public)}
	if _, err := rand.Read(p.Token[:]); err != nil {
		return nil, err
	}
	sig, err := keys.Sign(kp.Private, p.Token[:])
	if err != nil {
		return nil, err
	}
	copy(p.Signature[:], sig)
	return p, nil
}

// Verify checks the token signature against the declared sender.
func (p *Ping) Verify() bool {
	return keys.Verify(p.From.Ed25519(), p.Token[:], p.Signature[:])
}

// Pong answers a ping. It signs a hash derived from the ping token rather
// than the raw token, so a ping cannot be used to extract a signature over
// attacker-chosen bytes.
type Pong struct {
	From      Pubkey
	Hash      [32]byte
	Signature [keys.SignatureSize]byte
}

// PongHash derives the signed hash from a ping token.
func PongHash(token [32]byte) [32]byte {
	var h [32]byte
	copy(h[:], crypto.SHA256(pingPongPrefix, token[:]))
	return h
}

// NewPong builds the response to ping, signed with kp.
func NewPong(ping *Ping, kp *keys.KeyPair) (*Pong, error) {
	p := &Pong{
		From: PubkeyFromPublicKey(kp.Public),
		Hash: PongHash(ping.Token),
	}
	sig, err := keys.Sign(kp.Private, p.Hash[:])
	if err != nil {
		return nil, err
	}
	copy(p.Signature[:], sig)
	return p, nil
}

// Verify checks the hash signature against the declared sender.
func (p *Pong) Verify() bool {
	return keys.Verify(p.From.Ed25519(), p.Hash[:], p.Signature[:])
}

// Matches reports whether the pong answers the given ping token.
func (p *Pong) Matches(ping *Ping) bool {
	return p.Hash == PongHash(ping.Token)
}
