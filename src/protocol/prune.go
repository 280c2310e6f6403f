package protocol

import (
	"fmt"

	"github.com/mosaicnetworks/murmur/src/crypto/keys"
)

// MaxPruneDataNodes is the maximum number of origins in a single prune
// message.
const MaxPruneDataNodes = 32

// PruneData is a signed assertion from Pubkey to Destination that Destination
// should stop forwarding records originating at any of Prunes.
type PruneData struct {
	Pubkey      Pubkey
	Prunes      []Pubkey
	Destination Pubkey
	Wallclock   uint64
	Signature   [keys.SignatureSize]byte
}

// pruneSignData is the portion of PruneData covered by the signature.
type pruneSignData struct {
	Pubkey      Pubkey
	Prunes      []Pubkey
	Destination Pubkey
	Wallclock   uint64
}

// SignableData returns the canonical encoding of the signed fields.
func (p *PruneData) SignableData() ([]byte, error) {
	return marshal(&pruneSignData{
		Pubkey:      p.Pubkey,
		Prunes:      p.Prunes,
		Destination: p.Destination,
		Wallclock:   p.Wallclock,
	})
}

// Sign stamps the prune data with a signature from kp.
func (p *PruneData) Sign(kp *keys.KeyPair) error {
	msg, err := p.SignableData()
	if err != nil {
		return err
	}
	sig, err := keys.Sign(kp.Private, msg)
	if err != nil {
		return err
	}
	copy(p.Signature[:], sig)
	return nil
}

// Verify checks the signature against the sender pubkey.
func (p *PruneData) Verify() bool {
	msg, err := p.SignableData()
	if err != nil {
		return false
	}
	return keys.Verify(p.Pubkey.Ed25519(), msg, p.Signature[:])
}

// Sanitize enforces structural limits on a peer-supplied prune.
func (p *PruneData) Sanitize() error {
	if len(p.Prunes) == 0 {
		return fmt.Errorf("empty prune list")
	}
	if len(p.Prunes) > MaxPruneDataNodes {
		return fmt.Errorf("prune list too long: %d", len(p.Prunes))
	}
	if p.Wallclock >= MaxWallclock {
		return fmt.Errorf("wallclock overflow: %d", p.Wallclock)
	}
	return nil
}
