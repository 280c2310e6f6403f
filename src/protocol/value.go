package protocol

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mosaicnetworks/murmur/src/crypto"
	"github.com/mosaicnetworks/murmur/src/crypto/keys"
)

// CrdsDataKind discriminates the CrdsData variants.
type CrdsDataKind uint8

const (
	// CrdsDataContactInfo advertises a node's identity and sockets.
	CrdsDataContactInfo CrdsDataKind = iota

	// CrdsDataVote carries a vote transaction.
	CrdsDataVote

	// CrdsDataEpochSlots advertises which slots a node has completed.
	CrdsDataEpochSlots

	// CrdsDataNodeInstance distinguishes concurrent instances of the same
	// identity.
	CrdsDataNodeInstance
)

const (
	// MaxEpochSlotsIndex bounds the EpochSlots index field.
	MaxEpochSlotsIndex = 255

	// MaxVoteIndex bounds the Vote index field.
	MaxVoteIndex = 32

	// MaxWallclock bounds record wallclocks to keep arithmetic on them safe.
	// It is far in the future of any realistic clock.
	MaxWallclock = uint64(1) << 62
)

func (k CrdsDataKind) String() string {
	switch k {
	case CrdsDataContactInfo:
		return "contact_info"
	case CrdsDataVote:
		return "vote"
	case CrdsDataEpochSlots:
		return "epoch_slots"
	case CrdsDataNodeInstance:
		return "node_instance"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// LegacyContactInfo advertises a node's identity, gossip endpoint and cluster
// epoch tag. It is the record that makes a node visible to its peers.
type LegacyContactInfo struct {
	ID           Pubkey
	Gossip       SocketAddr
	RPC          SocketAddr
	ShredVersion uint16
	Wallclock    uint64
}

// Vote is a vote transaction re-broadcast through gossip.
type Vote struct {
	From        Pubkey
	Index       uint8
	Transaction []byte
	Wallclock   uint64
}

// EpochSlots is a compressed bitmap of completed slots.
type EpochSlots struct {
	From      Pubkey
	Index     uint8
	Slots     []byte
	Wallclock uint64
}

// NodeInstance carries a random token that lets the cluster detect two nodes
// running with the same identity key.
type NodeInstance struct {
	From      Pubkey
	Wallclock uint64
	Timestamp uint64
	Token     uint64
}

// CrdsData is the tagged union of record payloads. Exactly one of the payload
// pointers is set, matching Kind.
type CrdsData struct {
	Kind         CrdsDataKind
	ContactInfo  *LegacyContactInfo `codec:",omitempty"`
	Vote         *Vote              `codec:",omitempty"`
	EpochSlots   *EpochSlots        `codec:",omitempty"`
	NodeInstance *NodeInstance      `codec:",omitempty"`
}

// NewContactInfoData wraps a LegacyContactInfo as CrdsData.
func NewContactInfoData(ci *LegacyContactInfo) CrdsData {
	return CrdsData{Kind: CrdsDataContactInfo, ContactInfo: ci}
}

// NewEpochSlotsData wraps an EpochSlots as CrdsData.
func NewEpochSlotsData(es *EpochSlots) CrdsData {
	return CrdsData{Kind: CrdsDataEpochSlots, EpochSlots: es}
}

// NewVoteData wraps a Vote as CrdsData.
func NewVoteData(v *Vote) CrdsData {
	return CrdsData{Kind: CrdsDataVote, Vote: v}
}

// NewNodeInstanceData wraps a NodeInstance as CrdsData.
func NewNodeInstanceData(ni *NodeInstance) CrdsData {
	return CrdsData{Kind: CrdsDataNodeInstance, NodeInstance: ni}
}

// ID returns the origin pubkey of the record.
func (d *CrdsData) ID() Pubkey {
	switch d.Kind {
	case CrdsDataContactInfo:
		return d.ContactInfo.ID
	case CrdsDataVote:
		return d.Vote.From
	case CrdsDataEpochSlots:
		return d.EpochSlots.From
	case CrdsDataNodeInstance:
		return d.NodeInstance.From
	}
	return Pubkey{}
}

// Wallclock returns the issuance time of the record in milliseconds.
func (d *CrdsData) Wallclock() uint64 {
	switch d.Kind {
	case CrdsDataContactInfo:
		return d.ContactInfo.Wallclock
	case CrdsDataVote:
		return d.Vote.Wallclock
	case CrdsDataEpochSlots:
		return d.EpochSlots.Wallclock
	case CrdsDataNodeInstance:
		return d.NodeInstance.Wallclock
	}
	return 0
}

// SetWallclock stamps the record with a new issuance time. The value must be
// re-signed afterwards.
func (d *CrdsData) SetWallclock(now uint64) {
	switch d.Kind {
	case CrdsDataContactInfo:
		d.ContactInfo.Wallclock = now
	case CrdsDataVote:
		d.Vote.Wallclock = now
	case CrdsDataEpochSlots:
		d.EpochSlots.Wallclock = now
	case CrdsDataNodeInstance:
		d.NodeInstance.Wallclock = now
	}
}

// Sanitize enforces the structural limits of each record kind.
func (d *CrdsData) Sanitize() error {
	if d.Wallclock() >= MaxWallclock {
		return fmt.Errorf("wallclock overflow: %d", d.Wallclock())
	}
	switch d.Kind {
	case CrdsDataContactInfo:
		if d.ContactInfo == nil {
			return fmt.Errorf("contact_info payload missing")
		}
	case CrdsDataVote:
		if d.Vote == nil {
			return fmt.Errorf("vote payload missing")
		}
		if d.Vote.Index >= MaxVoteIndex {
			return fmt.Errorf("vote index %d out of range", d.Vote.Index)
		}
	case CrdsDataEpochSlots:
		if d.EpochSlots == nil {
			return fmt.Errorf("epoch_slots payload missing")
		}
		if uint64(d.EpochSlots.Index) >= MaxEpochSlotsIndex {
			return fmt.Errorf("epoch_slots index %d out of range", d.EpochSlots.Index)
		}
	case CrdsDataNodeInstance:
		if d.NodeInstance == nil {
			return fmt.Errorf("node_instance payload missing")
		}
	default:
		return fmt.Errorf("unknown data kind %d", d.Kind)
	}
	return nil
}

// CrdsLabel is the identity of a record in the CRDS table. Two records with
// the same label overwrite each other; the wallclock decides which survives.
type CrdsLabel struct {
	Origin Pubkey
	Kind   CrdsDataKind
	Index  uint8
}

func (l CrdsLabel) String() string {
	return fmt.Sprintf("%s/%s/%d", l.Origin.Short(), l.Kind, l.Index)
}

// Label computes the table identity of the record.
func (d *CrdsData) Label() CrdsLabel {
	label := CrdsLabel{Origin: d.ID(), Kind: d.Kind}
	switch d.Kind {
	case CrdsDataVote:
		label.Index = d.Vote.Index
	case CrdsDataEpochSlots:
		label.Index = d.EpochSlots.Index
	}
	return label
}

// CrdsValue is a signed CRDS record: the payload plus the origin's signature
// over its canonical encoding.
type CrdsValue struct {
	Signature [keys.SignatureSize]byte
	Data      CrdsData
}

// NewSignedValue builds a CrdsValue signed with kp. The data's origin must be
// kp's public key or verification will fail on the receiving side.
func NewSignedValue(data CrdsData, kp *keys.KeyPair) (CrdsValue, error) {
	v := CrdsValue{Data: data}
	if err := v.Sign(kp); err != nil {
		return CrdsValue{}, err
	}
	return v, nil
}

// ID returns the origin pubkey of the value.
func (v *CrdsValue) ID() Pubkey {
	return v.Data.ID()
}

// Wallclock returns the issuance time of the value.
func (v *CrdsValue) Wallclock() uint64 {
	return v.Data.Wallclock()
}

// Label returns the table identity of the value.
func (v *CrdsValue) Label() CrdsLabel {
	return v.Data.Label()
}

// ContactInfo returns the contact-info payload, or nil for other kinds.
func (v *CrdsValue) ContactInfo() *LegacyContactInfo {
	if v.Data.Kind != CrdsDataContactInfo {
		return nil
	}
	return v.Data.ContactInfo
}

// SignableData returns the canonical encoding of the payload, which is what
// the signature covers.
func (v *CrdsValue) SignableData() ([]byte, error) {
	return marshal(&v.Data)
}

// Sign stamps the value with a signature from kp.
func (v *CrdsValue) Sign(kp *keys.KeyPair) error {
	msg, err := v.SignableData()
	if err != nil {
		return err
	}
	sig, err := keys.Sign(kp.Private, msg)
	if err != nil {
		return err
	}
	copy(v.Signature[:], sig)
	return nil
}

// Verify checks the signature against the value's own origin pubkey.
func (v *CrdsValue) Verify() bool {
	msg, err := v.SignableData()
	if err != nil {
		return false
	}
	id := v.ID()
	return keys.Verify(ed25519.PublicKey(id[:]), msg, v.Signature[:])
}

// Hash returns the SHA256 of the value's full wire encoding. This is the
// value hash used by pull filters and the purged list.
func (v *CrdsValue) Hash() (Hash, error) {
	b, err := marshal(v)
	if err != nil {
		return Hash{}, err
	}
	return HashFromBytes(crypto.SHA256(b)), nil
}

// Hash is a 32-byte value hash.
type Hash [32]byte

// HashFromBytes copies b into a Hash. b must be at least 32 bytes.
func HashFromBytes(b []byte) Hash {
	var h Hash
	copy(h[:], b)
	return h
}

func (h Hash) String() string {
	return fmt.Sprintf("%x", h[:])
}
