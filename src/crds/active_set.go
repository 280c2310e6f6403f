package crds

import (
	"github.com/mosaicnetworks/murmur/src/protocol"
)

// NumActiveSetEntries is the maximum number of push peers.
const NumActiveSetEntries = 25

// prunedOriginsBloomItems sizes the per-peer bloom of pruned origins.
const prunedOriginsBloomItems = 1024

type activeSetEntry struct {
	pubkey protocol.Pubkey
	gossip protocol.SocketAddr
	pruned *protocol.Bloom
}

// ActiveSet is the current set of push peers. For each peer it tracks a bloom
// of pruned origins: origins that peer no longer wants forwarded by us.
//
// The set is not internally synchronized; the engine guards it with a
// read-write lock.
type ActiveSet struct {
	entries []activeSetEntry
}

// NewActiveSet returns an empty set.
func NewActiveSet() *ActiveSet {
	return &ActiveSet{}
}

// Len returns the number of peers in the set.
func (a *ActiveSet) Len() int {
	return len(a.entries)
}

// Rotate replaces the set with up to NumActiveSetEntries peers drawn from the
// given contact infos. Prune state does not survive a rotation: a pruned
// origin becomes sendable again once the peer reappears in a fresh set, and
// the peer will simply prune us again if it still doesn't want it.
func (a *ActiveSet) Rotate(peers []*VersionedValue) {
	a.entries = a.entries[:0]
	for _, p := range peers {
		ci := p.Value.ContactInfo()
		if ci == nil {
			continue
		}
		a.entries = append(a.entries, activeSetEntry{
			pubkey: ci.ID,
			gossip: ci.Gossip,
			pruned: protocol.NewBloomRandom(prunedOriginsBloomItems, FalsePositiveRate, 1<<15),
		})
		if len(a.entries) == NumActiveSetEntries {
			break
		}
	}
}

// Prune records that peer no longer wants records originating at origin.
// Unknown peers are ignored; the prune refers to a set we have since rotated
// away from.
func (a *ActiveSet) Prune(peer protocol.Pubkey, origin protocol.Pubkey) {
	for i := range a.entries {
		if a.entries[i].pubkey == peer {
			a.entries[i].pruned.Add(origin[:])
			return
		}
	}
}

// HasPruned reports whether peer has pruned origin. The bloom makes this a
// may-have-pruned answer, which errs on the side of not sending.
func (a *ActiveSet) HasPruned(peer protocol.Pubkey, origin protocol.Pubkey) bool {
	for i := range a.entries {
		if a.entries[i].pubkey == peer {
			return a.entries[i].pruned.Contains(origin[:])
		}
	}
	return false
}

// GetFanoutPeers returns the gossip endpoints of the peers that have NOT
// pruned origin, in set order.
func (a *ActiveSet) GetFanoutPeers(origin protocol.Pubkey) []protocol.SocketAddr {
	var out []protocol.SocketAddr
	for i := range a.entries {
		if a.entries[i].pruned.Contains(origin[:]) {
			continue
		}
		out = append(out, a.entries[i].gossip)
	}
	return out
}

// Peers returns the pubkeys currently in the set, in set order.
func (a *ActiveSet) Peers() []protocol.Pubkey {
	out := make([]protocol.Pubkey, len(a.entries))
	for i := range a.entries {
		out[i] = a.entries[i].pubkey
	}
	return out
}
