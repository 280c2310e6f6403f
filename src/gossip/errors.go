package gossip

import (
	"errors"
)

var (
	// ErrNoPeers means no qualified peer was available for a pull round.
	ErrNoPeers = errors.New("no gossip peers")

	// ErrCantFindContactInfo means the prune destination has no contact
	// info in the CRDS table.
	ErrCantFindContactInfo = errors.New("cannot find contact info")

	// ErrInvalidGossipAddress means a peer's advertised gossip socket fails
	// sanitization.
	ErrInvalidGossipAddress = errors.New("invalid gossip address")

	// ErrPruneMessageTooOld means the prune's wallclock is outside the
	// acceptance window.
	ErrPruneMessageTooOld = errors.New("prune message too old")

	// ErrBadDestination means a prune message was addressed to a different
	// node.
	ErrBadDestination = errors.New("bad prune destination")

	// ErrSignature wraps signing failures.
	ErrSignature = errors.New("signature error")

	// ErrSerialization wraps codec failures.
	ErrSerialization = errors.New("serialization error")
)
