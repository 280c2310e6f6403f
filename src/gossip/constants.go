package gossip

import (
	"github.com/mosaicnetworks/murmur/src/protocol"
)

// Protocol timing and sizing constants. All durations are in milliseconds of
// wall-clock time, matching the wallclocks carried by CRDS records.
const (
	// PullCrdsTimeoutMs is the staleness window for values arriving in pull
	// responses, and the base unit of several derived timeouts.
	PullCrdsTimeoutMs uint64 = 15000

	// PushMsgTimeoutMs is the staleness window for values arriving in push
	// messages, and for values leaving in our own pushes.
	PushMsgTimeoutMs uint64 = 30000

	// PruneMsgTimeoutMs bounds the age of an acceptable prune message.
	PruneMsgTimeoutMs uint64 = 500

	// FailedInsertsRetentionMs is how long failed pull inserts keep
	// contributing to pull filters.
	FailedInsertsRetentionMs uint64 = 20000

	// GossipActiveTimeoutMs is how long a peer stays eligible for gossip
	// after its last sign of activity.
	GossipActiveTimeoutMs uint64 = 60000

	// GossipSleepMillis is the builder's target loop period.
	GossipSleepMillis uint64 = 1000
)

const (
	// MaxPacketsPerPush bounds the bytes drained from the push scan per
	// builder iteration.
	MaxPacketsPerPush = 64

	// MaxBytesPerPush derives from MaxPacketsPerPush.
	MaxBytesPerPush = MaxPacketsPerPush * protocol.PacketDataSize

	// PushMessageMaxPayloadSize bounds the summed value bytes per push
	// chunk. The 44-byte slack covers the envelope: variant tag, sender
	// pubkey and vector-length prefix.
	PushMessageMaxPayloadSize = protocol.PacketDataSize - 44

	// MaxPullResponseValues bounds how many values answer one pull request.
	// TODO: tune.
	MaxPullResponseValues = 100

	// MaxNumPullRequests bounds the filters, and therefore the packets,
	// produced by one pull-request round.
	MaxNumPullRequests = 20

	// MaxBloomItems is the per-filter bloom capacity used when building
	// pull filters.
	MaxBloomItems = 512

	// entriesPerPushScan is how many CRDS entries one push scan reads.
	entriesPerPushScan = 512

	// queueCapacity bounds the ingress, verified and egress queues.
	queueCapacity = 10000
)
