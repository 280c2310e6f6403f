// Package crds implements the Cluster Replicated Data Store: a versioned,
// keyed table of signed records, the pull filters built over it, and the
// active set of push peers.
//
// The table is not internally synchronized. The gossip engine guards it with
// a single read-write lock and keeps critical sections short.
package crds
