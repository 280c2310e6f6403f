// Package keys implements Ed25519 keypair management for murmur. Every record
// that travels through the gossip network is signed by its origin with an
// Ed25519 key, and a node's public key is its identity in the cluster.
package keys
