package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

/*
All the functions here are wrappers around the ed25519 keys of the standard
library. Private keys are handled in the 64-byte expanded form which embeds the
public key in its second half.
*/

// KeyPair bundles an Ed25519 private key with its public half.
type KeyPair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// GenerateKeyPair creates a new Ed25519 keypair using the built-in
// pseudo-random generator rand.Reader.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: priv, Public: pub}, nil
}

// DumpPrivateKey exports a private key into a binary dump.
func DumpPrivateKey(priv ed25519.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	out := make([]byte, len(priv))
	copy(out, priv)
	return out
}

// ParsePrivateKey rebuilds a KeyPair from a raw 64-byte private key dump.
func ParsePrivateKey(d []byte) (*KeyPair, error) {
	if len(d) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid length, need %d bytes", ed25519.PrivateKeySize)
	}
	priv := ed25519.PrivateKey(append([]byte{}, d...))
	pub := priv.Public().(ed25519.PublicKey)
	return &KeyPair{Private: priv, Public: pub}, nil
}

// PrivateKeyHex returns the hexadecimal representation of a raw private key as
// returned by DumpPrivateKey.
func PrivateKeyHex(priv ed25519.PrivateKey) string {
	return hex.EncodeToString(DumpPrivateKey(priv))
}
