package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// SignatureSize is the length of an Ed25519 signature in bytes.
const SignatureSize = ed25519.SignatureSize

// Sign signs the data with the private key. Ed25519 signatures are
// deterministic so no source of randomness is needed here.
func Sign(priv ed25519.PrivateKey, data []byte) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length %d", len(priv))
	}
	return ed25519.Sign(priv, data), nil
}

// Verify verifies that sig is a valid signature of the data by the owner of
// the private key associated with the provided public key.
func Verify(pub ed25519.PublicKey, data []byte, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, data, sig)
}

// EncodeSignature returns a string representation of a signature.
func EncodeSignature(sig []byte) string {
	return hex.EncodeToString(sig)
}

// DecodeSignature parses a string representation of a signature as produced by
// EncodeSignature.
func DecodeSignature(sig string) ([]byte, error) {
	raw, err := hex.DecodeString(sig)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.SignatureSize {
		return nil, fmt.Errorf("wrong signature length: got %d, want %d", len(raw), ed25519.SignatureSize)
	}
	return raw, nil
}
