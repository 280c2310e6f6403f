// Package crypto provides the hashing primitive shared by the CRDS value
// store and the wire protocol.
package crypto

import (
	"crypto/sha256"
)

// SHA256 returns the SHA256 digest of the concatenation of its arguments, so
// callers hashing a prefixed or multi-part message need not assemble it
// first.
func SHA256(chunks ...[]byte) []byte {
	h := sha256.New()
	for _, c := range chunks {
		h.Write(c)
	}
	return h.Sum(nil)
}
