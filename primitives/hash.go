package primitives

import (
	"hash"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the output size of the generic hash used for block hashes,
// device/resource ids, and HKDF's underlying hash function.
const HashSize = 32

func newHash() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails on a bad key length, and we never pass one.
		panic(err)
	}
	return h
}

// Hash computes the generic 32-byte hash over the concatenation of parts.
func Hash(parts ...[]byte) []byte {
	h := newHash()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
