package primitives

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

// streamInfo is the HKDF info label for per-chunk streaming sub-keys.
var streamInfo = []byte("trustmesh-stream-chunk")

// DeriveChunkKey derives the AEAD key used to encrypt/decrypt the chunk at
// chunkIndex of a resource's ciphertext stream: key =
// KDF(resourceKey, chunkIndex).
func DeriveChunkKey(resourceKey []byte, chunkIndex uint64) ([]byte, error) {
	salt := make([]byte, 8)
	binary.LittleEndian.PutUint64(salt, chunkIndex)

	reader := hkdf.New(newHash, resourceKey, salt, streamInfo)
	key := make([]byte, SymmetricKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, errors.Wrap(err, "failed to derive chunk key")
	}
	return key, nil
}
