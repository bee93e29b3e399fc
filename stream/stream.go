// Package stream implements the chunked AEAD encryptor/decryptor:
// a frame header followed by a sequence of chunks, each keyed by
// primitives.DeriveChunkKey(resourceKey, chunkIndex).
package stream

import (
	"encoding/binary"
	"io"

	"github.com/trustmesh/trustmesh-core/apierr"
	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/primitives"
)

// Version is the only stream frame version this package writes or accepts.
const Version = 1

// DefaultChunkSize is the default plaintext chunk size (1 MiB).
const DefaultChunkSize = 1 << 20

// zeroNonce is reused for every chunk: safe only because DeriveChunkKey
// gives every chunk a distinct key, so the (key, nonce) pair never
// repeats.
var zeroNonce = make([]byte, primitives.NonceSize)

// Header is the fixed-shape frame prefix: varint(streamVersion) followed
// by the 16-byte resourceId.
type Header struct {
	ResourceID [block.ResourceIDSize]byte
}

// Marshal writes the header's wire bytes.
func (h Header) Marshal() []byte {
	out := make([]byte, 0, 1+block.ResourceIDSize)
	out = append(out, Version) // single-byte varint for the only version we write
	out = append(out, h.ResourceID[:]...)
	return out
}

// ParseHeader reads a Header from the front of r.
func ParseHeader(r io.Reader) (Header, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, apierr.Wrap(apierr.InvalidEncryptionFormat, err, "failed to read stream version")
	}
	if buf[0] != Version {
		return Header{}, apierr.New(apierr.UpgradeRequired, "unknown stream frame version")
	}
	var h Header
	if _, err := io.ReadFull(r, h.ResourceID[:]); err != nil {
		return Header{}, apierr.Wrap(apierr.InvalidEncryptionFormat, err, "failed to read stream resourceId")
	}
	return h, nil
}

// Encryptor seals successive plaintext chunks of a single resource.
type Encryptor struct {
	resourceKey []byte
	chunkSize   int
	index       uint64
}

// NewEncryptor creates an Encryptor for resourceKey with the given
// plaintext chunk size (DefaultChunkSize if zero).
func NewEncryptor(resourceKey []byte, chunkSize int) *Encryptor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Encryptor{resourceKey: resourceKey, chunkSize: chunkSize}
}

// ChunkSize returns the configured plaintext chunk size.
func (e *Encryptor) ChunkSize() int { return e.chunkSize }

// EncryptChunk seals one plaintext chunk, advancing the chunk index.
// plain must be at most ChunkSize(); the last chunk of a stream must be
// strictly smaller than ChunkSize (an empty chunk if the plaintext length
// is an exact multiple).
func (e *Encryptor) EncryptChunk(plain []byte) ([]byte, error) {
	key, err := primitives.DeriveChunkKey(e.resourceKey, e.index)
	if err != nil {
		return nil, err
	}
	ct, err := primitives.AEADEncryptDeterministic(key, zeroNonce, plain, nil)
	if err != nil {
		return nil, err
	}
	e.index++
	return ct, nil
}

// Decryptor opens successive ciphertext chunks of a single resource.
type Decryptor struct {
	resourceKey []byte
	index       uint64
}

// NewDecryptor creates a Decryptor for resourceKey.
func NewDecryptor(resourceKey []byte) *Decryptor {
	return &Decryptor{resourceKey: resourceKey}
}

// DecryptChunk opens one ciphertext chunk, advancing the chunk index. Any
// authentication failure returns apierr.DecryptionFailed.
func (d *Decryptor) DecryptChunk(ciphertext []byte) ([]byte, error) {
	key, err := primitives.DeriveChunkKey(d.resourceKey, d.index)
	if err != nil {
		return nil, err
	}
	plain, err := primitives.AEADDecryptDeterministic(key, zeroNonce, ciphertext, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.DecryptionFailed, err, "stream chunk authentication failed")
	}
	d.index++
	return plain, nil
}

// EncryptAll streams plaintext from r into w as a complete frame: header,
// then chunks of ChunkSize() until r is exhausted, with a final chunk
// strictly smaller than ChunkSize() (empty if the input was an exact
// multiple).
func EncryptAll(w io.Writer, r io.Reader, resourceID [block.ResourceIDSize]byte, resourceKey []byte, chunkSize int) error {
	enc := NewEncryptor(resourceKey, chunkSize)
	if _, err := w.Write(Header{ResourceID: resourceID}.Marshal()); err != nil {
		return err
	}

	buf := make([]byte, enc.ChunkSize())
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			ct, err := enc.EncryptChunk(buf[:n])
			if err != nil {
				return err
			}
			if err := writeChunk(w, ct); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			if n == 0 {
				// exact multiple of chunkSize (or empty input): emit the
				// required empty final chunk.
				ct, err := enc.EncryptChunk(nil)
				if err != nil {
					return err
				}
				return writeChunk(w, ct)
			}
			return nil
		}
		if readErr == io.ErrUnexpectedEOF {
			return nil // n < len(buf): this was already the final, smaller chunk
		}
		if readErr != nil {
			return readErr
		}
	}
}

// DecryptAll reverses EncryptAll: it reads the header from r (returning it
// so the caller can look up the resource key) then streams decrypted
// chunks to w until r is exhausted.
func DecryptAll(w io.Writer, r io.Reader, resourceKey []byte) (Header, error) {
	header, err := ParseHeader(r)
	if err != nil {
		return Header{}, err
	}
	dec := NewDecryptor(resourceKey)

	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err == io.EOF {
				return header, nil
			}
			return header, apierr.Wrap(apierr.InvalidEncryptionFormat, err, "failed to read chunk length")
		}
		ct := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
		if _, err := io.ReadFull(r, ct); err != nil {
			return header, apierr.Wrap(apierr.InvalidEncryptionFormat, err, "truncated stream chunk")
		}
		plain, err := dec.DecryptChunk(ct)
		if err != nil {
			return header, err
		}
		if _, err := w.Write(plain); err != nil {
			return header, err
		}
	}
}

func writeChunk(w io.Writer, ct []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(ct)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(ct)
	return err
}
