package block

import (
	"github.com/trustmesh/trustmesh-core/apierr"
	"github.com/trustmesh/trustmesh-core/primitives"
)

// Version is the single-byte envelope version prefix this codec writes and
// the only one it accepts without returning UpgradeRequired.
const Version = 1

// IDSize is the size of trustchain ids, author hashes, device ids, and
// group signature public keys — every content-addressed id in this system.
const IDSize = 32

// SignatureSize is the size of the outer block signature.
const SignatureSize = 64

// Block is the atomic verifiable unit of the trust chain.
type Block struct {
	Index        uint64
	TrustchainID [IDSize]byte
	Nature       Nature
	Payload      []byte
	Author       [IDSize]byte
	Signature    [SignatureSize]byte
}

// Hash computes H(nature ‖ author ‖ payload), the hash every stored block
// is identified by.
func (b *Block) Hash() []byte {
	return primitives.Hash(natureBytes(b.Nature), b.Author[:], b.Payload)
}

func natureBytes(n Nature) []byte {
	return putUvarint(nil, uint64(n))
}

// Serialize writes the outer envelope: version ‖ varint(index) ‖
// trustchainId[32] ‖ varint(nature) ‖ varint(payloadLen) ‖ payload ‖
// author[32] ‖ signature[64].
func (b *Block) Serialize() ([]byte, error) {
	out := make([]byte, 0, 1+10+IDSize+10+10+len(b.Payload)+IDSize+SignatureSize)
	out = append(out, Version)
	out = putUvarint(out, b.Index)
	out = append(out, b.TrustchainID[:]...)
	out = putUvarint(out, uint64(b.Nature))
	out = putUvarint(out, uint64(len(b.Payload)))
	out = append(out, b.Payload...)
	out = append(out, b.Author[:]...)
	out = append(out, b.Signature[:]...)
	return out, nil
}

// Parse reads the outer envelope produced by Serialize. It does not
// interpret Payload; use ParsePayload for that once the block's signature
// has been checked.
func Parse(data []byte) (*Block, error) {
	if len(data) < 1 {
		return nil, apierr.New(apierr.InvalidEncryptionFormat, "empty block")
	}
	version, rest := data[0], data[1:]
	if version != Version {
		return nil, apierr.New(apierr.UpgradeRequired, "unknown block envelope version")
	}

	var b Block

	index, n, err := readUvarint(rest)
	if err != nil {
		return nil, err
	}
	b.Index, rest = index, rest[n:]

	var field []byte
	if field, rest, err = takeFixed(rest, IDSize); err != nil {
		return nil, err
	}
	copy(b.TrustchainID[:], field)

	nature, n, err := readUvarint(rest)
	if err != nil {
		return nil, err
	}
	rest = rest[n:]
	if !Nature(nature).Known() {
		return nil, apierr.New(apierr.UpgradeRequired, "unknown block nature")
	}
	b.Nature = Nature(nature)

	payloadLen, n, err := readUvarint(rest)
	if err != nil {
		return nil, err
	}
	rest = rest[n:]
	if field, rest, err = takeFixed(rest, int(payloadLen)); err != nil {
		return nil, err
	}
	b.Payload = append([]byte(nil), field...)

	if field, rest, err = takeFixed(rest, IDSize); err != nil {
		return nil, err
	}
	copy(b.Author[:], field)

	if field, rest, err = takeFixed(rest, SignatureSize); err != nil {
		return nil, err
	}
	copy(b.Signature[:], field)

	if len(rest) != 0 {
		return nil, apierr.New(apierr.InvalidEncryptionFormat, "trailing bytes after block")
	}

	return &b, nil
}
