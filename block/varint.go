package block

import (
	"encoding/binary"

	"github.com/trustmesh/trustmesh-core/apierr"
)

// putUvarint appends a varint-encoded v to buf, matching the codec's
// varint(...) wire convention.
func putUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// readUvarint reads a varint from the front of data, returning the value,
// the number of bytes consumed, and InvalidEncryptionFormat on truncated
// input.
func readUvarint(data []byte) (uint64, int, error) {
	v, n := binary.Uvarint(data)
	if n <= 0 {
		return 0, 0, apierr.New(apierr.InvalidEncryptionFormat, "truncated varint")
	}
	return v, n, nil
}

// takeFixed slices off the next n bytes of data, failing if too short.
func takeFixed(data []byte, n int) (field, rest []byte, err error) {
	if len(data) < n {
		return nil, nil, apierr.New(apierr.InvalidEncryptionFormat, "truncated fixed-size field")
	}
	return data[:n], data[n:], nil
}
