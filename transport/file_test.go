package transport_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/transport"
)

func fill(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func sampleBlock(tag byte) *block.Block {
	var trustchainID, author [block.IDSize]byte
	copy(trustchainID[:], fill(tag, block.IDSize))
	copy(author[:], fill(tag+1, block.IDSize))

	blk := &block.Block{
		Index:        uint64(tag),
		TrustchainID: trustchainID,
		Nature:       block.NatureKeyPublishToUser,
		Payload:      fill(tag+2, 112),
		Author:       author,
	}
	copy(blk.Signature[:], fill(tag+3, block.SignatureSize))
	return blk
}

func TestFilePushAndFetchRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.ndjson")
	tr, err := transport.NewFile(path)
	require.NoError(t, err)

	a := sampleBlock(1)
	b := sampleBlock(10)
	require.NoError(t, tr.PushBlocks(context.Background(), []*block.Block{a, b}))

	got, err := tr.GetUserHistoryByDeviceIDs(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, a.TrustchainID, got[0].TrustchainID)
	require.Equal(t, b.TrustchainID, got[1].TrustchainID)
}

func TestFileIgnoresFilterArguments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.ndjson")
	tr, err := transport.NewFile(path)
	require.NoError(t, err)

	require.NoError(t, tr.PushBlocks(context.Background(), []*block.Block{sampleBlock(1)}))

	unrelated := [][block.IDSize]byte{{0xFF}}
	got, err := tr.GetUserHistoryByUserIDs(context.Background(), unrelated)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = tr.GetGroupsBlocksByIDs(context.Background(), unrelated)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestFileObservesPushesFromAnotherHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.ndjson")
	writer, err := transport.NewFile(path)
	require.NoError(t, err)
	reader, err := transport.NewFile(path)
	require.NoError(t, err)

	got, err := reader.GetUserHistoryByDeviceIDs(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, writer.PushBlocks(context.Background(), []*block.Block{sampleBlock(1)}))

	got, err = reader.GetUserHistoryByDeviceIDs(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestFileProvisionalIdentityRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.ndjson")
	tr, err := transport.NewFile(path)
	require.NoError(t, err)

	var keys transport.ProvisionalIdentityKeys
	copy(keys.AppPublicKey[:], fill(0x11, block.EncryptionKeySize))
	copy(keys.ServerPublicKey[:], fill(0x22, block.EncryptionKeySize))

	require.NoError(t, tr.SetProvisionalIdentity("alice@example.com", keys))

	got, err := tr.GetProvisionalIdentityPublicKeys(context.Background(), []string{"alice@example.com", "bob@example.com"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, keys, got[0])
}

func TestFileRejectsCorruptLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.ndjson")
	tr, err := transport.NewFile(path)
	require.NoError(t, err)
	require.NoError(t, tr.PushBlocks(context.Background(), []*block.Block{sampleBlock(1)}))

	// Append a line that isn't valid JSON; a later File handle reading
	// this log should surface the corruption rather than silently
	// dropping the line.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	other, err := transport.NewFile(path)
	require.NoError(t, err)
	_, err = other.GetUserHistoryByDeviceIDs(context.Background(), nil)
	require.Error(t, err)
}
