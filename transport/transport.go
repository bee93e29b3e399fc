// Package transport defines the abstract block-push/block-fetch RPC
// surface the core requires from the network layer, and a fake
// in-memory implementation exercised by this module's own tests — the
// real RPC client is an external collaborator.
package transport

import (
	"context"

	"github.com/trustmesh/trustmesh-core/block"
)

// ProvisionalIdentityKeys is the server-issued public half of one
// provisional identity (app-side and server-side public keys).
type ProvisionalIdentityKeys struct {
	AppPublicKey    [block.EncryptionKeySize]byte
	ServerPublicKey [block.EncryptionKeySize]byte
}

// Transport is every RPC the core needs from the network layer.
type Transport interface {
	PushBlocks(ctx context.Context, blocks []*block.Block) error
	GetUserHistoryByUserIDs(ctx context.Context, ids [][block.IDSize]byte) ([]*block.Block, error)
	GetUserHistoryByDeviceIDs(ctx context.Context, ids [][block.IDSize]byte) ([]*block.Block, error)
	GetGroupsBlocksByIDs(ctx context.Context, ids [][block.IDSize]byte) ([]*block.Block, error)
	GetGroupsBlockByPublicEncryptionKey(ctx context.Context, key [block.EncryptionKeySize]byte) ([]*block.Block, error)
	GetProvisionalIdentityPublicKeys(ctx context.Context, targets []string) ([]ProvisionalIdentityKeys, error)
}
