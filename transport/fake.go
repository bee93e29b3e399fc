package transport

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/trustmesh/trustmesh-core/block"
)

// Fake is an in-memory Transport used by this module's own tests. It keeps
// every pushed block in push order (plus a by-author index that no lookup
// reads), and every lookup RPC returns all pushed blocks regardless of its
// id or key arguments.
type Fake struct {
	mu              sync.Mutex
	all             []*block.Block
	byDeviceAuthor  map[string][]*block.Block
	provisionalKeys map[string]ProvisionalIdentityKeys
}

// NewFake returns an empty Fake transport.
func NewFake() *Fake {
	return &Fake{
		byDeviceAuthor:  map[string][]*block.Block{},
		provisionalKeys: map[string]ProvisionalIdentityKeys{},
	}
}

func idKey(id [block.IDSize]byte) string { return hex.EncodeToString(id[:]) }

// PushBlocks implements Transport.
func (f *Fake) PushBlocks(_ context.Context, blocks []*block.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, blk := range blocks {
		f.all = append(f.all, blk)
		key := idKey(blk.Author)
		f.byDeviceAuthor[key] = append(f.byDeviceAuthor[key], blk)
	}
	return nil
}

// GetUserHistoryByUserIDs implements Transport by returning every block in
// the fake store; a real transport would filter server-side, but the fake
// lets the verifier's own rules do the filtering in tests.
func (f *Fake) GetUserHistoryByUserIDs(_ context.Context, _ [][block.IDSize]byte) ([]*block.Block, error) {
	return f.allBlocks(), nil
}

// GetUserHistoryByDeviceIDs implements Transport.
func (f *Fake) GetUserHistoryByDeviceIDs(_ context.Context, _ [][block.IDSize]byte) ([]*block.Block, error) {
	return f.allBlocks(), nil
}

// GetGroupsBlocksByIDs implements Transport.
func (f *Fake) GetGroupsBlocksByIDs(_ context.Context, _ [][block.IDSize]byte) ([]*block.Block, error) {
	return f.allBlocks(), nil
}

// GetGroupsBlockByPublicEncryptionKey implements Transport.
func (f *Fake) GetGroupsBlockByPublicEncryptionKey(_ context.Context, _ [block.EncryptionKeySize]byte) ([]*block.Block, error) {
	return f.allBlocks(), nil
}

// GetProvisionalIdentityPublicKeys implements Transport, looking targets up
// in a table tests populate via SetProvisionalIdentity.
func (f *Fake) GetProvisionalIdentityPublicKeys(_ context.Context, targets []string) ([]ProvisionalIdentityKeys, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ProvisionalIdentityKeys, 0, len(targets))
	for _, t := range targets {
		if keys, ok := f.provisionalKeys[t]; ok {
			out = append(out, keys)
		}
	}
	return out, nil
}

// SetProvisionalIdentity registers the server-issued public keys for a
// provisional identity target (e.g. an email), for tests to pre-seed.
func (f *Fake) SetProvisionalIdentity(target string, keys ProvisionalIdentityKeys) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provisionalKeys[target] = keys
}

func (f *Fake) allBlocks() []*block.Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*block.Block, len(f.all))
	copy(out, f.all)
	return out
}
