package group

import (
	"encoding/hex"
	"sync"

	"github.com/pkg/errors"
	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/localstore"
	"github.com/trustmesh/trustmesh-core/localstore/versioned"
)

var errGroupNotFound = errors.New("group: no group with that public encryption key")

// groupRow is the persisted form of a Group.
type groupRow struct {
	GroupID                      [block.IDSize]byte
	PublicEncryptionKey          [block.EncryptionKeySize]byte
	EncryptedPrivateSignatureKey [block.SealedGroupPrivSigSize]byte
	Members                      []block.GroupMemberSlot
	PendingProvisional           []block.PendingProvisionalSlot
	LastGroupBlock               [block.IDSize]byte
	Index                        uint64
	Internal                     bool
	PrivateSignatureKey          [64]byte
	PrivateEncryptionKey         [32]byte
}

func (r groupRow) RowKey() string { return hex.EncodeToString(r.GroupID[:]) }

func groupKey(id [block.IDSize]byte) string { return hex.EncodeToString(id[:]) }

// Store is the groups table, keyed by groupId.
type Store struct {
	mu     sync.Mutex
	groups *localstore.Table[groupRow]
}

// NewStore opens the groups table within kv.
func NewStore(kv *versioned.KV) *Store {
	return &Store{groups: localstore.NewTable[groupRow](kv, "groups")}
}

// Get fetches one group by id.
func (s *Store) Get(groupID [block.IDSize]byte) (*Group, error) {
	row, err := s.groups.Get(groupKey(groupID))
	if err != nil {
		return nil, err
	}
	return rowToGroup(row), nil
}

// Put upserts a full group record.
func (s *Store) Put(g *Group) error {
	return s.groups.Put(groupToRow(g))
}

// FindByPublicEncryptionKey resolves a group by its public encryption key,
// used by the resource-key manager to map a key-publish-to-user-group
// recipient field (a public encryption key, not a group id) back to a
// group record.
func (s *Store) FindByPublicEncryptionKey(key [block.EncryptionKeySize]byte) (*Group, error) {
	rows, err := s.groups.Find(func(r groupRow) bool {
		return r.PublicEncryptionKey == key
	}, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errGroupNotFound
	}
	return rowToGroup(rows[0]), nil
}

// applyMutation runs fn against the group's current state under an
// exclusive lock, creating a zero-value Group with the given id if none
// exists yet, and persists the result (mirrors identity.Store's per-row
// locking pattern).
func (s *Store) applyMutation(groupID [block.IDSize]byte, fn func(*Group) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.Get(groupID)
	if err != nil {
		g = &Group{GroupID: groupID}
	}
	if err := fn(g); err != nil {
		return err
	}
	return s.Put(g)
}

func groupToRow(g *Group) groupRow {
	return groupRow{
		GroupID:                      g.GroupID,
		PublicEncryptionKey:          g.PublicEncryptionKey,
		EncryptedPrivateSignatureKey: g.EncryptedPrivateSignatureKey,
		Members:                      g.Members,
		PendingProvisional:           g.PendingProvisional,
		LastGroupBlock:               g.LastGroupBlock,
		Index:                        g.Index,
		Internal:                     g.Internal,
		PrivateSignatureKey:          g.PrivateSignatureKey,
		PrivateEncryptionKey:         g.PrivateEncryptionKey,
	}
}

func rowToGroup(row groupRow) *Group {
	return &Group{
		GroupID:                      row.GroupID,
		PublicEncryptionKey:          row.PublicEncryptionKey,
		EncryptedPrivateSignatureKey: row.EncryptedPrivateSignatureKey,
		Members:                      row.Members,
		PendingProvisional:           row.PendingProvisional,
		LastGroupBlock:               row.LastGroupBlock,
		Index:                        row.Index,
		Internal:                     row.Internal,
		PrivateSignatureKey:          row.PrivateSignatureKey,
		PrivateEncryptionKey:         row.PrivateEncryptionKey,
	}
}
