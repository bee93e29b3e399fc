// Package resourcekey implements the resource-key manager: maps a
// resourceId to its symmetric key, walking the local cache and then each
// key-publish nature in turn against locally held keys, with at-most-one
// in-flight resolution per resourceId.
package resourcekey

import (
	"encoding/hex"
	"sync"

	"github.com/trustmesh/trustmesh-core/apierr"
	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/group"
	"github.com/trustmesh/trustmesh-core/localstore"
	"github.com/trustmesh/trustmesh-core/localstore/versioned"
	"github.com/trustmesh/trustmesh-core/primitives"
	"github.com/trustmesh/trustmesh-core/safe"
)

// cacheRow is one cached resourceId -> symmetric key entry.
type cacheRow struct {
	ResourceID [block.ResourceIDSize]byte
	Key        []byte
}

func (r cacheRow) RowKey() string { return hex.EncodeToString(r.ResourceID[:]) }

// KeyPublish is the union of every key-publish payload nature the manager
// knows how to try against local keys, tagged so callers can hand the
// manager whatever publishes they've observed for a resourceId without the
// manager needing to know where they came from.
type KeyPublish struct {
	ToDevice      *block.KeyPublishToDevicePayload
	ToUser        *block.KeyPublishToUserOrGroupPayload
	ToGroup       *block.KeyPublishToUserOrGroupPayload
	ToProvisional *block.KeyPublishToProvisionalUserPayload
}

// inflight tracks a single shared resolution in progress for one
// resourceId, so concurrent callers don't duplicate the walk.
type inflight struct {
	done chan struct{}
	key  []byte
	err  error
}

// Manager resolves and caches resource keys.
type Manager struct {
	cache  *localstore.Table[cacheRow]
	groups *group.Store
	safe   *safe.Safe

	mu       sync.Mutex
	inFlight map[string]*inflight
}

// NewManager opens the resource-key cache table within kv and binds the
// manager to the group store and local key safe it resolves against.
func NewManager(kv *versioned.KV, groups *group.Store, s *safe.Safe) *Manager {
	return &Manager{
		cache:    localstore.NewTable[cacheRow](kv, "resource_keys"),
		groups:   groups,
		safe:     s,
		inFlight: make(map[string]*inflight),
	}
}

func cacheKey(id [block.ResourceIDSize]byte) string { return hex.EncodeToString(id[:]) }

// Lookup returns the cached key for resourceID, if any, without consulting
// any key-publish.
func (m *Manager) Lookup(resourceID [block.ResourceIDSize]byte) ([]byte, bool) {
	row, err := m.cache.Get(cacheKey(resourceID))
	if err != nil {
		return nil, false
	}
	return row.Key, true
}

// Put writes a resource key straight into the cache, used when this
// device originates the key (encrypt path) rather than resolving it from
// a key-publish.
func (m *Manager) Put(resourceID [block.ResourceIDSize]byte, key []byte) error {
	return m.cache.Put(cacheRow{ResourceID: resourceID, Key: key})
}

// Resolve implements the lookup order: cache, then each supplied
// key-publish in the nature order device -> user -> group -> provisional.
// Concurrent callers resolving the same resourceID share one attempt.
func (m *Manager) Resolve(resourceID [block.ResourceIDSize]byte, publishes []KeyPublish) ([]byte, error) {
	if key, ok := m.Lookup(resourceID); ok {
		return key, nil
	}

	k := cacheKey(resourceID)
	m.mu.Lock()
	if f, ok := m.inFlight[k]; ok {
		m.mu.Unlock()
		<-f.done
		return f.key, f.err
	}
	f := &inflight{done: make(chan struct{})}
	m.inFlight[k] = f
	m.mu.Unlock()

	f.key, f.err = m.resolve(resourceID, publishes)

	m.mu.Lock()
	delete(m.inFlight, k)
	m.mu.Unlock()
	close(f.done)

	return f.key, f.err
}

func (m *Manager) resolve(resourceID [block.ResourceIDSize]byte, publishes []KeyPublish) ([]byte, error) {
	for _, p := range publishes {
		if p.ToDevice != nil {
			if key, err := m.safe.OpenWithDeviceKey(p.ToDevice.EncKey); err == nil {
				return m.cacheAndReturn(resourceID, key)
			}
		}
	}
	for _, p := range publishes {
		if p.ToUser != nil {
			if key, ok := m.safe.OpenWithUserKey(p.ToUser.EncKey[:]); ok {
				return m.cacheAndReturn(resourceID, key)
			}
		}
	}
	for _, p := range publishes {
		if p.ToGroup != nil {
			if key, ok := m.resolveGroup(p.ToGroup); ok {
				return m.cacheAndReturn(resourceID, key)
			}
		}
	}
	for _, p := range publishes {
		if p.ToProvisional != nil {
			if key, ok := m.safe.OpenDoubleSealed(p.ToProvisional.AppPublicKey, p.ToProvisional.ServerPublicKey, p.ToProvisional.EncKey[:]); ok {
				return m.cacheAndReturn(resourceID, key)
			}
		}
	}
	return nil, apierr.New(apierr.ResourceNotFound, "no local key resolves this resource")
}

func (m *Manager) resolveGroup(p *block.KeyPublishToUserOrGroupPayload) ([]byte, bool) {
	g, err := m.groups.FindByPublicEncryptionKey(p.Recipient)
	if err != nil || !g.Internal {
		return nil, false
	}
	pair := primitives.EncryptionKeyPair{PublicKey: g.PublicEncryptionKey, PrivateKey: g.PrivateEncryptionKey}
	plain, err := primitives.OpenAnonymous(pair, p.EncKey[:])
	if err != nil {
		return nil, false
	}
	return plain, true
}

func (m *Manager) cacheAndReturn(resourceID [block.ResourceIDSize]byte, key []byte) ([]byte, error) {
	if err := m.Put(resourceID, key); err != nil {
		return nil, err
	}
	return key, nil
}
