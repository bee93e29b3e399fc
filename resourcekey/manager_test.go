package resourcekey_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/ekv"

	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/group"
	"github.com/trustmesh/trustmesh-core/localstore/versioned"
	"github.com/trustmesh/trustmesh-core/primitives"
	"github.com/trustmesh/trustmesh-core/resourcekey"
	"github.com/trustmesh/trustmesh-core/safe"
)

func newManager(t *testing.T) (*resourcekey.Manager, *safe.Safe, *group.Store) {
	t.Helper()
	kv := versioned.NewKV(ekv.MakeMemstore())
	passphraseKey, err := primitives.GenerateSymmetricKey()
	require.NoError(t, err)
	s, err := safe.Open(kv.Prefix("safe"), passphraseKey)
	require.NoError(t, err)
	groups := group.NewStore(kv.Prefix("groups"))
	return resourcekey.NewManager(kv.Prefix("resourcekeys"), groups, s), s, groups
}

func TestResolveViaCache(t *testing.T) {
	m, _, _ := newManager(t)
	var resourceID [block.ResourceIDSize]byte
	resourceID[0] = 0x01
	require.NoError(t, m.Put(resourceID, []byte("the-resource-key")))

	key, err := m.Resolve(resourceID, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("the-resource-key"), key)
}

func TestResolveViaDeviceKeyPublish(t *testing.T) {
	m, s, _ := newManager(t)
	dev, err := s.InitDevice()
	require.NoError(t, err)

	resourceKey, err := primitives.GenerateSymmetricKey()
	require.NoError(t, err)
	var resourceID [block.ResourceIDSize]byte
	resourceID[0] = 0x02

	sealed, err := primitives.SealAnonymous(&dev.Encryption.PublicKey, resourceKey)
	require.NoError(t, err)

	publishes := []resourcekey.KeyPublish{{
		ToDevice: &block.KeyPublishToDevicePayload{ResourceID: resourceID, EncKey: sealed},
	}}

	key, err := m.Resolve(resourceID, publishes)
	require.NoError(t, err)
	require.Equal(t, resourceKey, key)

	cached, ok := m.Lookup(resourceID)
	require.True(t, ok)
	require.Equal(t, resourceKey, cached)
}

func TestResolveViaUserKeyPublish(t *testing.T) {
	m, s, _ := newManager(t)
	userKP, err := primitives.GenerateEncryptionKeyPair()
	require.NoError(t, err)
	require.NoError(t, s.AddUserKeyPair(userKP, 0))

	resourceKey, err := primitives.GenerateSymmetricKey()
	require.NoError(t, err)
	var resourceID [block.ResourceIDSize]byte
	resourceID[0] = 0x03

	sealed, err := primitives.SealAnonymous(&userKP.PublicKey, resourceKey)
	require.NoError(t, err)
	payload := &block.KeyPublishToUserOrGroupPayload{Recipient: userKP.PublicKey, ResourceID: resourceID}
	copy(payload.EncKey[:], sealed)

	key, err := m.Resolve(resourceID, []resourcekey.KeyPublish{{ToUser: payload}})
	require.NoError(t, err)
	require.Equal(t, resourceKey, key)
}

func TestResolveFailsWithNoMatchingKey(t *testing.T) {
	m, _, _ := newManager(t)
	var resourceID [block.ResourceIDSize]byte
	resourceID[0] = 0x04

	_, err := m.Resolve(resourceID, nil)
	require.Error(t, err)
}
