package keypublish_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/ekv"

	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/group"
	"github.com/trustmesh/trustmesh-core/identity"
	"github.com/trustmesh/trustmesh-core/keypublish"
	"github.com/trustmesh/trustmesh-core/localstore/versioned"
	"github.com/trustmesh/trustmesh-core/primitives"
)

func TestPlanProducesOneKeyPublishPerUser(t *testing.T) {
	kv := versioned.NewKV(ekv.MakeMemstore())
	idents := identity.NewStore(kv.Prefix("identity"))
	groups := group.NewStore(kv.Prefix("groups"))
	planner := keypublish.NewPlanner(idents, groups)

	userKP, err := primitives.GenerateEncryptionKeyPair()
	require.NoError(t, err)

	var userID [block.IDSize]byte
	userID[0] = 0x09
	require.NoError(t, idents.PutUser(&identity.User{
		UserID: userID,
		UserPublicKeys: []identity.UserPublicKeyEntry{
			{PublicKey: userKP.PublicKey, Index: 0},
		},
	}))

	resourceKey, err := primitives.GenerateSymmetricKey()
	require.NoError(t, err)
	var resourceID [block.ResourceIDSize]byte
	resourceID[0] = 0x01
	var localDeviceID, trustchainID [block.IDSize]byte
	localDeviceID[0] = 0xAA

	blocks, err := planner.Plan(resourceKey, resourceID, localDeviceID, trustchainID, keypublish.Recipients{
		Users: [][block.IDSize]byte{userID},
	})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.Equal(t, localDeviceID, blocks[0].Author)
	require.Equal(t, block.NatureKeyPublishToUser, blocks[0].Nature)

	payload, err := block.ParsePayload(blocks[0].Nature, blocks[0].Payload)
	require.NoError(t, err)
	kp := payload.(*block.KeyPublishToUserOrGroupPayload)
	require.Equal(t, userKP.PublicKey, kp.Recipient)

	plain, err := primitives.OpenAnonymous(userKP, kp.EncKey[:])
	require.NoError(t, err)
	require.Equal(t, resourceKey, plain)
}

func TestPlanFailsForUnknownRecipient(t *testing.T) {
	kv := versioned.NewKV(ekv.MakeMemstore())
	idents := identity.NewStore(kv.Prefix("identity"))
	groups := group.NewStore(kv.Prefix("groups"))
	planner := keypublish.NewPlanner(idents, groups)

	resourceKey, err := primitives.GenerateSymmetricKey()
	require.NoError(t, err)
	var resourceID [block.ResourceIDSize]byte
	var localDeviceID, trustchainID, unknownUser [block.IDSize]byte
	unknownUser[0] = 0xFF

	_, err = planner.Plan(resourceKey, resourceID, localDeviceID, trustchainID, keypublish.Recipients{
		Users: [][block.IDSize]byte{unknownUser},
	})
	require.Error(t, err)
}
