package group_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/ekv"

	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/group"
	"github.com/trustmesh/trustmesh-core/identity"
	"github.com/trustmesh/trustmesh-core/localstore/versioned"
	"github.com/trustmesh/trustmesh-core/primitives"
	"github.com/trustmesh/trustmesh-core/trustchain"
)

// harness bootstraps a trustchain with a single first device, for tests
// that need a real, verifier-accepted author.
type harness struct {
	chain    *trustchain.State
	idents   *identity.Store
	idv      *identity.Verifier
	rootKeys primitives.SignatureKeyPair
	deviceID [block.IDSize]byte
	devKeys  primitives.SignatureKeyPair
	userID   [block.IDSize]byte
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	kv := versioned.NewKV(ekv.MakeMemstore())

	chain, err := trustchain.Open(kv.Prefix("trustchain"))
	require.NoError(t, err)

	rootKeys, err := primitives.GenerateSignatureKeyPair()
	require.NoError(t, err)

	creationPayload := &block.TrustchainCreationPayload{}
	copy(creationPayload.PublicSignatureKey[:], rootKeys.PublicKey)
	unsigned := block.NewBlock(0, [block.IDSize]byte{}, [block.IDSize]byte{}, creationPayload)
	var trustchainID [block.IDSize]byte
	copy(trustchainID[:], unsigned.Hash())
	unsigned.TrustchainID = trustchainID
	require.NoError(t, chain.ApplyCreation(unsigned, creationPayload))

	idents := identity.NewStore(kv.Prefix("identity"))
	idv := identity.NewVerifier(chain, idents)

	devKeys, err := primitives.GenerateSignatureKeyPair()
	require.NoError(t, err)
	deviceEnc, err := primitives.GenerateEncryptionKeyPair()
	require.NoError(t, err)
	ephemeral, err := primitives.GenerateSignatureKeyPair()
	require.NoError(t, err)

	var userID [block.IDSize]byte
	copy(userID[:], []byte("user-one-aaaaaaaaaaaaaaaaaaaaaaa"))

	delegationMsg := append(append([]byte(nil), ephemeral.PublicKey[:]...), userID[:]...)
	payload := &block.DeviceCreationPayload{
		Version: block.NatureDeviceCreationV1,
		UserID:  userID,
	}
	copy(payload.EphemeralPub[:], ephemeral.PublicKey)
	copy(payload.DelegationSig[:], primitives.Sign(rootKeys.PrivateKey, delegationMsg))
	copy(payload.PublicSignatureKey[:], devKeys.PublicKey)
	payload.PublicEncryptionKey = deviceEnc.PublicKey

	blk := block.NewBlock(1, trustchainID, chain.ID(), payload)
	copy(blk.Signature[:], primitives.Sign(ephemeral.PrivateKey, blk.Hash()))

	require.NoError(t, idv.VerifyDeviceCreation(blk, payload))
	require.NoError(t, idv.ApplyDeviceCreation(blk, payload))

	var deviceID [block.IDSize]byte
	copy(deviceID[:], blk.Hash())

	return &harness{
		chain: chain, idents: idents, idv: idv,
		rootKeys: rootKeys, deviceID: deviceID, devKeys: devKeys, userID: userID,
	}
}

func TestGroupCreationAndAdditionRoundTrip(t *testing.T) {
	h := newHarness(t)
	kv := versioned.NewKV(ekv.MakeMemstore())
	groups := group.NewStore(kv.Prefix("groups"))
	gv := group.NewVerifier(h.idents, groups, nil)

	groupSig, err := primitives.GenerateSignatureKeyPair()
	require.NoError(t, err)
	groupEnc, err := primitives.GenerateEncryptionKeyPair()
	require.NoError(t, err)

	creation := &block.UserGroupCreationPayload{
		PublicEncryptionKey: groupEnc.PublicKey,
	}
	copy(creation.PublicSignatureKey[:], groupSig.PublicKey)
	copy(creation.SelfSignature[:], primitives.Sign(groupSig.PrivateKey, creation.SignedPortion()))

	blk := block.NewBlock(2, h.chain.ID(), h.deviceID, creation)
	copy(blk.Signature[:], primitives.Sign(h.devKeys.PrivateKey, blk.Hash()))

	require.NoError(t, gv.VerifyCreation(blk, creation))
	require.NoError(t, gv.ApplyCreation(blk, creation))

	var groupID [block.IDSize]byte
	copy(groupID[:], groupSig.PublicKey)
	stored, err := groups.Get(groupID)
	require.NoError(t, err)
	require.Equal(t, groupEnc.PublicKey, stored.PublicEncryptionKey)
	require.False(t, stored.Internal)

	addition := &block.UserGroupAdditionPayload{
		GroupID:            groupID,
		PreviousGroupBlock: stored.LastGroupBlock,
	}
	copy(addition.SelfSignature[:], primitives.Sign(groupSig.PrivateKey, addition.SignedPortion()))

	addBlk := block.NewBlock(3, h.chain.ID(), h.deviceID, addition)
	copy(addBlk.Signature[:], primitives.Sign(h.devKeys.PrivateKey, addBlk.Hash()))

	require.NoError(t, gv.VerifyAddition(addBlk, addition))
	require.NoError(t, gv.ApplyAddition(addBlk, addition))

	updated, err := groups.Get(groupID)
	require.NoError(t, err)
	var wantHash [block.IDSize]byte
	copy(wantHash[:], addBlk.Hash())
	require.Equal(t, wantHash, updated.LastGroupBlock)
}

func TestVerifyCreationRejectsTamperedSelfSignature(t *testing.T) {
	h := newHarness(t)
	kv := versioned.NewKV(ekv.MakeMemstore())
	groups := group.NewStore(kv.Prefix("groups"))
	gv := group.NewVerifier(h.idents, groups, nil)

	groupSig, err := primitives.GenerateSignatureKeyPair()
	require.NoError(t, err)
	groupEnc, err := primitives.GenerateEncryptionKeyPair()
	require.NoError(t, err)

	creation := &block.UserGroupCreationPayload{PublicEncryptionKey: groupEnc.PublicKey}
	copy(creation.PublicSignatureKey[:], groupSig.PublicKey)
	copy(creation.SelfSignature[:], primitives.Sign(groupSig.PrivateKey, creation.SignedPortion()))
	creation.SelfSignature[0] ^= 0x01 // flip one bit

	blk := block.NewBlock(2, h.chain.ID(), h.deviceID, creation)
	copy(blk.Signature[:], primitives.Sign(h.devKeys.PrivateKey, blk.Hash()))

	err = gv.VerifyCreation(blk, creation)
	require.Error(t, err)

	var groupID [block.IDSize]byte
	copy(groupID[:], groupSig.PublicKey)
	_, err = groups.Get(groupID)
	require.Error(t, err) // store must remain untouched
}
