package safe_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/ekv"

	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/localstore/versioned"
	"github.com/trustmesh/trustmesh-core/primitives"
	"github.com/trustmesh/trustmesh-core/safe"
)

func newSafe(t *testing.T) *safe.Safe {
	t.Helper()
	kv := versioned.NewKV(ekv.MakeMemstore())
	passphraseKey, err := primitives.GenerateSymmetricKey()
	require.NoError(t, err)
	s, err := safe.Open(kv, passphraseKey)
	require.NoError(t, err)
	return s
}

func TestInitDeviceIsIdempotent(t *testing.T) {
	s := newSafe(t)
	first, err := s.InitDevice()
	require.NoError(t, err)
	second, err := s.InitDevice()
	require.NoError(t, err)
	require.Equal(t, first.Signature.PublicKey, second.Signature.PublicKey)
}

func TestSafeSurvivesReopen(t *testing.T) {
	kv := versioned.NewKV(ekv.MakeMemstore())
	passphraseKey, err := primitives.GenerateSymmetricKey()
	require.NoError(t, err)

	s1, err := safe.Open(kv, passphraseKey)
	require.NoError(t, err)
	dev, err := s1.InitDevice()
	require.NoError(t, err)

	s2, err := safe.Open(kv, passphraseKey)
	require.NoError(t, err)
	require.Equal(t, dev.Signature.PublicKey, s2.Device().Signature.PublicKey)
}

func TestOpenWithWrongPassphraseFails(t *testing.T) {
	kv := versioned.NewKV(ekv.MakeMemstore())
	key1, err := primitives.GenerateSymmetricKey()
	require.NoError(t, err)
	key2, err := primitives.GenerateSymmetricKey()
	require.NoError(t, err)

	s1, err := safe.Open(kv, key1)
	require.NoError(t, err)
	_, err = s1.InitDevice()
	require.NoError(t, err)

	_, err = safe.Open(kv, key2)
	require.Error(t, err)
}

func TestUnsealMemberSlotRoundTrip(t *testing.T) {
	s := newSafe(t)
	userKP, err := primitives.GenerateEncryptionKeyPair()
	require.NoError(t, err)
	require.NoError(t, s.AddUserKeyPair(userKP, 0))

	groupPrivEncKey, err := primitives.GenerateEncryptionKeyPair()
	require.NoError(t, err)

	sealed, err := primitives.SealAnonymous(&userKP.PublicKey, groupPrivEncKey.PrivateKey[:])
	require.NoError(t, err)

	var slot block.GroupMemberSlot
	slot.UserPublicEncKey = userKP.PublicKey
	copy(slot.EncGroupPrivEncKey[:], sealed)

	recovered, ok := s.UnsealMemberSlot(slot)
	require.True(t, ok)
	require.Equal(t, groupPrivEncKey.PrivateKey[:], recovered[:])
}

func TestUnsealPendingSlotRoundTrip(t *testing.T) {
	s := newSafe(t)
	appKP, err := primitives.GenerateEncryptionKeyPair()
	require.NoError(t, err)
	serverKP, err := primitives.GenerateEncryptionKeyPair()
	require.NoError(t, err)
	require.NoError(t, s.AddProvisionalKeyPair(safe.ProvisionalKeyPair{AppKeyPair: appKP, ServerKeyPair: serverKP}))

	groupPrivEncKey, err := primitives.GenerateEncryptionKeyPair()
	require.NoError(t, err)

	inner, err := primitives.SealAnonymous(&appKP.PublicKey, groupPrivEncKey.PrivateKey[:])
	require.NoError(t, err)
	outer, err := primitives.SealAnonymous(&serverKP.PublicKey, inner)
	require.NoError(t, err)

	var slot block.PendingProvisionalSlot
	slot.AppPublicKey = appKP.PublicKey
	slot.ServerPublicKey = serverKP.PublicKey
	copy(slot.EncGroupPrivEncKey[:], outer)

	recovered, ok := s.UnsealPendingSlot(slot)
	require.True(t, ok)
	require.Equal(t, groupPrivEncKey.PrivateKey[:], recovered[:])
}
