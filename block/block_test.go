package block

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func fill(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestEnvelopeRoundTrip(t *testing.T) {
	var trustchainID, author [IDSize]byte
	copy(trustchainID[:], fill(0xAA, IDSize))
	copy(author[:], fill(0xBB, IDSize))

	orig := &Block{
		Index:        42,
		TrustchainID: trustchainID,
		Nature:       NatureKeyPublishToUser,
		Payload:      fill(0xCC, 112),
		Author:       author,
	}
	copy(orig.Signature[:], fill(0xDD, SignatureSize))

	raw, err := orig.Serialize()
	require.NoError(t, err)

	parsed, err := Parse(raw)
	require.NoError(t, err)

	require.Empty(t, cmp.Diff(orig, parsed))
}

func TestParseRejectsUnknownVersion(t *testing.T) {
	_, err := Parse([]byte{0x02})
	require.Error(t, err)
}

func TestParseRejectsTruncatedInput(t *testing.T) {
	_, err := Parse([]byte{Version, 0x01})
	require.Error(t, err)
}

func TestPayloadRoundTripEachNature(t *testing.T) {
	cases := []Payload{
		&TrustchainCreationPayload{PublicSignatureKey: [IDSize]byte(fillArr32(0x01))},
		&DeviceCreationPayload{
			Version:             NatureDeviceCreationV1,
			EphemeralPub:        fillArr32(0x02),
			UserID:              [IDSize]byte(fillArr32(0x03)),
			DelegationSig:       fillArr64(0x04),
			PublicSignatureKey:  [IDSize]byte(fillArr32(0x05)),
			PublicEncryptionKey: fillArr32(0x06),
		},
		&DeviceCreationPayload{
			Version:                    NatureDeviceCreationV3,
			EphemeralPub:               fillArr32(0x07),
			UserID:                     [IDSize]byte(fillArr32(0x08)),
			DelegationSig:              fillArr64(0x09),
			PublicSignatureKey:         [IDSize]byte(fillArr32(0x0A)),
			PublicEncryptionKey:        fillArr32(0x0B),
			UserPublicEncryptionKey:    fillArr32(0x0C),
			EncryptedUserPrivateEncKey: fillArr80(0x0D),
			Flags:                      0x3,
		},
		&DeviceRevocationPayload{Version: NatureDeviceRevocationV1, DeviceID: [IDSize]byte(fillArr32(0x0E))},
		&DeviceRevocationPayload{
			Version:               NatureDeviceRevocationV2,
			DeviceID:              [IDSize]byte(fillArr32(0x0F)),
			UserPublicEncKey:      fillArr32(0x10),
			PrevUserPublicEncKey:  fillArr32(0x11),
			EncPrevUserPrivEncKey: fillArr80(0x12),
			PrivateKeys: []RevocationRecipient{
				{Recipient: fillArr32(0x13), EncKey: fillArr80(0x14)},
			},
		},
		&KeyPublishToDevicePayload{
			Recipient:  fillArr32(0x15),
			ResourceID: fillArr16(0x16),
			EncKey:     fill(0x17, 90),
		},
		&KeyPublishToUserOrGroupPayload{
			ToGroup:    false,
			Recipient:  fillArr32(0x18),
			ResourceID: fillArr16(0x19),
			EncKey:     fillArr80(0x1A),
		},
		&UserGroupCreationPayload{
			PublicSignatureKey:  [IDSize]byte(fillArr32(0x1B)),
			PublicEncryptionKey: fillArr32(0x1C),
			EncGroupPrivSigKey:  fillArr96(0x1D),
			Members: []GroupMemberSlot{
				{UserPublicEncKey: fillArr32(0x1E), EncGroupPrivEncKey: fillArr80(0x1F)},
			},
			SelfSignature: fillArr64(0x20),
		},
		&UserGroupAdditionPayload{
			GroupID:            [IDSize]byte(fillArr32(0x21)),
			PreviousGroupBlock: [IDSize]byte(fillArr32(0x22)),
			Members: []GroupMemberSlot{
				{UserPublicEncKey: fillArr32(0x23), EncGroupPrivEncKey: fillArr80(0x24)},
			},
			SelfSignature: fillArr64(0x25),
		},
	}

	for _, original := range cases {
		raw := original.Marshal()
		parsed, err := ParsePayload(original.Nature(), raw)
		require.NoError(t, err, original.Nature())
		require.Empty(t, cmp.Diff(original, parsed))
	}
}

func fillArr32(b byte) [32]byte {
	var a [32]byte
	copy(a[:], fill(b, 32))
	return a
}

func fillArr64(b byte) [64]byte {
	var a [64]byte
	copy(a[:], fill(b, 64))
	return a
}

func fillArr80(b byte) [80]byte {
	var a [80]byte
	copy(a[:], fill(b, 80))
	return a
}

func fillArr96(b byte) [96]byte {
	var a [96]byte
	copy(a[:], fill(b, 96))
	return a
}

func fillArr16(b byte) [16]byte {
	var a [16]byte
	copy(a[:], fill(b, 16))
	return a
}
