package block

import (
	"github.com/trustmesh/trustmesh-core/apierr"
)

// Payload is implemented by every nature-specific parsed block body.
type Payload interface {
	Nature() Nature
	Marshal() []byte
}

// ResourceIDSize is the size of a ResourceId: the AEAD MAC tail of a
// marker block.
const ResourceIDSize = 16

// SealedKeySize is the size of a single-layer sealed resource key: a
// 32-byte ephemeral public key plus the AEAD tag over a 32-byte key
// (primitives.SealedBoxOverhead + 32 == 80).
const SealedKeySize = 80

// SealedGroupPrivSigSize is the size of an encrypted group private
// signature key. The group private signature key is stored and sealed as
// its 32-byte Ed25519 seed rather than the 64-byte expanded keypair, so it
// fits the same 80-byte sealed-key shape (32-byte payload + 48-byte
// sealed-box overhead) as every other sealed key in this system.
const SealedGroupPrivSigSize = SealedKeySize

// --- TrustchainCreation ---------------------------------------------------

// TrustchainCreationPayload is the root block's payload.
type TrustchainCreationPayload struct {
	PublicSignatureKey [IDSize]byte
}

func (p *TrustchainCreationPayload) Nature() Nature { return NatureTrustchainCreation }

func (p *TrustchainCreationPayload) Marshal() []byte {
	return append([]byte(nil), p.PublicSignatureKey[:]...)
}

func parseTrustchainCreation(data []byte) (*TrustchainCreationPayload, error) {
	field, rest, err := takeFixed(data, IDSize)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, apierr.New(apierr.InvalidEncryptionFormat, "trailing bytes in trustchain creation payload")
	}
	var p TrustchainCreationPayload
	copy(p.PublicSignatureKey[:], field)
	return &p, nil
}

// --- DeviceCreation --------------------------------------------------------

// DeviceCreationPayload is the common shape of all device-creation
// versions; LastReset is only meaningful (and must be zero) for v2/v3,
// and the user-key fields only for v3.
type DeviceCreationPayload struct {
	Version                    Nature
	LastReset                  [IDSize]byte // v2/v3 only; zero otherwise
	EphemeralPub               [EncryptionKeySize]byte
	UserID                     [IDSize]byte
	DelegationSig              [SignatureSize]byte
	PublicSignatureKey         [IDSize]byte
	PublicEncryptionKey        [EncryptionKeySize]byte
	UserPublicEncryptionKey    [EncryptionKeySize]byte // v3 only
	EncryptedUserPrivateEncKey [SealedKeySize]byte     // v3 only
	Flags                      byte                    // v3 only: bit0=ghost, bit1=server
}

// EncryptionKeySize mirrors primitives.EncryptionPublicKeySize without
// importing the primitives package from the wire-format layer.
const EncryptionKeySize = 32

func (p *DeviceCreationPayload) Nature() Nature { return p.Version }

func (p *DeviceCreationPayload) IsGhostDevice() bool  { return p.Flags&0x1 != 0 }
func (p *DeviceCreationPayload) IsServerDevice() bool { return p.Flags&0x2 != 0 }

func (p *DeviceCreationPayload) Marshal() []byte {
	var out []byte
	if p.Version == NatureDeviceCreationV2 || p.Version == NatureDeviceCreationV3 {
		out = append(out, p.LastReset[:]...)
	}
	out = append(out, p.EphemeralPub[:]...)
	out = append(out, p.UserID[:]...)
	out = append(out, p.DelegationSig[:]...)
	out = append(out, p.PublicSignatureKey[:]...)
	out = append(out, p.PublicEncryptionKey[:]...)
	if p.Version == NatureDeviceCreationV3 {
		out = append(out, p.UserPublicEncryptionKey[:]...)
		out = append(out, p.EncryptedUserPrivateEncKey[:]...)
		out = append(out, p.Flags)
	}
	return out
}

func parseDeviceCreation(nature Nature, data []byte) (*DeviceCreationPayload, error) {
	p := &DeviceCreationPayload{Version: nature}
	rest := data
	var field []byte
	var err error

	if nature == NatureDeviceCreationV2 || nature == NatureDeviceCreationV3 {
		if field, rest, err = takeFixed(rest, IDSize); err != nil {
			return nil, err
		}
		copy(p.LastReset[:], field)
	}

	if field, rest, err = takeFixed(rest, EncryptionKeySize); err != nil {
		return nil, err
	}
	copy(p.EphemeralPub[:], field)

	if field, rest, err = takeFixed(rest, IDSize); err != nil {
		return nil, err
	}
	copy(p.UserID[:], field)

	if field, rest, err = takeFixed(rest, SignatureSize); err != nil {
		return nil, err
	}
	copy(p.DelegationSig[:], field)

	if field, rest, err = takeFixed(rest, IDSize); err != nil {
		return nil, err
	}
	copy(p.PublicSignatureKey[:], field)

	if field, rest, err = takeFixed(rest, EncryptionKeySize); err != nil {
		return nil, err
	}
	copy(p.PublicEncryptionKey[:], field)

	if nature == NatureDeviceCreationV3 {
		if field, rest, err = takeFixed(rest, EncryptionKeySize); err != nil {
			return nil, err
		}
		copy(p.UserPublicEncryptionKey[:], field)

		if field, rest, err = takeFixed(rest, SealedKeySize); err != nil {
			return nil, err
		}
		copy(p.EncryptedUserPrivateEncKey[:], field)

		if field, rest, err = takeFixed(rest, 1); err != nil {
			return nil, err
		}
		p.Flags = field[0]
	}

	if len(rest) != 0 {
		return nil, apierr.New(apierr.InvalidEncryptionFormat, "trailing bytes in device creation payload")
	}
	return p, nil
}

// --- DeviceRevocation -------------------------------------------------------

// RevocationRecipient is one entry of a v2 revocation's privateKeys list: a
// remaining device's encryption public key, and the rotated user private
// encryption key sealed to it.
type RevocationRecipient struct {
	Recipient [EncryptionKeySize]byte
	EncKey    [SealedKeySize]byte
}

// DeviceRevocationPayload is the common shape of v1/v2 device-revocation.
type DeviceRevocationPayload struct {
	Version               Nature
	DeviceID              [IDSize]byte
	UserPublicEncKey      [EncryptionKeySize]byte // v2 only
	PrevUserPublicEncKey  [EncryptionKeySize]byte // v2 only
	EncPrevUserPrivEncKey [SealedKeySize]byte     // v2 only
	PrivateKeys           []RevocationRecipient   // v2 only
}

func (p *DeviceRevocationPayload) Nature() Nature { return p.Version }

func (p *DeviceRevocationPayload) Marshal() []byte {
	out := append([]byte(nil), p.DeviceID[:]...)
	if p.Version != NatureDeviceRevocationV2 {
		return out
	}
	out = append(out, p.UserPublicEncKey[:]...)
	out = append(out, p.PrevUserPublicEncKey[:]...)
	out = append(out, p.EncPrevUserPrivEncKey[:]...)
	out = putUvarint(out, uint64(len(p.PrivateKeys)))
	for _, r := range p.PrivateKeys {
		out = append(out, r.Recipient[:]...)
		out = append(out, r.EncKey[:]...)
	}
	return out
}

func parseDeviceRevocation(nature Nature, data []byte) (*DeviceRevocationPayload, error) {
	p := &DeviceRevocationPayload{Version: nature}
	field, rest, err := takeFixed(data, IDSize)
	if err != nil {
		return nil, err
	}
	copy(p.DeviceID[:], field)

	if nature == NatureDeviceRevocationV1 {
		if len(rest) != 0 {
			return nil, apierr.New(apierr.InvalidEncryptionFormat, "trailing bytes in device revocation v1 payload")
		}
		return p, nil
	}

	if field, rest, err = takeFixed(rest, EncryptionKeySize); err != nil {
		return nil, err
	}
	copy(p.UserPublicEncKey[:], field)

	if field, rest, err = takeFixed(rest, EncryptionKeySize); err != nil {
		return nil, err
	}
	copy(p.PrevUserPublicEncKey[:], field)

	if field, rest, err = takeFixed(rest, SealedKeySize); err != nil {
		return nil, err
	}
	copy(p.EncPrevUserPrivEncKey[:], field)

	n, consumed, err := readUvarint(rest)
	if err != nil {
		return nil, err
	}
	rest = rest[consumed:]

	p.PrivateKeys = make([]RevocationRecipient, 0, n)
	for i := uint64(0); i < n; i++ {
		var r RevocationRecipient
		if field, rest, err = takeFixed(rest, EncryptionKeySize); err != nil {
			return nil, err
		}
		copy(r.Recipient[:], field)

		if field, rest, err = takeFixed(rest, SealedKeySize); err != nil {
			return nil, err
		}
		copy(r.EncKey[:], field)

		p.PrivateKeys = append(p.PrivateKeys, r)
	}

	if len(rest) != 0 {
		return nil, apierr.New(apierr.InvalidEncryptionFormat, "trailing bytes in device revocation v2 payload")
	}
	return p, nil
}
