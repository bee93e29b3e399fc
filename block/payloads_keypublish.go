package block

import (
	"github.com/trustmesh/trustmesh-core/apierr"
	"github.com/trustmesh/trustmesh-core/primitives"
)

// KeyPublishToDevicePayload seals a resource key to a single device's
// encryption public key. Unlike the other key-publish natures, the sealed
// key is length-prefixed because legacy device key-publishes were sealed
// under box constructions with varying overhead.
type KeyPublishToDevicePayload struct {
	Recipient  [EncryptionKeySize]byte
	ResourceID [ResourceIDSize]byte
	EncKey     []byte
}

func (p *KeyPublishToDevicePayload) Nature() Nature { return NatureKeyPublishToDevice }

func (p *KeyPublishToDevicePayload) Marshal() []byte {
	out := append([]byte(nil), p.Recipient[:]...)
	out = append(out, p.ResourceID[:]...)
	out = putUvarint(out, uint64(len(p.EncKey)))
	out = append(out, p.EncKey...)
	return out
}

func parseKeyPublishToDevice(data []byte) (*KeyPublishToDevicePayload, error) {
	var p KeyPublishToDevicePayload
	field, rest, err := takeFixed(data, EncryptionKeySize)
	if err != nil {
		return nil, err
	}
	copy(p.Recipient[:], field)

	if field, rest, err = takeFixed(rest, ResourceIDSize); err != nil {
		return nil, err
	}
	copy(p.ResourceID[:], field)

	length, n, err := readUvarint(rest)
	if err != nil {
		return nil, err
	}
	rest = rest[n:]

	if field, rest, err = takeFixed(rest, int(length)); err != nil {
		return nil, err
	}
	p.EncKey = append([]byte(nil), field...)

	if len(rest) != 0 {
		return nil, apierr.New(apierr.InvalidEncryptionFormat, "trailing bytes in key-publish-to-device payload")
	}
	return &p, nil
}

// KeyPublishToUserOrGroupPayload is the shared shape of key-publish-to-user
// and key-publish-to-user-group: a fixed 80-byte single-layer sealed key.
type KeyPublishToUserOrGroupPayload struct {
	ToGroup    bool
	Recipient  [EncryptionKeySize]byte
	ResourceID [ResourceIDSize]byte
	EncKey     [SealedKeySize]byte
}

func (p *KeyPublishToUserOrGroupPayload) Nature() Nature {
	if p.ToGroup {
		return NatureKeyPublishToUserGroup
	}
	return NatureKeyPublishToUser
}

func (p *KeyPublishToUserOrGroupPayload) Marshal() []byte {
	out := append([]byte(nil), p.Recipient[:]...)
	out = append(out, p.ResourceID[:]...)
	out = append(out, p.EncKey[:]...)
	return out
}

func parseKeyPublishToUserOrGroup(toGroup bool, data []byte) (*KeyPublishToUserOrGroupPayload, error) {
	p := &KeyPublishToUserOrGroupPayload{ToGroup: toGroup}
	field, rest, err := takeFixed(data, EncryptionKeySize)
	if err != nil {
		return nil, err
	}
	copy(p.Recipient[:], field)

	if field, rest, err = takeFixed(rest, ResourceIDSize); err != nil {
		return nil, err
	}
	copy(p.ResourceID[:], field)

	if field, rest, err = takeFixed(rest, SealedKeySize); err != nil {
		return nil, err
	}
	copy(p.EncKey[:], field)

	if len(rest) != 0 {
		return nil, apierr.New(apierr.InvalidEncryptionFormat, "trailing bytes in key-publish payload")
	}
	return p, nil
}

// ProvisionalSealedKeySize is the size of a resource key double-sealed for
// a provisional identity: first to the app-side public key (SealedKeySize,
// 80 bytes), then that 80-byte blob sealed again to the server-side public
// key, adding one more layer of sealed-box overhead (80 + 48 = 128).
// primitives.SealedBoxOverhead already accounts for the ephemeral public
// key the outer seal embeds, so it is referenced directly rather than
// re-deriving the overhead here.
const ProvisionalSealedKeySize = SealedKeySize + primitives.SealedBoxOverhead

// KeyPublishToProvisionalUserPayload seals a resource key to a provisional
// identity's two half-keypairs (app-side and server-side).
type KeyPublishToProvisionalUserPayload struct {
	AppPublicKey    [EncryptionKeySize]byte
	ServerPublicKey [EncryptionKeySize]byte
	ResourceID      [ResourceIDSize]byte
	EncKey          [ProvisionalSealedKeySize]byte
}

func (p *KeyPublishToProvisionalUserPayload) Nature() Nature {
	return NatureKeyPublishToProvisionalUser
}

func (p *KeyPublishToProvisionalUserPayload) Marshal() []byte {
	out := append([]byte(nil), p.AppPublicKey[:]...)
	out = append(out, p.ServerPublicKey[:]...)
	out = append(out, p.ResourceID[:]...)
	out = append(out, p.EncKey[:]...)
	return out
}

func parseKeyPublishToProvisionalUser(data []byte) (*KeyPublishToProvisionalUserPayload, error) {
	var p KeyPublishToProvisionalUserPayload
	field, rest, err := takeFixed(data, EncryptionKeySize)
	if err != nil {
		return nil, err
	}
	copy(p.AppPublicKey[:], field)

	if field, rest, err = takeFixed(rest, EncryptionKeySize); err != nil {
		return nil, err
	}
	copy(p.ServerPublicKey[:], field)

	if field, rest, err = takeFixed(rest, ResourceIDSize); err != nil {
		return nil, err
	}
	copy(p.ResourceID[:], field)

	if field, rest, err = takeFixed(rest, ProvisionalSealedKeySize); err != nil {
		return nil, err
	}
	copy(p.EncKey[:], field)

	if len(rest) != 0 {
		return nil, apierr.New(apierr.InvalidEncryptionFormat, "trailing bytes in provisional key-publish payload")
	}
	return &p, nil
}
