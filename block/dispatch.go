package block

import "github.com/trustmesh/trustmesh-core/apierr"

// ParsePayload dispatches on nature to parse a block's raw Payload bytes
// into its typed form. Callers only reach this after the block's envelope
// and (where applicable) signature have been checked.
func ParsePayload(nature Nature, raw []byte) (Payload, error) {
	switch nature {
	case NatureTrustchainCreation:
		return parseTrustchainCreation(raw)
	case NatureDeviceCreationV1, NatureDeviceCreationV2, NatureDeviceCreationV3:
		return parseDeviceCreation(nature, raw)
	case NatureDeviceRevocationV1, NatureDeviceRevocationV2:
		return parseDeviceRevocation(nature, raw)
	case NatureKeyPublishToDevice:
		return parseKeyPublishToDevice(raw)
	case NatureKeyPublishToUser:
		return parseKeyPublishToUserOrGroup(false, raw)
	case NatureKeyPublishToUserGroup:
		return parseKeyPublishToUserOrGroup(true, raw)
	case NatureKeyPublishToProvisionalUser:
		return parseKeyPublishToProvisionalUser(raw)
	case NatureUserGroupCreation:
		return parseUserGroupCreation(raw)
	case NatureUserGroupAddition:
		return parseUserGroupAddition(raw)
	default:
		return nil, apierr.New(apierr.UpgradeRequired, "unknown block nature")
	}
}

// NewBlock builds and serializes a Block from a typed payload, computing
// Payload from Marshal(). It does not sign the block; callers sign the
// returned hash and set Signature/Author themselves (see identity and
// group packages for the nature-specific delegation rules).
func NewBlock(index uint64, trustchainID [IDSize]byte, author [IDSize]byte, payload Payload) *Block {
	return &Block{
		Index:        index,
		TrustchainID: trustchainID,
		Nature:       payload.Nature(),
		Payload:      payload.Marshal(),
		Author:       author,
	}
}
