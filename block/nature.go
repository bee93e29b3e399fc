package block

// Nature is the block's type tag. Values are stable
// wire constants; never renumber an existing one.
type Nature uint64

const (
	NatureTrustchainCreation Nature = iota + 1
	NatureDeviceCreationV1
	NatureDeviceCreationV2
	NatureDeviceCreationV3
	NatureDeviceRevocationV1
	NatureDeviceRevocationV2
	NatureKeyPublishToDevice
	NatureKeyPublishToUser
	NatureKeyPublishToUserGroup
	NatureKeyPublishToProvisionalUser
	NatureUserGroupCreation
	NatureUserGroupAddition
)

var natureNames = map[Nature]string{
	NatureTrustchainCreation:          "trustchain_creation",
	NatureDeviceCreationV1:            "device_creation_v1",
	NatureDeviceCreationV2:            "device_creation_v2",
	NatureDeviceCreationV3:            "device_creation_v3",
	NatureDeviceRevocationV1:          "device_revocation_v1",
	NatureDeviceRevocationV2:          "device_revocation_v2",
	NatureKeyPublishToDevice:          "key_publish_to_device",
	NatureKeyPublishToUser:            "key_publish_to_user",
	NatureKeyPublishToUserGroup:       "key_publish_to_user_group",
	NatureKeyPublishToProvisionalUser: "key_publish_to_provisional_user",
	NatureUserGroupCreation:           "user_group_creation",
	NatureUserGroupAddition:           "user_group_addition",
}

func (n Nature) String() string {
	if name, ok := natureNames[n]; ok {
		return name
	}
	return "unknown_nature"
}

// Known reports whether n is a nature this codec version understands. An
// unknown nature on the wire means UpgradeRequired, never
// InvalidEncryptionFormat.
func (n Nature) Known() bool {
	_, ok := natureNames[n]
	return ok
}

// IsDeviceCreation reports whether n is any device-creation version.
func (n Nature) IsDeviceCreation() bool {
	return n == NatureDeviceCreationV1 || n == NatureDeviceCreationV2 || n == NatureDeviceCreationV3
}

// IsDeviceRevocation reports whether n is any device-revocation version.
func (n Nature) IsDeviceRevocation() bool {
	return n == NatureDeviceRevocationV1 || n == NatureDeviceRevocationV2
}

// IsKeyPublish reports whether n is any key-publish variant.
func (n Nature) IsKeyPublish() bool {
	switch n {
	case NatureKeyPublishToDevice, NatureKeyPublishToUser,
		NatureKeyPublishToUserGroup, NatureKeyPublishToProvisionalUser:
		return true
	}
	return false
}
