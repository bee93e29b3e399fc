// Package identity implements the local user/device verifier and store:
// validating and applying device-creation and device-revocation blocks
// into a per-user device list with revocation indices and a rotated
// user-key history.
package identity

import "github.com/trustmesh/trustmesh-core/block"

// Device is one user's device, as reconstructed from its device-creation
// and (if any) device-revocation blocks.
type Device struct {
	DeviceID            [block.IDSize]byte
	UserID              [block.IDSize]byte
	SignaturePublicKey  [block.IDSize]byte
	EncryptionPublicKey [32]byte
	IsGhostDevice       bool
	IsServerDevice      bool
	CreatedIndex        uint64
	RevokedAt           *uint64 // nil means never revoked (infinity)
}

// RevokedAtIndex reports whether the device is revoked at or before index.
func (d *Device) RevokedAtIndex(index uint64) bool {
	return d.RevokedAt != nil && *d.RevokedAt <= index
}

// UserPublicKeyEntry is one entry in a user's append-only public-key
// history. A v2 revocation appends a new entry; earlier entries remain
// queryable by Index.
type UserPublicKeyEntry struct {
	PublicKey [32]byte
	Index     uint64
}

// User is one user's full device list and public-key history.
type User struct {
	UserID         [block.IDSize]byte
	Devices        []Device
	UserPublicKeys []UserPublicKeyEntry
}

// CurrentPublicKey returns the newest entry in UserPublicKeys, or false if
// the user has never had a user-key (i.e. every device is a v1 device).
func (u *User) CurrentPublicKey() ([32]byte, bool) {
	if len(u.UserPublicKeys) == 0 {
		return [32]byte{}, false
	}
	return u.UserPublicKeys[len(u.UserPublicKeys)-1].PublicKey, true
}

// HasUserKeys reports whether the user has ever had a user-keypair.
func (u *User) HasUserKeys() bool {
	return len(u.UserPublicKeys) > 0
}

// NonRevokedDeviceCount returns how many of the user's devices are not yet
// revoked at index, optionally excluding one device id.
func (u *User) NonRevokedDeviceCount(index uint64, exclude [block.IDSize]byte) int {
	n := 0
	for _, d := range u.Devices {
		if d.DeviceID == exclude {
			continue
		}
		if !d.RevokedAtIndex(index) {
			n++
		}
	}
	return n
}

// DeviceByID returns a pointer to the device with the given id, or nil.
func (u *User) DeviceByID(id [block.IDSize]byte) *Device {
	for i := range u.Devices {
		if u.Devices[i].DeviceID == id {
			return &u.Devices[i]
		}
	}
	return nil
}
