package identity

import (
	"bytes"

	"github.com/trustmesh/trustmesh-core/apierr"
	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/primitives"
	"github.com/trustmesh/trustmesh-core/trustchain"
)

// Verifier validates device-creation and device-revocation blocks against
// the identity Store, advancing it atomically on success.
type Verifier struct {
	chain *trustchain.State
	store *Store
}

// NewVerifier binds a Verifier to the shared trustchain root state and the
// identity store it mutates.
func NewVerifier(chain *trustchain.State, store *Store) *Verifier {
	return &Verifier{chain: chain, store: store}
}

// VerifyDeviceCreation checks blk/payload against current state without
// mutating it. It is split from Apply so the verifier's outer dispatch can
// recursively promote dependencies first without risking a partial
// apply.
func (v *Verifier) VerifyDeviceCreation(blk *block.Block, payload *block.DeviceCreationPayload) error {
	rootKey := v.chain.RootPublicSignatureKey()
	if rootKey == nil {
		return apierr.NewBlock(apierr.SubcodeForbidden, "trustchain not yet created")
	}

	isFirstDevice := blk.Author == v.chain.ID()

	delegationMessage := append(append([]byte(nil), payload.EphemeralPub[:]...), payload.UserID[:]...)

	var authorKey []byte
	var user *User

	if isFirstDevice {
		authorKey = rootKey
	} else {
		authorDevice, err := v.store.GetDevice(blk.Author)
		if err != nil {
			return apierr.NewBlock(apierr.SubcodeInvalidAuthor, "author device not found")
		}
		if authorDevice.RevokedAtIndex(blk.Index) {
			return apierr.NewBlock(apierr.SubcodeRevokedAuthor, "author device is revoked")
		}
		authorKey = authorDevice.SignaturePublicKey[:]

		u, err := v.store.GetUser(authorDevice.UserID)
		if err != nil {
			return apierr.NewBlock(apierr.SubcodeInvalidAuthor, "author device's user not found")
		}
		if payload.UserID != u.UserID {
			return apierr.NewBlock(apierr.SubcodeForbidden, "device creation user id does not match author's user")
		}
		user = u
	}

	if !primitives.Verify(authorKey, delegationMessage, payload.DelegationSig[:]) {
		return apierr.NewBlock(apierr.SubcodeInvalidDelegationSignature, "bad delegation signature")
	}
	if !primitives.Verify(payload.EphemeralPub[:], blk.Hash(), blk.Signature[:]) {
		return apierr.NewBlock(apierr.SubcodeInvalidSignature, "bad block signature")
	}

	hasUserKeys := user != nil && user.HasUserKeys()
	switch blk.Nature {
	case block.NatureDeviceCreationV1, block.NatureDeviceCreationV2:
		if hasUserKeys {
			return apierr.NewBlock(apierr.SubcodeVersionMismatch, "v1/v2 device creation for a user that already has user-keys")
		}
	case block.NatureDeviceCreationV3:
		if !isFirstDevice && !hasUserKeys {
			return apierr.NewBlock(apierr.SubcodeMissingUserKeys, "v3 device creation for a user without user-keys")
		}
		if user != nil {
			current, ok := user.CurrentPublicKey()
			if !ok || !bytes.Equal(current[:], payload.UserPublicEncryptionKey[:]) {
				return apierr.NewBlock(apierr.SubcodeInvalidUserPublicKey, "embedded user public key does not match current")
			}
		}
	}

	var zeroReset [block.IDSize]byte
	if blk.Nature != block.NatureDeviceCreationV1 && payload.LastReset != zeroReset {
		return apierr.NewBlock(apierr.SubcodeForbidden, "lastReset must be zero")
	}

	return nil
}

// ApplyDeviceCreation re-derives the new device's id from blk and inserts
// it into the author's user (or creates the user, for a first device).
func (v *Verifier) ApplyDeviceCreation(blk *block.Block, payload *block.DeviceCreationPayload) error {
	var userID [block.IDSize]byte
	isFirstDevice := blk.Author == v.chain.ID()
	if isFirstDevice {
		userID = payload.UserID
	} else {
		authorDevice, err := v.store.GetDevice(blk.Author)
		if err != nil {
			return apierr.New(apierr.InternalError, "author device vanished between verify and apply")
		}
		userID = authorDevice.UserID
	}

	deviceID := blk.Hash()
	var deviceIDArr [block.IDSize]byte
	copy(deviceIDArr[:], deviceID)

	newDevice := Device{
		DeviceID:            deviceIDArr,
		UserID:              userID,
		SignaturePublicKey:  payload.PublicSignatureKey,
		EncryptionPublicKey: payload.PublicEncryptionKey,
		CreatedIndex:        blk.Index,
	}
	if blk.Nature == block.NatureDeviceCreationV3 {
		newDevice.IsGhostDevice = payload.IsGhostDevice()
		newDevice.IsServerDevice = payload.IsServerDevice()
	}

	return v.store.applyMutation(userID, func(u *User) error {
		u.Devices = append(u.Devices, newDevice)
		if blk.Nature == block.NatureDeviceCreationV3 && !u.HasUserKeys() {
			u.UserPublicKeys = append(u.UserPublicKeys, UserPublicKeyEntry{
				PublicKey: payload.UserPublicEncryptionKey,
				Index:     blk.Index,
			})
		}
		return nil
	})
}

// VerifyDeviceRevocation checks blk/payload against current state without
// mutating it.
func (v *Verifier) VerifyDeviceRevocation(blk *block.Block, payload *block.DeviceRevocationPayload) error {
	authorDevice, err := v.store.GetDevice(blk.Author)
	if err != nil {
		return apierr.NewBlock(apierr.SubcodeInvalidAuthor, "author device not found")
	}
	if authorDevice.RevokedAtIndex(blk.Index) {
		return apierr.NewBlock(apierr.SubcodeRevokedAuthor, "author device is revoked")
	}
	if !primitives.Verify(authorDevice.SignaturePublicKey[:], blk.Hash(), blk.Signature[:]) {
		return apierr.NewBlock(apierr.SubcodeInvalidSignature, "bad block signature")
	}

	target, err := v.store.GetDevice(payload.DeviceID)
	if err != nil {
		return apierr.NewBlock(apierr.SubcodeInvalidRevokedDevice, "target device not found")
	}
	if target.UserID != authorDevice.UserID {
		return apierr.NewBlock(apierr.SubcodeForbidden, "author and target device belong to different users")
	}
	if target.RevokedAtIndex(blk.Index) {
		return apierr.NewBlock(apierr.SubcodeInvalidRevokedDevice, "target device already revoked")
	}

	user, err := v.store.GetUser(authorDevice.UserID)
	if err != nil {
		return apierr.New(apierr.InternalError, "author device indexed but user missing")
	}

	if blk.Nature == block.NatureDeviceRevocationV1 {
		if user.HasUserKeys() {
			return apierr.NewBlock(apierr.SubcodeVersionMismatch, "v1 revocation is only legal for a user that never had user-keys")
		}
		return nil
	}

	current, ok := user.CurrentPublicKey()
	if !ok {
		return apierr.NewBlock(apierr.SubcodeMissingUserKeys, "v2 revocation for a user without user-keys")
	}
	if current != payload.PrevUserPublicEncKey {
		return apierr.NewBlock(apierr.SubcodeInvalidUserPublicKey, "previous user public key does not match current")
	}

	remaining := user.NonRevokedDeviceCount(blk.Index, payload.DeviceID)
	if len(payload.PrivateKeys) != remaining {
		return apierr.NewBlock(apierr.SubcodeForbidden, "privateKeys must have exactly one recipient per remaining non-revoked device")
	}

	return nil
}

// ApplyDeviceRevocation marks the target device revoked at blk.Index and,
// for v2, appends the rotated user public key.
func (v *Verifier) ApplyDeviceRevocation(blk *block.Block, payload *block.DeviceRevocationPayload) error {
	authorDevice, err := v.store.GetDevice(blk.Author)
	if err != nil {
		return apierr.New(apierr.InternalError, "author device vanished between verify and apply")
	}

	return v.store.applyMutation(authorDevice.UserID, func(u *User) error {
		target := u.DeviceByID(payload.DeviceID)
		if target == nil {
			return apierr.New(apierr.InternalError, "target device vanished between verify and apply")
		}
		index := blk.Index
		target.RevokedAt = &index

		if blk.Nature == block.NatureDeviceRevocationV2 {
			u.UserPublicKeys = append(u.UserPublicKeys, UserPublicKeyEntry{
				PublicKey: payload.UserPublicEncKey,
				Index:     blk.Index,
			})
		}
		return nil
	})
}
