package safe

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/localstore/versioned"
	"github.com/trustmesh/trustmesh-core/primitives"
)

const (
	safeKey        = "safe"
	safeKeyVersion = 0
)

// record is the plaintext shape sealed inside the safe's single encrypted
// envelope. Keeping every secret behind one envelope (rather than one row
// per key) means a single passphrase change re-seals everything at once.
type record struct {
	Device       DeviceKeyPair
	UserKeys     []UserKeyPairEntry
	Provisionals []ProvisionalKeyPair
}

// Safe is the local encrypted key store. It is not safe for concurrent
// use from multiple goroutines without external synchronization, matching
// the single-writer assumption the rest of this module makes about local
// state.
type Safe struct {
	kv            *versioned.KV
	passphraseKey []byte // derived AEAD key, never persisted
	rec           record
}

// Open decrypts (or, if absent, initializes) the safe stored in kv under
// passphraseKey, an AEAD key the caller derives from the user's
// passphrase (the derivation itself — e.g. Argon2/HKDF over a password —
// is a session/bindings concern, not this package's).
func Open(kv *versioned.KV, passphraseKey []byte) (*Safe, error) {
	s := &Safe{kv: kv, passphraseKey: passphraseKey}

	obj, err := s.kv.Get(safeKey, safeKeyVersion)
	if err != nil {
		return s, nil // fresh safe; InitDevice or SetDevice populates it
	}
	plain, err := primitives.AEADDecrypt(passphraseKey, obj.Data, nil)
	if err != nil {
		return nil, errors.Wrap(err, "safe: failed to decrypt local key safe")
	}
	if err := json.Unmarshal(plain, &s.rec); err != nil {
		return nil, errors.Wrap(err, "safe: failed to unmarshal decrypted key safe")
	}
	return s, nil
}

func (s *Safe) persist() error {
	plain, err := json.Marshal(s.rec)
	if err != nil {
		return errors.Wrap(err, "safe: failed to marshal key safe")
	}
	sealed, err := primitives.AEADEncrypt(s.passphraseKey, plain, nil)
	if err != nil {
		return errors.Wrap(err, "safe: failed to encrypt key safe")
	}
	return s.kv.Set(safeKey, &versioned.Object{Version: safeKeyVersion, Data: sealed})
}

// InitDevice generates and stores this device's own keypairs. It is a
// no-op if the device already has keypairs.
func (s *Safe) InitDevice() (DeviceKeyPair, error) {
	if s.rec.Device.Signature.PublicKey != nil {
		return s.rec.Device, nil
	}
	sig, err := primitives.GenerateSignatureKeyPair()
	if err != nil {
		return DeviceKeyPair{}, err
	}
	enc, err := primitives.GenerateEncryptionKeyPair()
	if err != nil {
		return DeviceKeyPair{}, err
	}
	s.rec.Device = DeviceKeyPair{Signature: sig, Encryption: enc}
	return s.rec.Device, s.persist()
}

// Device returns this device's stored keypairs.
func (s *Safe) Device() DeviceKeyPair { return s.rec.Device }

// SetDevice persists an externally-generated device keypair, for the rare
// bootstrap path where the keypair must be chosen before the device-safe
// exists (a device-creation block embeds the device's public keys, so a
// caller assembling that block has already generated the pair InitDevice
// would otherwise generate). A no-op if a device keypair is already
// stored, same as InitDevice.
func (s *Safe) SetDevice(kp DeviceKeyPair) error {
	if s.rec.Device.Signature.PublicKey != nil {
		return nil
	}
	s.rec.Device = kp
	return s.persist()
}

// ZeroDeviceSecrets overwrites the in-memory copies of the device's private
// keys in place. The sealed record already persisted in kv still holds them
// and is not rewritten or deleted; the public keys and user/provisional key
// history are left untouched.
func (s *Safe) ZeroDeviceSecrets() {
	for i := range s.rec.Device.Signature.PrivateKey {
		s.rec.Device.Signature.PrivateKey[i] = 0
	}
	for i := range s.rec.Device.Encryption.PrivateKey {
		s.rec.Device.Encryption.PrivateKey[i] = 0
	}
}

// AddUserKeyPair appends a new generation to the user's encryption-keypair
// history, used both for the first v3 device-creation and for every
// subsequent v2 revocation's rotation.
func (s *Safe) AddUserKeyPair(kp primitives.EncryptionKeyPair, index uint64) error {
	s.rec.UserKeys = append(s.rec.UserKeys, UserKeyPairEntry{KeyPair: kp, Index: index})
	return s.persist()
}

// UserKeyPairs returns the user's encryption-keypair history, oldest
// first.
func (s *Safe) UserKeyPairs() []UserKeyPairEntry { return s.rec.UserKeys }

// AddProvisionalKeyPair records a claimed provisional identity's keypairs.
func (s *Safe) AddProvisionalKeyPair(kp ProvisionalKeyPair) error {
	s.rec.Provisionals = append(s.rec.Provisionals, kp)
	return s.persist()
}

// OpenWithDeviceKey decrypts a key-publish-to-device payload's sealed key
// using this device's own encryption keypair.
func (s *Safe) OpenWithDeviceKey(sealed []byte) ([]byte, error) {
	return primitives.OpenAnonymous(s.rec.Device.Encryption, sealed)
}

// OpenWithUserKey tries every stored user encryption keypair against a
// single-layer sealed key, for key-publish-to-user resolution.
func (s *Safe) OpenWithUserKey(sealed []byte) ([]byte, bool) {
	for _, entry := range s.rec.UserKeys {
		plain, err := primitives.OpenAnonymous(entry.KeyPair, sealed)
		if err == nil {
			return plain, true
		}
	}
	return nil, false
}

// UnsealMemberSlot implements group.KeyResolver: it tries every stored
// user encryption keypair against slot's single-layer seal.
func (s *Safe) UnsealMemberSlot(slot block.GroupMemberSlot) ([32]byte, bool) {
	for _, entry := range s.rec.UserKeys {
		if entry.KeyPair.PublicKey != slot.UserPublicEncKey {
			continue
		}
		plain, err := primitives.OpenAnonymous(entry.KeyPair, slot.EncGroupPrivEncKey[:])
		if err != nil {
			continue
		}
		var key [32]byte
		copy(key[:], plain)
		return key, true
	}
	return [32]byte{}, false
}

// UnsealPendingSlot implements group.KeyResolver: it tries every claimed
// provisional keypair against slot's double seal (outer layer sealed to
// the server-side key, inner layer to the app-side key).
func (s *Safe) UnsealPendingSlot(slot block.PendingProvisionalSlot) ([32]byte, bool) {
	plain, ok := s.OpenDoubleSealed(slot.AppPublicKey, slot.ServerPublicKey, slot.EncGroupPrivEncKey[:])
	if !ok {
		return [32]byte{}, false
	}
	var key [32]byte
	copy(key[:], plain)
	return key, true
}

// OpenDoubleSealed tries every claimed provisional keypair matching
// (appPub, serverPub) against a double seal (outer layer sealed to the
// server-side key, inner layer to the app-side key), the shape shared by
// PendingProvisionalSlot and KeyPublishToProvisionalUserPayload.
func (s *Safe) OpenDoubleSealed(appPub, serverPub [32]byte, sealed []byte) ([]byte, bool) {
	for _, prov := range s.rec.Provisionals {
		if prov.ServerKeyPair.PublicKey != serverPub || prov.AppKeyPair.PublicKey != appPub {
			continue
		}
		inner, err := primitives.OpenAnonymous(prov.ServerKeyPair, sealed)
		if err != nil {
			continue
		}
		plain, err := primitives.OpenAnonymous(prov.AppKeyPair, inner)
		if err != nil {
			continue
		}
		return plain, true
	}
	return nil, false
}
