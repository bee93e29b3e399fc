// Package safe is the local encrypted key safe: this device's signature and encryption keypairs, the user's
// ordered encryption-keypair history (populated once the user has
// user-keys), and any provisional-identity keypairs claimed locally. Every
// record is JSON-encoded then sealed with primitives.AEADEncrypt before it
// touches the backing versioned.KV, the way e2e/ratchet state seals
// session keys at rest.
package safe

import "github.com/trustmesh/trustmesh-core/primitives"

// DeviceKeyPair is this device's own signing and encryption keypairs, as
// generated at device-creation time and never rotated.
type DeviceKeyPair struct {
	Signature  primitives.SignatureKeyPair
	Encryption primitives.EncryptionKeyPair
}

// UserKeyPairEntry is one generation of the user's encryption keypair
// history (rotated by a v2 device revocation), indexed the same way as
// identity.UserPublicKeyEntry.
type UserKeyPairEntry struct {
	KeyPair primitives.EncryptionKeyPair
	Index   uint64
}

// ProvisionalKeyPair is a claimed provisional identity's app-side and
// server-side encryption keypairs, used to unseal a PendingProvisionalSlot.
type ProvisionalKeyPair struct {
	AppKeyPair    primitives.EncryptionKeyPair
	ServerKeyPair primitives.EncryptionKeyPair
}
