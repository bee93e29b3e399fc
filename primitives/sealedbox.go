package primitives

import (
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/box"
)

// EncryptionPublicKeySize and EncryptionPrivateKeySize are the Curve25519
// key sizes used for every sealed-box operation (device, user, group, and
// provisional encryption keypairs all share this shape).
const (
	EncryptionPublicKeySize  = 32
	EncryptionPrivateKeySize = 32

	// SealedBoxOverhead is the number of bytes a single sealed-box layer adds
	// on top of the plaintext: a 32-byte ephemeral public key plus the
	// underlying NaCl box overhead. For a 32-byte resource key this yields
	// the 80-byte encKey fields used throughout the wire format (32 + 32 + 16).
	SealedBoxOverhead = 32 + box.Overhead
)

// EncryptionKeyPair is a Curve25519 keypair used to seal resource keys to a
// device, user, group, or provisional identity.
type EncryptionKeyPair struct {
	PublicKey  [EncryptionPublicKeySize]byte
	PrivateKey [EncryptionPrivateKeySize]byte
}

// GenerateEncryptionKeyPair creates a fresh Curve25519 keypair.
func GenerateEncryptionKeyPair() (EncryptionKeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return EncryptionKeyPair{}, errors.Wrap(err, "failed to generate encryption keypair")
	}
	return EncryptionKeyPair{PublicKey: *pub, PrivateKey: *priv}, nil
}

// SealAnonymous implements the libsodium-style anonymous sealed box: an
// ephemeral keypair is generated, the nonce is derived deterministically
// from the ephemeral and recipient public keys (so it never needs to be
// transmitted), and the ephemeral public key is prepended to the
// ciphertext. This is what every KeyPublish entry's encKey field holds.
func SealAnonymous(recipientPub *[EncryptionPublicKeySize]byte, message []byte) ([]byte, error) {
	ephPub, ephPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate ephemeral keypair")
	}

	nonce, err := sealedBoxNonce(ephPub, recipientPub)
	if err != nil {
		return nil, err
	}

	sealed := box.Seal(nil, message, &nonce, recipientPub, ephPriv)
	out := make([]byte, 0, len(ephPub)+len(sealed))
	out = append(out, ephPub[:]...)
	out = append(out, sealed...)
	return out, nil
}

// OpenAnonymous reverses SealAnonymous using the recipient's keypair.
func OpenAnonymous(recipient EncryptionKeyPair, sealed []byte) ([]byte, error) {
	if len(sealed) < EncryptionPublicKeySize {
		return nil, ErrDecryptionFailed
	}

	var ephPub [EncryptionPublicKeySize]byte
	copy(ephPub[:], sealed[:EncryptionPublicKeySize])
	ciphertext := sealed[EncryptionPublicKeySize:]

	nonce, err := sealedBoxNonce(&ephPub, &recipient.PublicKey)
	if err != nil {
		return nil, err
	}

	plain, ok := box.Open(nil, ciphertext, &nonce, &ephPub, &recipient.PrivateKey)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

func sealedBoxNonce(ephPub, recipientPub *[EncryptionPublicKeySize]byte) ([24]byte, error) {
	h, err := blake2b.New(24, nil)
	if err != nil {
		return [24]byte{}, errors.Wrap(err, "failed to init blake2b")
	}
	if _, err := io.Writer(h).Write(ephPub[:]); err != nil {
		return [24]byte{}, err
	}
	if _, err := io.Writer(h).Write(recipientPub[:]); err != nil {
		return [24]byte{}, err
	}

	var nonce [24]byte
	copy(nonce[:], h.Sum(nil))
	return nonce, nil
}
