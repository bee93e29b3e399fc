// Package primitives wraps the cryptographic building blocks used by the
// trust chain engine: AEAD, signing, sealed boxes, key derivation, hashing,
// randomness, and base64 framing. Every other package in this module talks
// to cryptography only through this package.
package primitives

import (
	"crypto/rand"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// SymmetricKeySize is the size in bytes of a resource symmetric key.
const SymmetricKeySize = chacha20poly1305.KeySize

// NonceSize is the XChaCha20-Poly1305 nonce size (24 bytes).
const NonceSize = chacha20poly1305.NonceSizeX

// Overhead is the AEAD authentication tag size appended to every ciphertext.
const Overhead = chacha20poly1305.Overhead

// GenerateSymmetricKey produces a fresh random resource key.
func GenerateSymmetricKey() ([]byte, error) {
	key := make([]byte, SymmetricKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "failed to generate symmetric key")
	}
	return key, nil
}

// AEADEncrypt seals plaintext under key, prepending a fresh random nonce to
// the returned ciphertext. associatedData may be nil.
func AEADEncrypt(key, plaintext, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init XChaCha20-Poly1305")
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "failed to generate nonce")
	}

	sealed := aead.Seal(nil, nonce, plaintext, associatedData)
	return append(nonce, sealed...), nil
}

// AEADDecrypt reverses AEADEncrypt. Any tag mismatch returns ErrDecryptionFailed.
func AEADDecrypt(key, ciphertext, associatedData []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, ErrDecryptionFailed
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init XChaCha20-Poly1305")
	}

	nonce, sealed := ciphertext[:NonceSize], ciphertext[NonceSize:]
	plain, err := aead.Open(nil, nonce, sealed, associatedData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

// AEADEncryptDeterministic seals plaintext under an explicit nonce, used by
// the streaming encryptor, which passes a fixed all-zero nonce and derives
// a distinct key per chunk instead of drawing a nonce from the RNG (see
// stream.Encryptor).
func AEADEncryptDeterministic(key, nonce, plaintext, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init XChaCha20-Poly1305")
	}
	if len(nonce) != NonceSize {
		return nil, errors.Errorf("invalid nonce size %d, want %d", len(nonce), NonceSize)
	}
	return aead.Seal(nil, nonce, plaintext, associatedData), nil
}

// AEADDecryptDeterministic is the counterpart to AEADEncryptDeterministic.
func AEADDecryptDeterministic(key, nonce, ciphertext, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init XChaCha20-Poly1305")
	}
	if len(nonce) != NonceSize {
		return nil, errors.Errorf("invalid nonce size %d, want %d", len(nonce), NonceSize)
	}
	plain, err := aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}
