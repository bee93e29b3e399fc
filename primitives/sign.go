package primitives

import (
	"crypto/rand"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/pkg/errors"
)

// SignaturePublicKeySize and SignaturePrivateKeySize match circl's Ed25519.
const (
	SignaturePublicKeySize  = ed25519.PublicKeySize
	SignaturePrivateKeySize = ed25519.PrivateKeySize
	SignatureSize           = ed25519.SignatureSize
)

// SignatureKeyPair is a device or group Ed25519 signing keypair.
type SignatureKeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateSignatureKeyPair creates a fresh Ed25519 keypair.
func GenerateSignatureKeyPair() (SignatureKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return SignatureKeyPair{}, errors.Wrap(err, "failed to generate signature keypair")
	}
	return SignatureKeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// Sign produces a detached Ed25519 signature over message.
func Sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

// ExpandSignatureSeed rebuilds a full Ed25519 private key from its 32-byte
// seed, as used to recover a group's signing key from its sealed seed.
func ExpandSignatureSeed(seed []byte) ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(seed)
}

// Verify checks a detached Ed25519 signature. It never panics on malformed
// input sizes; callers that pass the wrong-sized key or signature just get
// false.
func Verify(pub ed25519.PublicKey, message, signature []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, signature)
}
