package primitives

import "errors"

// ErrDecryptionFailed is returned whenever an AEAD tag or sealed-box
// verification fails. Callers surface it as apierr.DecryptionFailed.
var ErrDecryptionFailed = errors.New("primitives: decryption failed")
