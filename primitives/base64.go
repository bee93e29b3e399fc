package primitives

import "encoding/base64"

// B64 and UnB64 implement the local safe envelope's convention of
// base64-prefixing every byte field before JSON-encoding it.
func B64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func UnB64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
