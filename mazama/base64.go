package mazama

import "encoding/base64"

// Base64Digest encodes b with standard base64 — used only to turn the
// final SHA-1 digest of the PID pipeline into the printable book PID,
// never to encode/decode the Mazama alphabets themselves.
func Base64Digest(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
