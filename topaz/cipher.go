// Package topaz implements the TPZ0 container format: header and metadata
// parsing, the book-key stream cipher, and DRM-stripping rewrite.
package topaz

const (
	cipherSeed uint32 = 0xCAFFE19E
	cipherMix  uint32 = 0x0F902007
)

// Cipher is the 2-word-state stream cipher keyed by a book PID or book key
// and used to decrypt dkey sub-records and encrypted payload blobs.
type Cipher struct {
	v0, v1 uint32
}

// NewCipher derives a Cipher from key, absorbing it byte by byte into the
// mixing state before any plaintext/ciphertext is processed.
func NewCipher(key []byte) *Cipher {
	c := &Cipher{v0: cipherSeed}
	for _, k := range key {
		c.v1 = c.v0
		c.v0 = ((c.v0 >> 2) * (c.v0 >> 7)) ^ (uint32(k) * uint32(k) * cipherMix)
	}
	return c
}

// Decrypt runs dst = plaintext for ciphertext src, advancing the cipher
// state with the recovered plaintext byte as the source requires.
func (c *Cipher) Decrypt(dst, src []byte) {
	for i, ct := range src {
		m := ct ^ byte(c.v0>>3) ^ byte(c.v1<<3)
		dst[i] = m
		c.v1 = c.v0
		c.v0 = ((c.v0 >> 2) * (c.v0 >> 7)) ^ (uint32(m) * uint32(m) * cipherMix)
	}
}

// Encrypt runs dst = ciphertext for plaintext src. Since the Topaz cipher
// advances its state from the plaintext byte regardless of direction, this
// is the exact algebraic inverse of Decrypt and is only used to build
// test fixtures.
func (c *Cipher) Encrypt(dst, src []byte) {
	for i, m := range src {
		ct := m ^ byte(c.v0>>3) ^ byte(c.v1<<3)
		dst[i] = ct
		c.v1 = c.v0
		c.v0 = ((c.v0 >> 2) * (c.v0 >> 7)) ^ (uint32(m) * uint32(m) * cipherMix)
	}
}

// DecryptBytes is a one-shot helper that keys a fresh Cipher and decrypts
// src, matching the shape of pc1.Decrypt.
func DecryptBytes(key, src []byte) []byte {
	dst := make([]byte, len(src))
	NewCipher(key).Decrypt(dst, src)
	return dst
}

// EncryptBytes is a one-shot helper that keys a fresh Cipher and encrypts
// src.
func EncryptBytes(key, src []byte) []byte {
	dst := make([]byte, len(src))
	NewCipher(key).Encrypt(dst, src)
	return dst
}
