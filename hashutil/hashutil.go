// Package hashutil wraps the MD5 and SHA-1 primitives used throughout the
// PID derivation pipeline, in both one-shot and streaming form.
package hashutil

import (
	"crypto/md5"
	"crypto/sha1"
	"hash"
)

// MD5 returns the MD5 digest of b.
func MD5(b []byte) [md5.Size]byte {
	return md5.Sum(b)
}

// SHA1 returns the SHA-1 digest of b.
func SHA1(b []byte) [sha1.Size]byte {
	return sha1.Sum(b)
}

// SHA1Stream accumulates input across multiple Write calls before producing
// a final digest, used when the PID pipeline must absorb several
// discontiguous byte strings (device id, account token, EXTH key pointers)
// into one hash.
type SHA1Stream struct {
	h hash.Hash
}

// NewSHA1Stream returns a fresh streaming SHA-1 context.
func NewSHA1Stream() *SHA1Stream {
	return &SHA1Stream{h: sha1.New()}
}

// Write absorbs more input into the digest.
func (s *SHA1Stream) Write(b []byte) (int, error) {
	return s.h.Write(b)
}

// Sum returns the final 20-byte digest.
func (s *SHA1Stream) Sum() [sha1.Size]byte {
	var out [sha1.Size]byte
	copy(out[:], s.h.Sum(nil))
	return out
}
