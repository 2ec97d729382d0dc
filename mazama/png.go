package mazama

import (
	"github.com/htol/kpcstrip/byteutil"
)

// PNGAlphabet is the 34-character fingerprint alphabet (no 'O', to avoid
// confusion with '0').
const PNGAlphabet = "ABCDEFGHIJKLMNPQRSTUVWXYZ123456789"

// PNGObfuscate folds an arbitrary byte string down to an 8-character
// fingerprint: a CRC-32 is mixed into an 8-byte XOR accumulator, and each
// resulting byte is mapped through PNGAlphabet.
//
// The source byte-swaps the CRC to big-endian and then re-reads it as
// little-endian, which is a no-op composition: the two halves of the
// accumulator are simply XORed with the CRC's big-endian byte encoding.
func PNGObfuscate(s []byte) string {
	crc := byteutil.CRC32(s)

	var a [8]byte
	for i, v := range s {
		a[i%8] ^= v
	}

	var cbe [4]byte
	byteutil.PutUint32(cbe[:], 0, crc)
	for i := 0; i < 4; i++ {
		a[i] ^= cbe[i]
		a[i+4] ^= cbe[i]
	}

	out := make([]byte, 8)
	for i, v := range a {
		idx := ((((v >> 5) & 3) ^ v) & 0x1F) + (v >> 7)
		out[i] = PNGAlphabet[idx]
	}
	return string(out)
}

// ChecksumChars computes the two checksum characters PID append for a
// book-level PID's first 8 characters, per the same PNGAlphabet.
func ChecksumChars(pid8 string) string {
	crc := ^byteutil.CRC32([]byte(pid8))
	crc ^= crc >> 16

	out := make([]byte, 2)
	for i := 0; i < 2; i++ {
		b := byte(crc)
		out[i] = PNGAlphabet[(int(b/34)^int(b%34))%34]
		crc >>= 8
	}
	return string(out)
}

// AppendChecksum returns the 10-character PID (8 chars + 2 checksum chars).
func AppendChecksum(pid8 string) string {
	return pid8 + ChecksumChars(pid8)
}

// VerifyPID reports whether a 10-character PID's trailing two characters
// are a valid checksum of its leading 8.
func VerifyPID(pid10 string) bool {
	if len(pid10) != 10 {
		return false
	}
	return ChecksumChars(pid10[:8]) == pid10[8:]
}
