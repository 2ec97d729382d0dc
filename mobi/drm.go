package mobi

import (
	"github.com/htol/kpcstrip/byteutil"
	"github.com/htol/kpcstrip/drmcore"
	"github.com/htol/kpcstrip/pc1"
)

// DrmCookieSize is the size of one DRM cookie entry within the DRM block.
const DrmCookieSize = 48

// keyvec1 is the fixed KEK the source wraps every PID-derived key under
// before comparing it against the file's DRM cookies.
var keyvec1 = [16]byte{0x72, 0x38, 0x33, 0xB0, 0xB4, 0xF2, 0xE3, 0xCA, 0xDF, 0x09, 0x01, 0xD6, 0xE2, 0xE0, 0x3F, 0x96}

// drmCookie is the decrypted form of one 48-byte DRM block entry.
type drmCookie struct {
	verification uint32
	flags        uint32
	finalKey     [16]byte
}

// parseDrmCookie reads the 32-byte decrypted cookie plaintext: a 4-byte
// verification word, a 4-byte flags word, and the 16-byte final book key
// (8 bytes of expiry timestamps the core never inspects follow).
func parseDrmCookie(plain []byte) (drmCookie, error) {
	if len(plain) < 24 {
		return drmCookie{}, drmcore.New(drmcore.Io, "short DRM cookie plaintext")
	}
	var c drmCookie
	var err error
	v, e := byteutil.Uint32(plain, 0)
	if e != nil {
		err = e
	}
	c.verification = v
	f, e := byteutil.Uint32(plain, 4)
	if e != nil {
		err = e
	}
	c.flags = f
	copy(c.finalKey[:], plain[8:24])
	if err != nil {
		return drmCookie{}, drmcore.Wrap(drmcore.Io, "parsing DRM cookie fields", err)
	}
	return c, nil
}

// RecoverKey walks the drmCount 48-byte DRM cookies at drmBlock, trying
// pid8 as the candidate PID, and returns the 16-byte book key on success.
func RecoverKey(drmBlock []byte, drmCount uint32, pid8 string) ([16]byte, error) {
	var zero [16]byte
	var tempKey [16]byte
	copy(tempKey[:], []byte(pid8))

	tempKey = [16]byte(pc1.Encrypt(keyvec1, tempKey[:]))

	var cksum byte
	for _, b := range tempKey {
		cksum += b
	}

	for i := uint32(0); i < drmCount; i++ {
		off := int(i) * DrmCookieSize
		if off+DrmCookieSize > len(drmBlock) {
			break
		}
		entry := drmBlock[off : off+DrmCookieSize]

		verification, err := byteutil.Uint32(entry, 0)
		if err != nil {
			continue
		}
		entryCksum := entry[12]
		cookie := entry[16:48]

		plain := pc1.Decrypt(tempKey, cookie)
		k, err := parseDrmCookie(plain)
		if err != nil {
			continue
		}

		if verification == k.verification && entryCksum == cksum && k.flags&0x1F == 1 {
			return k.finalKey, nil
		}
	}
	return zero, drmcore.New(drmcore.NoKey, "no candidate PID matched a DRM cookie")
}
