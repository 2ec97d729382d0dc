package pid

import (
	"os/user"

	"github.com/htol/kpcstrip/hashutil"
	"github.com/htol/kpcstrip/mazama"
)

const fallbackVolumeID = "9999999999"

// mrnKey and katKey are the credentials map keys holding the device's
// random-number seed and account token, Mazama-encoded from their
// semantic names.
var (
	mrnKey = mazama.Encode64(sumMD5("MazamaRandomNumber"))
	katKey = mazama.Encode64(sumMD5("kindle.account.tokens"))
)

func sumMD5(s string) []byte {
	sum := hashutil.MD5([]byte(s))
	return sum[:]
}

// KnownKeyNames translates well-known Mazama-encoded credential keys to
// their semantic name, used only by the CLI's diagnostic dump.
var KnownKeyNames = map[string]string{
	mrnKey: "MazamaRandomNumber",
	katKey: "kindle.account.tokens",
}

// Pipeline derives book PIDs from a credentials Store and an Unprotector,
// per the device-fingerprint and book-key derivation steps.
type Pipeline struct {
	Store       *Store
	Unprotector Unprotector

	// CurrentUser overrides os/user.Current for tests; empty uses the
	// real OS-reported username.
	CurrentUser string
}

// NewPipeline builds a Pipeline over store, defaulting to the native
// platform Unprotector.
func NewPipeline(store *Store) *Pipeline {
	return &Pipeline{Store: store, Unprotector: DefaultUnprotector()}
}

func (p *Pipeline) currentUsername() string {
	if p.CurrentUser != "" {
		return p.CurrentUser
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

// DecryptStored decrypts the raw (Mazama-encoded, OS-protected) value
// stored under key, used by the CLI's -v dump for credentials that have
// no dedicated accessor.
func (p *Pipeline) DecryptStored(key string) ([]byte, error) {
	return p.decryptCredential(key)
}

func (p *Pipeline) decryptCredential(key string) ([]byte, error) {
	encoded, ok := p.Store.Get(key)
	if !ok {
		return nil, ErrMissingCredential
	}
	raw, _, err := mazama.Decode(encoded)
	if err != nil {
		return nil, err
	}
	return p.Unprotector.Unprotect(raw)
}

// FinalDeviceID computes the 40-character device fingerprint: the volume
// serial and username are each MD5'd and Mazama-encoded, then hashed
// together with the decrypted MazamaRandomNumber credential.
func (p *Pipeline) FinalDeviceID() (string, error) {
	vsn := mazama.Encode32(sumMD5(SystemVolumeID()))
	username := mazama.Encode32(sumMD5(p.currentUsername()))

	mrn, err := p.decryptCredential(mrnKey)
	if err != nil {
		return "", err
	}

	h := hashutil.NewSHA1Stream()
	h.Write(mrn)
	h.Write([]byte(vsn))
	h.Write([]byte(username))
	sum := h.Sum()

	return mazama.Encode32(sum[:]), nil
}

// DeviceDiagnosticPID is the human-readable, 8-character form of
// FinalDeviceID shown by the CLI's -v diagnostic dump; it is not used for
// key recovery.
func (p *Pipeline) DeviceDiagnosticPID() (string, error) {
	devID, err := p.FinalDeviceID()
	if err != nil {
		return "", err
	}
	return mazama.PNGObfuscate([]byte(devID[:4])), nil
}

// DeriveBookPID computes the 8-character book-level PID from an opaque
// token pointer (the Mobi EXTH-209 payload or the Topaz "keys" metadata
// value) and the token string it references.
func (p *Pipeline) DeriveBookPID(keysPtr, keysVal string) (string, error) {
	devID, err := p.FinalDeviceID()
	if err != nil {
		return "", err
	}

	kat, err := p.decryptCredential(katKey)
	if err != nil {
		return "", err
	}

	h := hashutil.NewSHA1Stream()
	h.Write([]byte(devID))
	h.Write(kat)
	h.Write([]byte(keysPtr))
	h.Write([]byte(keysVal))
	sum := h.Sum()

	digest := mazama.Base64Digest(sum[:])
	if len(digest) < 8 {
		return digest, nil
	}
	return digest[:8], nil
}
