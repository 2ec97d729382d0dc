//go:build windows

package pid

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modcrypt32             = windows.NewLazySystemDLL("crypt32.dll")
	procCryptUnprotectData = modcrypt32.NewProc("CryptUnprotectData")
)

type dataBlob struct {
	cbData uint32
	pbData *byte
}

func newBlob(b []byte) *dataBlob {
	if len(b) == 0 {
		return &dataBlob{}
	}
	return &dataBlob{cbData: uint32(len(b)), pbData: &b[0]}
}

func (d *dataBlob) bytes() []byte {
	if d.pbData == nil || d.cbData == 0 {
		return nil
	}
	out := make([]byte, d.cbData)
	copy(out, unsafe.Slice(d.pbData, d.cbData))
	return out
}

// DefaultUnprotector returns the native DPAPI-backed Unprotector.
func DefaultUnprotector() Unprotector { return WindowsDPAPI{} }

// WindowsDPAPI calls into crypt32's CryptUnprotectData, the user-bound
// decrypt call the credentials file's values were encrypted under.
type WindowsDPAPI struct{}

// Unprotect decrypts blob via CryptUnprotectData, bound to the calling
// user's logon credentials.
func (WindowsDPAPI) Unprotect(blob []byte) ([]byte, error) {
	in := newBlob(blob)
	var out dataBlob

	r, _, err := procCryptUnprotectData.Call(
		uintptr(unsafe.Pointer(in)),
		0, 0, 0, 0, 0,
		uintptr(unsafe.Pointer(&out)),
	)
	if r == 0 {
		return nil, fmt.Errorf("%w: CryptUnprotectData: %v", ErrUnprotect, err)
	}
	defer windows.LocalFree(windows.Handle(uintptr(unsafe.Pointer(out.pbData))))

	return out.bytes(), nil
}
