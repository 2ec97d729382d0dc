//go:build windows

package pid

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// SystemVolumeID returns the decimal-formatted volume serial number of the
// system drive, or the literal fallback "9999999999" if it cannot be read.
func SystemVolumeID() string {
	root, err := windows.UTF16PtrFromString(`C:\`)
	if err != nil {
		return fallbackVolumeID
	}
	var serial uint32
	err = windows.GetVolumeInformation(root, nil, 0, &serial, nil, nil, nil, 0)
	if err != nil {
		return fallbackVolumeID
	}
	return fmt.Sprintf("%d", serial)
}
