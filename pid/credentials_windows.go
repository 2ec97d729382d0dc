//go:build windows

package pid

import (
	"path/filepath"

	"golang.org/x/sys/windows/registry"
)

// kindleInfoSuffix is the fixed path segment appended to the Local AppData
// shell folder to reach the credentials file.
const kindleInfoSuffix = `Amazon\Kindle For PC\{AMAwzsaPaaZAzmZzZQzgZCAkZ3AjA_AY}\kindle.info`

// LocateCredentialsFile resolves the kindle.info path via the Local
// AppData shell-folder registry entry, returning MissingCredential if the
// lookup fails.
func LocateCredentialsFile() (string, error) {
	k, err := registry.OpenKey(registry.CURRENT_USER,
		`Software\Microsoft\Windows\CurrentVersion\Explorer\Shell Folders`,
		registry.QUERY_VALUE)
	if err != nil {
		return "", wrapMissingCredential("opening shell folders registry key", err)
	}
	defer k.Close()

	localAppData, _, err := k.GetStringValue("Local AppData")
	if err != nil {
		return "", wrapMissingCredential("reading Local AppData value", err)
	}

	return filepath.Join(localAppData, kindleInfoSuffix), nil
}
