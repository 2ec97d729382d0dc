//go:build !windows

package pid

import "errors"

var errNotWindows = errors.New("not running on windows")

// LocateCredentialsFile always fails on non-Windows builds: the shell
// folder lookup kindle.info relies on is a Windows registry entry. Callers
// on other platforms must supply the path explicitly.
func LocateCredentialsFile() (string, error) {
	return "", wrapMissingCredential("kindle.info auto-locate requires Windows", errNotWindows)
}
