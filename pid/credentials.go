package pid

import (
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

func wrapMissingCredential(msg string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMissingCredential, msg, err)
}

// DecodeDiagnosticValue transcodes a decrypted credential value from
// Windows-1252 (the encoding the Kindle-For-PC client writes its
// credentials file values in) to UTF-8, for the -v dump. ASCII values
// round-trip unchanged, since CP1252 is a superset of ASCII; every byte
// above 0x7F is read as a CP1252 character, so a value that is already
// UTF-8 with non-ASCII characters comes out re-encoded.
func DecodeDiagnosticValue(raw []byte) (string, error) {
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("transcoding credential value from cp1252: %w", err)
	}
	return string(out), nil
}
