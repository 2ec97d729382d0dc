package drmcore

import (
	"io"

	"github.com/htol/kpcstrip/mobi"
	"github.com/htol/kpcstrip/pid"
	"github.com/htol/kpcstrip/topaz"
)

// Options controls how Strip assembles its candidate PID list and how the
// Topaz engine treats compressed payloads on output.
type Options struct {
	// ExtraPIDs are tried before the derived PID, in order (CLI -p values).
	ExtraPIDs []string
	// Pipeline derives a book PID from the container's own token pointer
	// when none of ExtraPIDs recovers the key. Nil skips derivation
	// (useful when the caller already has every PID it needs).
	Pipeline *pid.Pipeline
	// Explode inflates compressed Topaz payloads on the way out (CLI -d);
	// ignored for Mobi.
	Explode bool
}

// Strip classifies data, recovers the book key by trying every candidate
// PID in order, and writes a DRM-stripped copy to out. On any error the
// caller is responsible for discarding a partially written out.
func Strip(data []byte, out io.Writer, opts Options) error {
	format, err := Sniff(data)
	if err != nil {
		return err
	}

	switch format {
	case FormatMobi:
		return stripMobi(data, out, opts)
	case FormatTopaz:
		return stripTopaz(data, out, opts)
	default:
		return New(UnknownFormat, "neither Mobi nor Topaz magic found")
	}
}

func stripMobi(data []byte, out io.Writer, opts Options) error {
	c, err := mobi.Parse(data)
	if err != nil {
		return err
	}

	candidates := append([]string(nil), opts.ExtraPIDs...)
	if opts.Pipeline != nil {
		if tok, ok := c.TokenPointer(); ok {
			derived, err := opts.Pipeline.DeriveBookPID(string(tok), string(tok))
			if err == nil {
				candidates = append(candidates, derived)
			}
		}
	}

	key, err := c.RecoverBookKey(candidates)
	if err != nil {
		return err
	}
	return c.Rewrite(out, key)
}

func stripTopaz(data []byte, out io.Writer, opts Options) error {
	c, err := topaz.Parse(data)
	if err != nil {
		return err
	}

	candidates := append([]string(nil), opts.ExtraPIDs...)
	if opts.Pipeline != nil {
		if keysPtr, keysVal, err := c.KeysMetadata(); err == nil {
			derived, err := opts.Pipeline.DeriveBookPID(keysPtr, keysVal)
			if err == nil {
				candidates = append(candidates, derived)
			}
		}
	}

	key, err := c.RecoverBookKey(candidates)
	if err != nil {
		return err
	}
	return c.Rewrite(out, key, opts.Explode)
}

// SniffReader classifies a stream without consuming more than the leading
// bytes it needs, for callers that want to fail fast before reading the
// whole file into memory.
func SniffReader(r io.Reader) (Format, error) {
	head := make([]byte, 68)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return FormatUnknown, Wrap(Io, "reading header for sniff", err)
	}
	return Sniff(head[:n])
}
