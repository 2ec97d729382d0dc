package mobi

import (
	"io"

	"github.com/htol/kpcstrip/drmcore"
	"github.com/htol/kpcstrip/pc1"
)

// Container is a parsed Mobi/PRC file: the PDB envelope, the owned record
// 0 buffer, and the headers overlaid on it. Records 1..N are read lazily
// from the source bytes during Rewrite.
type Container struct {
	data    []byte // full input, borrowed
	Palm    *PalmDBHeader
	Entries []RecordEntry
	Record0 []byte // owned copy of record 0
	Header  *Header
	Exth    *Exth

	record0Offset int
}

// Parse reads the PDB envelope, record index, and record-0 headers from a
// full in-memory Mobi file.
func Parse(data []byte) (*Container, error) {
	palm, err := ParsePalmDBHeader(data)
	if err != nil {
		return nil, err
	}
	entries, err := ParseRecordEntries(data, int(palm.NumRecords))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, drmcore.New(drmcore.BadHeader, "PalmDB has no records")
	}

	record0Start := int(entries[0].Offset)
	record0End := len(data)
	if len(entries) > 1 {
		record0End = int(entries[1].Offset)
	}
	if record0Start < 0 || record0End > len(data) || record0Start > record0End {
		return nil, drmcore.New(drmcore.BadHeader, "record 0 bounds invalid")
	}

	record0 := make([]byte, record0End-record0Start)
	copy(record0, data[record0Start:record0End])

	header, err := ParseHeader(record0)
	if err != nil {
		return nil, err
	}
	exth, err := ParseExth(record0, header.ExthOffset)
	if err != nil {
		return nil, err
	}

	return &Container{
		data:          data,
		Palm:          palm,
		Entries:       entries,
		Record0:       record0,
		Header:        header,
		Exth:          exth,
		record0Offset: record0Start,
	}, nil
}

// TokenPointer returns the EXTH-209 opaque token pointer the PID pipeline
// consumes, if present.
func (c *Container) TokenPointer() ([]byte, bool) {
	return c.Exth.Get(ExthTokenPointer)
}

// RecoverBookKey locates the DRM cookie block in record 0 and recovers the
// book key by trying each candidate PID in order.
func (c *Container) RecoverBookKey(candidates []string) ([16]byte, error) {
	var zero [16]byte
	drmStart := int(c.Header.DrmOffset)
	drmEnd := drmStart + int(c.Header.DrmCount)*DrmCookieSize
	if drmStart < 0 || drmEnd > len(c.Record0) {
		return zero, drmcore.New(drmcore.BadHeader, "DRM block bounds invalid")
	}
	drmBlock := c.Record0[drmStart:drmEnd]

	var lastErr error
	for _, pid := range candidates {
		key, err := RecoverKey(drmBlock, c.Header.DrmCount, pid)
		if err == nil {
			return key, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = drmcore.New(drmcore.NoKey, "no candidate PIDs supplied")
	}
	return zero, lastErr
}

func (c *Container) recordBounds(i int) (int, int) {
	start := int(c.Entries[i].Offset)
	end := len(c.data)
	if i+1 < len(c.Entries) {
		end = int(c.Entries[i+1].Offset)
	}
	return start, end
}

// Rewrite streams a DRM-stripped copy of the container to w: record 0 with
// its DRM region zeroed and encryption fields cleared, then every
// remaining record padded to its original absolute offset and, for text
// records, PC1-decrypted up to its trailing-data boundary.
func (c *Container) Rewrite(w io.Writer, key [16]byte) error {
	c.Header.ZeroDRM(c.Record0)

	headerBuf := make([]byte, PalmDBHeaderSize)
	putHeader(headerBuf, c.Palm)
	if _, err := w.Write(headerBuf); err != nil {
		return drmcore.Wrap(drmcore.Io, "writing PalmDB header", err)
	}
	entryBuf := make([]byte, len(c.Entries)*RecordEntrySize)
	putRecordEntries(entryBuf, c.Entries)
	if _, err := w.Write(entryBuf); err != nil {
		return drmcore.Wrap(drmcore.Io, "writing record index", err)
	}
	if _, err := w.Write([]byte{0, 0}); err != nil {
		return drmcore.Wrap(drmcore.Io, "writing PalmDB padding", err)
	}

	written := PalmDBHeaderSize + len(entryBuf) + 2
	if _, err := w.Write(c.Record0); err != nil {
		return drmcore.Wrap(drmcore.Io, "writing record 0", err)
	}
	written += len(c.Record0)

	textRecs := int(c.Header.RecordCount)
	for i := 1; i < len(c.Entries); i++ {
		start, end := c.recordBounds(i)
		if start < written {
			return drmcore.New(drmcore.BadHeader, "record offsets are not increasing")
		}
		if start > written {
			if _, err := w.Write(make([]byte, start-written)); err != nil {
				return drmcore.Wrap(drmcore.Io, "padding to record offset", err)
			}
			written = start
		}

		rec := make([]byte, end-start)
		copy(rec, c.data[start:end])

		if i <= textRecs {
			trailing := trailingSize(rec, len(rec), c.Header.ExtraDataFlags)
			plainLen := len(rec) - trailing
			if plainLen > 0 {
				pc1.New(key).Process(rec[:plainLen], rec[:plainLen], false)
			}
		}

		if _, err := w.Write(rec); err != nil {
			return drmcore.Wrap(drmcore.Io, "writing record", err)
		}
		written += len(rec)
	}

	return nil
}
