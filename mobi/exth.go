package mobi

import (
	"fmt"

	"github.com/htol/kpcstrip/byteutil"
	"github.com/htol/kpcstrip/drmcore"
)

// EXTH record types the core reads. 209 carries the opaque token pointer
// used by the PID pipeline; the rest are diagnostics-only metadata read
// by the -v dump.
const (
	ExthTokenPointer = 209
	ExthDrmID1       = 1
	ExthDrmID2       = 2
	ExthDrmID3       = 3
	ExthAuthor       = 100
	ExthPublisher    = 101
	ExthPublishedAt  = 106
	ExthASIN         = 113
	ExthCreatorSoft  = 208
	ExthTitle        = 503
)

// ExthRecord is one variable-length EXTH metadata record.
type ExthRecord struct {
	Type uint32
	Data []byte // borrowed view, recLen-8 bytes
}

// Exth is the parsed EXTH header: a flat, ordered list of records walked
// once at parse time.
type Exth struct {
	Records []ExthRecord
}

// ParseExth reads the EXTH header starting at off within record0.
func ParseExth(record0 []byte, off int) (*Exth, error) {
	if off < 0 || off+12 > len(record0) {
		return nil, drmcore.New(drmcore.Io, "short read parsing EXTH header")
	}
	if string(record0[off:off+4]) != "EXTH" {
		return nil, drmcore.New(drmcore.BadHeader, "EXTH magic mismatch")
	}
	count, err := byteutil.Uint32(record0, off+8)
	if err != nil {
		return nil, drmcore.Wrap(drmcore.Io, "parsing EXTH record count", err)
	}

	e := &Exth{Records: make([]ExthRecord, 0, count)}
	pos := off + 12
	for i := uint32(0); i < count; i++ {
		if pos+8 > len(record0) {
			return nil, drmcore.New(drmcore.Io, "short read parsing EXTH record")
		}
		recType, err := byteutil.Uint32(record0, pos)
		if err != nil {
			return nil, drmcore.Wrap(drmcore.Io, "parsing EXTH record type", err)
		}
		recLen, err := byteutil.Uint32(record0, pos+4)
		if err != nil {
			return nil, drmcore.Wrap(drmcore.Io, "parsing EXTH record length", err)
		}
		if recLen < 8 {
			return nil, drmcore.New(drmcore.BadHeader, "EXTH record shorter than 8 bytes")
		}
		dataEnd := pos + int(recLen)
		if dataEnd > len(record0) {
			return nil, drmcore.New(drmcore.Io, "EXTH record runs past record 0")
		}
		e.Records = append(e.Records, ExthRecord{
			Type: recType,
			Data: record0[pos+8 : dataEnd],
		})
		pos = dataEnd
	}
	return e, nil
}

// Get returns the first record of the given type, or false if absent.
func (e *Exth) Get(recType uint32) ([]byte, bool) {
	for _, r := range e.Records {
		if r.Type == recType {
			return r.Data, true
		}
	}
	return nil, false
}

// diagnosticExthNames translates the EXTH record types the -v dump cares
// about; everything else is reported as "exth_<type>".
var diagnosticExthNames = map[uint32]string{
	ExthDrmID1:      "drm_server_id",
	ExthDrmID2:      "drm_commerce_id",
	ExthDrmID3:      "drm_ebookbase_book_id",
	ExthAuthor:      "author",
	ExthPublisher:   "publisher",
	ExthPublishedAt: "published_at",
	ExthASIN:        "asin",
	ExthCreatorSoft: "creator_software",
	ExthTitle:       "title",
}

// ExthEntry is one diagnostic-formatted EXTH record for the -v dump.
type ExthEntry struct {
	Type uint32
	Name string // translated via diagnosticExthNames, or "exth_<type>"
	Data []byte
}

// DumpEXTH returns every EXTH record with a human-readable name where one
// is known, covering the diagnostics-only fields spec.md §4.1 lists as
// well as the three DRM-identifier records; used only by the CLI's -v
// path, never by key recovery.
func (e *Exth) DumpEXTH() []ExthEntry {
	out := make([]ExthEntry, 0, len(e.Records))
	for _, r := range e.Records {
		name, ok := diagnosticExthNames[r.Type]
		if !ok {
			name = fmt.Sprintf("exth_%d", r.Type)
		}
		out = append(out, ExthEntry{Type: r.Type, Name: name, Data: r.Data})
	}
	return out
}
