// Package mobi parses and rewrites Mobipocket/PRC containers: the PalmDB
// envelope, the PalmDoc/Mobi/EXTH headers in record 0, DRM cookie
// recovery via PC1, and the trailing-data-aware record rewrite that
// strips DRM from the output.
package mobi

import (
	"github.com/htol/kpcstrip/byteutil"
	"github.com/htol/kpcstrip/drmcore"
)

const (
	// PalmDBHeaderSize is the fixed size of the PDB envelope preceding the
	// record index.
	PalmDBHeaderSize = 78
	// RecordEntrySize is the size of one record index descriptor.
	RecordEntrySize = 8

	palmDBType    = "BOOK"
	palmDBCreator = "MOBI"
)

// PalmDBHeader is the fixed 78-byte PDB envelope.
type PalmDBHeader struct {
	Name               [32]byte
	Attributes         uint16
	Version            uint16
	CreationDate       uint32
	ModificationDate   uint32
	LastBackupDate     uint32
	ModificationNumber uint32
	AppInfoOffset      uint32
	SortInfoOffset     uint32
	Type               [4]byte
	Creator            [4]byte
	UniqueIDSeed       uint32
	NextRecordListID   uint32
	NumRecords         uint16
}

// RecordEntry is one 8-byte PDB record index descriptor: a 32-bit file
// offset and an opaque 32-bit attribute/unique-id word that the rewriter
// copies through verbatim.
type RecordEntry struct {
	Offset uint32
	AttrID uint32
}

// ParsePalmDBHeader reads the fixed 78-byte envelope from the start of
// data and rejects anything that isn't a Mobi BOOK/MOBI PalmDB.
func ParsePalmDBHeader(data []byte) (*PalmDBHeader, error) {
	if len(data) < PalmDBHeaderSize {
		return nil, drmcore.New(drmcore.Io, "short read parsing PalmDB header")
	}
	h := &PalmDBHeader{}
	copy(h.Name[:], data[0:32])

	var err error
	read16 := func(off int) uint16 { v, e := byteutil.Uint16(data, off); if e != nil { err = e }; return v }
	read32 := func(off int) uint32 { v, e := byteutil.Uint32(data, off); if e != nil { err = e }; return v }

	h.Attributes = read16(32)
	h.Version = read16(34)
	h.CreationDate = read32(36)
	h.ModificationDate = read32(40)
	h.LastBackupDate = read32(44)
	h.ModificationNumber = read32(48)
	h.AppInfoOffset = read32(52)
	h.SortInfoOffset = read32(56)
	copy(h.Type[:], data[60:64])
	copy(h.Creator[:], data[64:68])
	h.UniqueIDSeed = read32(68)
	h.NextRecordListID = read32(72)
	h.NumRecords = read16(76)
	if err != nil {
		return nil, drmcore.Wrap(drmcore.Io, "parsing PalmDB header", err)
	}

	if string(h.Type[:]) != palmDBType || string(h.Creator[:]) != palmDBCreator {
		return nil, drmcore.New(drmcore.BadHeader, "PalmDB type/creator is not BOOK/MOBI")
	}
	return h, nil
}

// ParseRecordEntries reads the N record index descriptors immediately
// following the PDB header.
func ParseRecordEntries(data []byte, n int) ([]RecordEntry, error) {
	start := PalmDBHeaderSize
	end := start + n*RecordEntrySize
	if end > len(data) {
		return nil, drmcore.New(drmcore.Io, "short read parsing record index")
	}
	entries := make([]RecordEntry, n)
	for i := 0; i < n; i++ {
		off := start + i*RecordEntrySize
		offset, err := byteutil.Uint32(data, off)
		if err != nil {
			return nil, drmcore.Wrap(drmcore.Io, "parsing record entry offset", err)
		}
		attrID, err := byteutil.Uint32(data, off+4)
		if err != nil {
			return nil, drmcore.Wrap(drmcore.Io, "parsing record entry attr/id", err)
		}
		entries[i] = RecordEntry{Offset: offset, AttrID: attrID}
	}
	return entries, nil
}

// putHeader serializes h into the first 78 bytes of dst; used by Rewrite.
func putHeader(dst []byte, h *PalmDBHeader) {
	copy(dst[0:32], h.Name[:])
	byteutil.PutUint16(dst, 32, h.Attributes)
	byteutil.PutUint16(dst, 34, h.Version)
	byteutil.PutUint32(dst, 36, h.CreationDate)
	byteutil.PutUint32(dst, 40, h.ModificationDate)
	byteutil.PutUint32(dst, 44, h.LastBackupDate)
	byteutil.PutUint32(dst, 48, h.ModificationNumber)
	byteutil.PutUint32(dst, 52, h.AppInfoOffset)
	byteutil.PutUint32(dst, 56, h.SortInfoOffset)
	copy(dst[60:64], h.Type[:])
	copy(dst[64:68], h.Creator[:])
	byteutil.PutUint32(dst, 68, h.UniqueIDSeed)
	byteutil.PutUint32(dst, 72, h.NextRecordListID)
	byteutil.PutUint16(dst, 76, h.NumRecords)
}

func putRecordEntries(dst []byte, entries []RecordEntry) {
	for i, e := range entries {
		off := i * RecordEntrySize
		byteutil.PutUint32(dst, off, e.Offset)
		byteutil.PutUint32(dst, off+4, e.AttrID)
	}
}
