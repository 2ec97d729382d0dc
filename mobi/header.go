package mobi

import (
	"github.com/htol/kpcstrip/byteutil"
	"github.com/htol/kpcstrip/drmcore"
)

// Fixed byte offsets within record 0, covering the 16-byte PalmDoc header
// followed by the Mobi header.
const (
	offCompression    = 0
	offTextLength     = 4
	offRecordCount    = 8
	offRecordSize     = 10
	offEncryptionType = 12

	offMobiMagic   = 16
	offHeaderLen   = 20
	offMobiType    = 24
	offTextEncode  = 28
	offExthFlags   = 128
	offDrmOffset   = 168
	offDrmCount    = 172
	offDrmSize     = 176
	offDrmFlags    = 180
	offExtraFlags  = 242
	minLenForExtra = 0xE4

	exthFlagHasEXTH = 0x40
)

// Header holds the fields of record 0's PalmDoc+Mobi header that the
// engine inspects or mutates. Everything else in record 0 is left as raw
// bytes and passed through untouched.
type Header struct {
	Compression    uint16
	TextLength     uint32
	RecordCount    uint16
	RecordSize     uint16
	EncryptionType uint16

	MobiType      uint32
	TextEncoding  uint32
	HeaderLength  uint32
	ExthFlags     uint32
	DrmOffset     uint32
	DrmCount      uint32
	DrmSize       uint32
	DrmFlags      uint32
	ExtraDataFlags uint16

	// ExthOffset is the absolute offset, within record 0, of the EXTH
	// header that immediately follows the Mobi header.
	ExthOffset int
}

// ParseHeader reads and validates the PalmDoc+Mobi header from record 0.
// Per the DRM-removal contract it requires encryption type 2, a MOBI
// magic, the EXTH-present flag, and at least one DRM cookie.
func ParseHeader(record0 []byte) (*Header, error) {
	if len(record0) < offHeaderLen+4 {
		return nil, drmcore.New(drmcore.Io, "short read parsing Mobi header")
	}

	h := &Header{}
	var err error
	must16 := func(off int) uint16 {
		v, e := byteutil.Uint16(record0, off)
		if e != nil {
			err = e
		}
		return v
	}
	must32 := func(off int) uint32 {
		v, e := byteutil.Uint32(record0, off)
		if e != nil {
			err = e
		}
		return v
	}

	h.Compression = must16(offCompression)
	h.TextLength = must32(offTextLength)
	h.RecordCount = must16(offRecordCount)
	h.RecordSize = must16(offRecordSize)
	h.EncryptionType = must16(offEncryptionType)
	magic := record0[offMobiMagic : offMobiMagic+4]
	h.HeaderLength = must32(offHeaderLen)
	h.MobiType = must32(offMobiType)
	h.TextEncoding = must32(offTextEncode)
	if err != nil {
		return nil, drmcore.Wrap(drmcore.Io, "parsing Mobi header fields", err)
	}

	if string(magic) != "MOBI" {
		return nil, drmcore.New(drmcore.BadHeader, "Mobi header magic mismatch")
	}
	if h.EncryptionType != 2 {
		return nil, drmcore.New(drmcore.NotEncrypted, "encryption type is not 2")
	}

	if len(record0) < offDrmFlags+4 {
		return nil, drmcore.New(drmcore.Io, "short read parsing DRM fields")
	}
	h.ExthFlags = must32(offExthFlags)
	h.DrmOffset = must32(offDrmOffset)
	h.DrmCount = must32(offDrmCount)
	h.DrmSize = must32(offDrmSize)
	h.DrmFlags = must32(offDrmFlags)
	if err != nil {
		return nil, drmcore.Wrap(drmcore.Io, "parsing DRM fields", err)
	}

	if h.ExthFlags&exthFlagHasEXTH == 0 {
		return nil, drmcore.New(drmcore.BadHeader, "EXTH-present flag not set")
	}
	if h.DrmCount == 0 {
		return nil, drmcore.New(drmcore.NotEncrypted, "no DRM cookies present")
	}

	if h.HeaderLength >= minLenForExtra {
		if len(record0) >= offExtraFlags+2 {
			h.ExtraDataFlags = must16(offExtraFlags)
			if err != nil {
				return nil, drmcore.Wrap(drmcore.Io, "parsing extra data flags", err)
			}
		}
	}

	h.ExthOffset = offMobiMagic + int(h.HeaderLength)
	return h, nil
}

// ZeroDRM clears the DRM region described by h within record0 and resets
// the header fields that advertise encryption, in place.
func (h *Header) ZeroDRM(record0 []byte) {
	drmRegionEnd := int(h.DrmOffset) + int(h.DrmSize)
	if int(h.DrmOffset) < len(record0) && drmRegionEnd <= len(record0) {
		for i := int(h.DrmOffset); i < drmRegionEnd; i++ {
			record0[i] = 0
		}
	}

	byteutil.PutUint16(record0, offEncryptionType, 0)
	byteutil.PutUint32(record0, offDrmOffset, 0xFFFFFFFF)
	byteutil.PutUint32(record0, offDrmCount, 0)
	byteutil.PutUint32(record0, offDrmSize, 0)
	byteutil.PutUint32(record0, offDrmFlags, 0)

	h.EncryptionType = 0
	h.DrmOffset = 0xFFFFFFFF
	h.DrmCount = 0
	h.DrmSize = 0
	h.DrmFlags = 0
}
