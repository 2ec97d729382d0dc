package topaz

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/htol/kpcstrip/byteutil"
	"github.com/htol/kpcstrip/drmcore"
)

const (
	tagByte   = 0x63
	headerEnd = 0x64
)

// subRecord is one {offset, length, compressed} triple within a header
// record, all relative to bodyOffset.
type subRecord struct {
	Offset     int32
	Length     int32
	Compressed int32
}

type headerRecord struct {
	Tag        string
	SubRecords []subRecord
}

// Container is a parsed TPZ0 file: the header-record table, the metadata
// mapping, and the body offset every sub-record is relative to.
type Container struct {
	data       []byte
	Headers    []headerRecord
	byName     map[string]int
	bodyOffset int
	Metadata   map[string]string
}

func readString(data []byte, pos int) (string, int, error) {
	n, next, err := readVarint(data, pos)
	if err != nil {
		return "", 0, err
	}
	if n < 0 || next+int(n) > len(data) {
		return "", 0, drmcore.New(drmcore.Io, "short read for tag string")
	}
	return string(data[next : next+int(n)]), next + int(n), nil
}

func readVarint(data []byte, pos int) (int32, int, error) {
	if pos < 0 || pos > len(data) {
		return 0, 0, drmcore.New(drmcore.Io, "varint read past end of buffer")
	}
	n, adv, err := byteutil.DecodeVarint(data[pos:])
	if err != nil {
		return 0, 0, drmcore.Wrap(drmcore.BadVarint, "decoding varint", err)
	}
	return n, pos + adv, nil
}

// Parse reads the header-record table, the 0x64 terminator, and the
// metadata sub-record from a full in-memory TPZ0 file.
func Parse(data []byte) (*Container, error) {
	if len(data) < 5 || string(data[0:4]) != "TPZ0" {
		return nil, drmcore.New(drmcore.BadHeader, "Topaz magic mismatch")
	}
	k := int(data[4])
	pos := 5

	headers := make([]headerRecord, 0, k)
	byName := make(map[string]int, k)
	for i := 0; i < k; i++ {
		if pos >= len(data) || data[pos] != tagByte {
			return nil, drmcore.New(drmcore.TagMismatch, "expected header record tag byte 0x63")
		}
		pos++

		tag, next, err := readString(data, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		n, next, err := readVarint(data, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		subs := make([]subRecord, 0, n)
		for j := int32(0); j < n; j++ {
			off, p, err := readVarint(data, pos)
			if err != nil {
				return nil, err
			}
			length, p, err := readVarint(data, p)
			if err != nil {
				return nil, err
			}
			comp, p, err := readVarint(data, p)
			if err != nil {
				return nil, err
			}
			pos = p
			subs = append(subs, subRecord{Offset: off, Length: length, Compressed: comp})
		}

		byName[tag] = len(headers)
		headers = append(headers, headerRecord{Tag: tag, SubRecords: subs})
	}

	if pos >= len(data) || data[pos] != headerEnd {
		return nil, drmcore.New(drmcore.TagMismatch, "missing header terminator 0x64")
	}
	pos++

	c := &Container{data: data, Headers: headers, byName: byName, bodyOffset: pos}
	if err := c.parseMetadata(); err != nil {
		return nil, err
	}
	return c, nil
}

// parseMetadata reads the metadata sub-record through the same tag +
// record-index envelope every other payload uses, so Rewrite can treat
// all headers uniformly through get.
func (c *Container) parseMetadata() error {
	if _, ok := c.byName["metadata"]; !ok {
		return drmcore.New(drmcore.TagMismatch, "missing metadata header")
	}
	blob, err := c.get("metadata", 0, false, nil)
	if err != nil {
		return err
	}

	n, pos, err := readVarint(blob, 0)
	if err != nil {
		return err
	}

	m := make(map[string]string, n)
	for i := int32(0); i < n; i++ {
		key, p, err := readString(blob, pos)
		if err != nil {
			return err
		}
		val, p, err := readString(blob, p)
		if err != nil {
			return err
		}
		pos = p
		m[key] = val
	}
	c.Metadata = m
	return nil
}

// KeysMetadata returns the keysPtr/keysVal pair the book-PID derivation
// needs, read from the metadata mapping's "keys" indirection.
func (c *Container) KeysMetadata() (keysPtr, keysVal string, err error) {
	keysPtr, ok := c.Metadata["keys"]
	if !ok {
		return "", "", drmcore.New(drmcore.TagMismatch, "metadata has no keys entry")
	}
	keysVal, ok = c.Metadata[keysPtr]
	if !ok {
		return "", "", drmcore.New(drmcore.TagMismatch, "metadata missing value for keys pointer")
	}
	return keysPtr, keysVal, nil
}

// Get returns the index-th sub-record payload of header name, decrypting
// it with key if required and optionally inflating it; key may be nil for
// records that are not encrypted (e.g. "metadata").
func (c *Container) Get(name string, index int, explode bool, key []byte) ([]byte, error) {
	return c.get(name, index, explode, key)
}

// get locates the index-th sub-record of header name, validates its
// self-describing tag and record index, and returns its payload: decrypted
// with key if the record index sign marks it encrypted, and additionally
// zlib-inflated when explode is set and the record is compressed.
func (c *Container) get(name string, index int, explode bool, key []byte) ([]byte, error) {
	hidx, ok := c.byName[name]
	if !ok {
		return nil, drmcore.New(drmcore.TagMismatch, "unknown header "+name)
	}
	h := c.Headers[hidx]
	if index < 0 || index >= len(h.SubRecords) {
		return nil, drmcore.New(drmcore.TagMismatch, "sub-record index out of range")
	}
	sub := h.SubRecords[index]

	pos := c.bodyOffset + int(sub.Offset)
	tag, pos, err := readString(c.data, pos)
	if err != nil {
		return nil, err
	}
	if tag != name {
		return nil, drmcore.New(drmcore.TagMismatch, "payload tag mismatch")
	}

	recordIndex, pos, err := readVarint(c.data, pos)
	if err != nil {
		return nil, err
	}
	encrypted := false
	if recordIndex < 0 {
		encrypted = true
		recordIndex = -recordIndex - 1
	}
	if int(recordIndex) != index {
		return nil, drmcore.New(drmcore.TagMismatch, "record index mismatch")
	}

	readLen := int(sub.Compressed)
	if readLen == 0 {
		readLen = int(sub.Length)
	}
	if pos < 0 || readLen < 0 || pos+readLen > len(c.data) {
		return nil, drmcore.New(drmcore.Io, "short read for payload blob")
	}
	blob := make([]byte, readLen)
	copy(blob, c.data[pos:pos+readLen])

	if encrypted {
		if len(key) == 0 {
			return nil, drmcore.New(drmcore.NoKey, "payload is encrypted but no book key was supplied")
		}
		NewCipher(key).Decrypt(blob, blob)
	}

	if explode && sub.Compressed != 0 {
		r, err := zlib.NewReader(bytes.NewReader(blob))
		if err != nil {
			return nil, drmcore.Wrap(drmcore.Inflate, "opening zlib stream", err)
		}
		defer r.Close()
		out := make([]byte, sub.Length)
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, drmcore.Wrap(drmcore.Inflate, "inflating payload", err)
		}
		return out, nil
	}
	return blob, nil
}

func validDkeyRecord(plain []byte, pid8 string) bool {
	if len(plain) < 24 {
		return false
	}
	if string(plain[0:3]) != "PID" || plain[3] != 8 || plain[12] != 8 {
		return false
	}
	if string(plain[21:24]) != "pid" {
		return false
	}
	return bytes.Equal(plain[4:12], []byte(pid8))
}

// RecoverBookKey walks the dkey record's sub-records, trying each
// candidate PID's first 8 bytes as the topaz cipher key, and returns the
// 8-byte book key from the first sub-record that validates.
func (c *Container) RecoverBookKey(candidates []string) ([]byte, error) {
	if _, ok := c.byName["dkey"]; !ok {
		return nil, drmcore.New(drmcore.NotEncrypted, "no dkey record")
	}
	dkeyBlob, err := c.get("dkey", 0, false, nil)
	if err != nil {
		return nil, err
	}
	if len(dkeyBlob) == 0 {
		return nil, drmcore.New(drmcore.BadHeader, "empty dkey record")
	}

	m := int(dkeyBlob[0])
	pos := 1
	for i := 0; i < m; i++ {
		if pos >= len(dkeyBlob) {
			return nil, drmcore.New(drmcore.Io, "short read for dkey sub-record length")
		}
		l := int(dkeyBlob[pos])
		pos++
		if pos+l > len(dkeyBlob) {
			return nil, drmcore.New(drmcore.Io, "short read for dkey sub-record")
		}
		cipherBlob := dkeyBlob[pos : pos+l]
		pos += l

		for _, pid := range candidates {
			if len(pid) < 8 {
				continue
			}
			plain := make([]byte, l)
			NewCipher([]byte(pid[:8])).Decrypt(plain, cipherBlob)
			if validDkeyRecord(plain, pid[:8]) {
				return append([]byte(nil), plain[13:21]...), nil
			}
		}
	}
	return nil, drmcore.New(drmcore.NoKey, "no candidate PID matched a dkey sub-record")
}

// Rewrite emits a DRM-stripped copy of the container: every header except
// dkey is kept, each sub-record's payload is decrypted (if it was
// encrypted) and re-emitted with a non-negative record index. When
// explode is set, compressed sub-records are inflated on the way out and
// their compressed length is reset to 0; otherwise compression is left
// as-is. Dropping dkey is what destroys any future ability to re-derive
// the book key.
func (c *Container) Rewrite(w io.Writer, key []byte, explode bool) error {
	var headerBuf, bodyBuf bytes.Buffer

	kept := make([]headerRecord, 0, len(c.Headers))
	for _, h := range c.Headers {
		if h.Tag != "dkey" {
			kept = append(kept, h)
		}
	}

	headerBuf.WriteString("TPZ0")
	headerBuf.Write(byteutil.EncodeVarint(int32(len(kept))))

	for _, h := range kept {
		headerBuf.WriteByte(tagByte)
		headerBuf.Write(byteutil.EncodeVarint(int32(len(h.Tag))))
		headerBuf.WriteString(h.Tag)
		headerBuf.Write(byteutil.EncodeVarint(int32(len(h.SubRecords))))

		for j, sub := range h.SubRecords {
			inflate := explode && sub.Compressed != 0
			newOffset := int32(bodyBuf.Len())
			headerBuf.Write(byteutil.EncodeVarint(newOffset))

			blob, err := c.get(h.Tag, j, inflate, key)
			if err != nil {
				return err
			}

			bodyBuf.Write(byteutil.EncodeVarint(int32(len(h.Tag))))
			bodyBuf.WriteString(h.Tag)
			bodyBuf.Write(byteutil.EncodeVarint(int32(j)))
			bodyBuf.Write(blob)

			headerBuf.Write(byteutil.EncodeVarint(sub.Length))
			if inflate {
				headerBuf.Write(byteutil.EncodeVarint(0))
			} else {
				headerBuf.Write(byteutil.EncodeVarint(sub.Compressed))
			}
		}
	}
	headerBuf.WriteByte(headerEnd)

	if _, err := w.Write(headerBuf.Bytes()); err != nil {
		return drmcore.Wrap(drmcore.Io, "writing Topaz header stream", err)
	}
	if _, err := w.Write(bodyBuf.Bytes()); err != nil {
		return drmcore.Wrap(drmcore.Io, "writing Topaz body stream", err)
	}
	return nil
}
