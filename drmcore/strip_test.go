package drmcore

import (
	"bytes"
	"testing"

	"github.com/htol/kpcstrip/byteutil"
	"github.com/htol/kpcstrip/mobi"
	"github.com/htol/kpcstrip/pc1"
	"github.com/htol/kpcstrip/topaz"
)

// Fixed record-0 byte offsets, matching mobi's internal header layout.
const (
	offCompression    = 0
	offTextLength     = 4
	offRecordCount    = 8
	offRecordSize     = 10
	offEncryptionType = 12
	offMobiMagic      = 16
	offHeaderLen      = 20
	offMobiType       = 24
	offTextEncode     = 28
	offExthFlags      = 128
	offDrmOffset      = 168
	offDrmCount       = 172
	offDrmSize        = 176
	offDrmFlags       = 180
	offExtraFlags     = 242
	exthFlagHasEXTH   = 0x40
)

var mobiKeyvec1 = [16]byte{0x72, 0x38, 0x33, 0xB0, 0xB4, 0xF2, 0xE3, 0xCA, 0xDF, 0x09, 0x01, 0xD6, 0xE2, 0xE0, 0x3F, 0x96}

func buildMobiFixture(t *testing.T, pid8 string, finalKey [16]byte, plain []byte) []byte {
	t.Helper()

	const (
		record0Len   = 460
		drmOffset    = 400
		exthOffset   = 248
		headerLength = 232
	)

	record0 := make([]byte, record0Len)
	byteutil.PutUint16(record0, offCompression, 1)
	byteutil.PutUint32(record0, offTextLength, uint32(len(plain)))
	byteutil.PutUint16(record0, offRecordCount, 1)
	byteutil.PutUint16(record0, offRecordSize, 4096)
	byteutil.PutUint16(record0, offEncryptionType, 2)

	copy(record0[offMobiMagic:offMobiMagic+4], "MOBI")
	byteutil.PutUint32(record0, offHeaderLen, headerLength)
	byteutil.PutUint32(record0, offMobiType, 2)
	byteutil.PutUint32(record0, offTextEncode, 65001)
	byteutil.PutUint32(record0, offExthFlags, exthFlagHasEXTH)
	byteutil.PutUint32(record0, offDrmOffset, drmOffset)
	byteutil.PutUint32(record0, offDrmCount, 1)
	byteutil.PutUint32(record0, offDrmSize, mobi.DrmCookieSize)
	byteutil.PutUint32(record0, offDrmFlags, 0)
	byteutil.PutUint16(record0, offExtraFlags, 0)

	copy(record0[exthOffset:exthOffset+4], "EXTH")
	byteutil.PutUint32(record0, exthOffset+4, 20)
	byteutil.PutUint32(record0, exthOffset+8, 1)
	byteutil.PutUint32(record0, exthOffset+12, mobi.ExthTokenPointer)
	byteutil.PutUint32(record0, exthOffset+16, 12)
	copy(record0[exthOffset+20:exthOffset+24], "TOK1")

	var tempKeyPlain [16]byte
	copy(tempKeyPlain[:], pid8)
	tempKey := [16]byte(pc1.Encrypt(mobiKeyvec1, tempKeyPlain[:]))
	var cksum byte
	for _, b := range tempKey {
		cksum += b
	}

	const verification = 0xAABBCCDD
	const flagsRaw = 0x00000001

	plainCookie := make([]byte, 32)
	byteutil.PutUint32(plainCookie, 0, verification)
	byteutil.PutUint32(plainCookie, 4, flagsRaw)
	copy(plainCookie[8:24], finalKey[:])

	cookie := pc1.Encrypt(tempKey, plainCookie)

	entry := make([]byte, mobi.DrmCookieSize)
	byteutil.PutUint32(entry, 0, verification)
	entry[12] = cksum
	copy(entry[16:48], cookie)
	copy(record0[drmOffset:drmOffset+mobi.DrmCookieSize], entry)

	cipherText := pc1.Encrypt(finalKey, plain)

	const numRecords = 2
	indexSize := numRecords * mobi.RecordEntrySize
	record0Start := mobi.PalmDBHeaderSize + indexSize + 2
	record1Start := record0Start + len(record0)

	out := make([]byte, record1Start+len(cipherText))
	copy(out[60:64], "BOOK")
	copy(out[64:68], "MOBI")
	byteutil.PutUint16(out, 76, numRecords)

	byteutil.PutUint32(out, mobi.PalmDBHeaderSize, uint32(record0Start))
	byteutil.PutUint32(out, mobi.PalmDBHeaderSize+8, uint32(record1Start))

	copy(out[record0Start:], record0)
	copy(out[record1Start:], cipherText)

	return out
}

func buildTopazFixture(t *testing.T, pid8 string, bookKey, plain []byte) []byte {
	t.Helper()

	stringField := func(buf *bytes.Buffer, s string) {
		buf.Write(byteutil.EncodeVarint(int32(len(s))))
		buf.WriteString(s)
	}

	var metadataPayload bytes.Buffer
	metadataPayload.Write(byteutil.EncodeVarint(2))
	stringField(&metadataPayload, "keys")
	stringField(&metadataPayload, "K1")
	stringField(&metadataPayload, "K1")
	stringField(&metadataPayload, "ignored-value")

	dkeyPlain := make([]byte, 0, 24)
	dkeyPlain = append(dkeyPlain, 'P', 'I', 'D', 8)
	dkeyPlain = append(dkeyPlain, pid8...)
	dkeyPlain = append(dkeyPlain, 8)
	dkeyPlain = append(dkeyPlain, bookKey...)
	dkeyPlain = append(dkeyPlain, 'p', 'i', 'd')
	dkeyCipher := topaz.EncryptBytes([]byte(pid8), dkeyPlain)

	var dkeyPayload bytes.Buffer
	dkeyPayload.WriteByte(1)
	dkeyPayload.WriteByte(byte(len(dkeyCipher)))
	dkeyPayload.Write(dkeyCipher)

	contentCipher := topaz.EncryptBytes(bookKey, plain)

	type header struct {
		tag        string
		recordIdx  int32
		payload    []byte
		compressed int32
	}
	body := func(h header) []byte {
		var buf bytes.Buffer
		stringField(&buf, h.tag)
		buf.Write(byteutil.EncodeVarint(h.recordIdx))
		buf.Write(h.payload)
		return buf.Bytes()
	}

	headers := []header{
		{tag: "metadata", recordIdx: 0, payload: metadataPayload.Bytes()},
		{tag: "dkey", recordIdx: 0, payload: dkeyPayload.Bytes()},
		{tag: "content", recordIdx: -1, payload: contentCipher},
	}

	var file bytes.Buffer
	file.WriteString("TPZ0")
	file.WriteByte(byte(len(headers)))

	bodies := make([][]byte, len(headers))
	offset := int32(0)
	for i, h := range headers {
		b := body(h)
		bodies[i] = b

		file.WriteByte(0x63)
		stringField(&file, h.tag)
		file.Write(byteutil.EncodeVarint(1))
		file.Write(byteutil.EncodeVarint(offset))
		file.Write(byteutil.EncodeVarint(int32(len(h.payload))))
		file.Write(byteutil.EncodeVarint(h.compressed))
		offset += int32(len(b))
	}
	file.WriteByte(0x64)

	for _, b := range bodies {
		file.Write(b)
	}

	return file.Bytes()
}

func TestStripMobi(t *testing.T) {
	var finalKey [16]byte
	for i := range finalKey {
		finalKey[i] = byte(i * 5)
	}
	plain := []byte("a quiet kindle book")
	data := buildMobiFixture(t, "12345678", finalKey, plain)

	var out bytes.Buffer
	err := Strip(data, &out, Options{ExtraPIDs: []string{"wrongpid0", "12345678"}})
	if err != nil {
		t.Fatalf("Strip: %v", err)
	}

	gotText := out.Bytes()[out.Len()-len(plain):]
	if !bytes.Equal(gotText, plain) {
		t.Errorf("stripped text = %q, want %q", gotText, plain)
	}
}

func TestStripTopaz(t *testing.T) {
	bookKey := []byte("BOOKKEY!")
	plain := []byte("a quiet topaz book")
	data := buildTopazFixture(t, "ABCDEFGH", bookKey, plain)

	var out bytes.Buffer
	err := Strip(data, &out, Options{ExtraPIDs: []string{"WRONGPID", "ABCDEFGH"}})
	if err != nil {
		t.Fatalf("Strip: %v", err)
	}

	c, err := topaz.Parse(out.Bytes())
	if err != nil {
		t.Fatalf("Parse of stripped output: %v", err)
	}
	got, err := c.Get("content", 0, false, nil)
	if err != nil {
		t.Fatalf("Get(content): %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("stripped content = %q, want %q", got, plain)
	}
}

func TestStripUnknownFormat(t *testing.T) {
	var out bytes.Buffer
	err := Strip([]byte("not a book"), &out, Options{})
	if !IsIo(err) && !IsUnknownFormat(err) {
		t.Fatalf("Strip: got %v, want Io or UnknownFormat", err)
	}
}

func TestStripNoMatchingPID(t *testing.T) {
	var finalKey [16]byte
	data := buildMobiFixture(t, "12345678", finalKey, []byte("x"))

	var out bytes.Buffer
	err := Strip(data, &out, Options{ExtraPIDs: []string{"nomatch1"}})
	if err == nil {
		t.Fatal("Strip: expected error for non-matching PID")
	}
	if !IsNoKey(err) {
		t.Errorf("Strip: got %v, want NoKey", err)
	}
}
