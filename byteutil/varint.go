package byteutil

import "errors"

// ErrBadVarint is returned when a Topaz variable-length integer cannot be
// decoded from the supplied bytes (truncated stream, no terminator byte
// found before the slice ends).
var ErrBadVarint = errors.New("byteutil: malformed varint")

// EncodeVarint encodes n using the Topaz 7-bit big-endian scheme: the
// magnitude is emitted LSB-group first with the continuation bit (0x80)
// set on every group but the first emitted one, the emitted bytes are
// then reversed into MSB-first wire order, and a trailing 0xFF marks a
// negative value.
func EncodeVarint(n int32) []byte {
	neg := n < 0
	mag := uint32(n)
	if neg {
		mag = uint32(-n)
	}

	var chunks []byte
	flag := byte(0)
	for {
		chunks = append(chunks, byte(mag&0x7F)|flag)
		mag >>= 7
		flag = 0x80
		if mag == 0 {
			break
		}
	}

	out := make([]byte, len(chunks))
	for i, c := range chunks {
		out[len(chunks)-1-i] = c
	}
	if neg {
		out = append(out, 0xFF)
	}
	return out
}

// DecodeVarint decodes a Topaz variable-length integer from the start of
// data, returning the value and the number of bytes consumed.
func DecodeVarint(data []byte) (int32, int, error) {
	pos := 0
	var val uint32
	for {
		if pos >= len(data) {
			return 0, 0, ErrBadVarint
		}
		b := data[pos]
		pos++
		val = val<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			break
		}
	}

	if pos < len(data) && data[pos] == 0xFF {
		pos++
		return -int32(val), pos, nil
	}
	return int32(val), pos, nil
}
