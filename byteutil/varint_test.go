package byteutil

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestEncodeVarintVectors(t *testing.T) {
	tests := []struct {
		n    int32
		want []byte
	}{
		{1, []byte{0x01}},
		{127, []byte{0x7F}},
		{128, []byte{0x81, 0x00}},
		{16384, []byte{0x81, 0x80, 0x00}},
		{-1, []byte{0x01, 0xFF}},
	}
	for _, tt := range tests {
		got := EncodeVarint(tt.n)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("EncodeVarint(%d) = % X, want % X", tt.n, got, tt.want)
		}
	}
}

func TestVarintRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		n := int32(r.Uint32() >> 1)
		if r.Intn(2) == 0 {
			n = -n
		}
		enc := EncodeVarint(n)
		got, consumed, err := DecodeVarint(enc)
		if err != nil {
			t.Fatalf("decode(%d) failed: %v", n, err)
		}
		if consumed != len(enc) {
			t.Errorf("decode(%d) consumed %d, want %d", n, consumed, len(enc))
		}
		if got != n {
			t.Errorf("round trip %d -> % X -> %d", n, enc, got)
		}
	}
}

func TestDecodeVarintShort(t *testing.T) {
	if _, _, err := DecodeVarint([]byte{0x80}); err != ErrBadVarint {
		t.Fatalf("expected ErrBadVarint, got %v", err)
	}
	if _, _, err := DecodeVarint(nil); err != ErrBadVarint {
		t.Fatalf("expected ErrBadVarint, got %v", err)
	}
}
