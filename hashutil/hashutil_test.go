package hashutil

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestMD5Vector(t *testing.T) {
	got := MD5([]byte("abc"))
	want, _ := hex.DecodeString("900150983cd24fb0d6963f7d28e17f72")
	if !bytes.Equal(got[:], want) {
		t.Errorf("MD5(abc) = %x, want %x", got, want)
	}
}

func TestSHA1Vector(t *testing.T) {
	got := SHA1([]byte("abc"))
	want, _ := hex.DecodeString("a9993e364706816aba3e25717850c26c9cd0d89")
	if !bytes.Equal(got[:], want) {
		t.Errorf("SHA1(abc) = %x, want %x", got, want)
	}
}

func TestSHA1StreamMatchesOneShot(t *testing.T) {
	s := NewSHA1Stream()
	s.Write([]byte("ab"))
	s.Write([]byte("c"))
	got := s.Sum()
	want := SHA1([]byte("abc"))
	if got != want {
		t.Errorf("streaming sum %x != one-shot sum %x", got, want)
	}
}
