package pid

import "testing"

func TestParseRecords(t *testing.T) {
	raw := []byte("firstKey:firstValue{secondKey:secondValue{short:ab")
	s := Parse(raw)

	if v, ok := s.Get("firstKey"); !ok || v != "firstValue" {
		t.Errorf("firstKey = %q, %v", v, ok)
	}
	if v, ok := s.Get("secondKey"); !ok || v != "secondValue" {
		t.Errorf("secondKey = %q, %v", v, ok)
	}
	if v, ok := s.Get("short"); !ok || v != "ab" {
		t.Errorf("short = %q, %v, want \"ab\", true", v, ok)
	}
}

func TestParseDiscardsTinyRecords(t *testing.T) {
	raw := []byte("a:bc{{:{x")
	s := Parse(raw)
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (only a:bc survives)", s.Len())
	}
}

func TestParseKeyOrderPreserved(t *testing.T) {
	raw := []byte("z:1{a:2{m:3")
	s := Parse(raw)
	want := []string{"z", "a", "m"}
	got := s.Keys()
	if len(got) != len(want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseEmpty(t *testing.T) {
	s := Parse(nil)
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}
