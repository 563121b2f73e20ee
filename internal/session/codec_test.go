package session

import (
	"testing"

	"github.com/google/uuid"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	s := NewSigner("k")
	for i := 0; i < 20; i++ {
		id := uuid.NewString()
		tag := s.Sign(id)

		got, ok := Decode(Encode(id, tag))
		if !ok {
			t.Fatalf("Decode(Encode(%q, %q)) failed", id, tag)
		}
		if got.MemberID != id || got.Tag != tag {
			t.Errorf("got %+v, expected {%s %s}", got, id, tag)
		}
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []string{
		"",
		"no-delimiter",
		".tag-only",
		"member-only.",
		".",
		"a.b.c",
		"member..tag",
	}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			if _, ok := Decode(raw); ok {
				t.Errorf("Decode(%q) should fail", raw)
			}
		})
	}
}
