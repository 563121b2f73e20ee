package session

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSigner_SignVerifyRoundTrip(t *testing.T) {
	s := NewSigner("test-secret")

	for i := 0; i < 50; i++ {
		id := uuid.NewString()
		if !s.Verify(id, s.Sign(id)) {
			t.Fatalf("Verify(%s, Sign(%s)) = false", id, id)
		}
	}
}

func TestSigner_TagIsHexSHA256(t *testing.T) {
	tag := NewSigner("k").Sign("member")
	if len(tag) != 64 {
		t.Errorf("tag length = %d, expected 64", len(tag))
	}
	if strings.Trim(tag, "0123456789abcdef") != "" {
		t.Errorf("tag %q is not lowercase hex", tag)
	}
}

func TestSigner_DifferentMembers(t *testing.T) {
	s := NewSigner("test-secret")
	a, b := uuid.NewString(), uuid.NewString()

	if s.Verify(a, s.Sign(b)) {
		t.Error("tag for one member must not verify for another")
	}
}

func TestSigner_DifferentSecrets(t *testing.T) {
	id := uuid.NewString()
	tag := NewSigner("secret-one").Sign(id)

	if NewSigner("secret-two").Verify(id, tag) {
		t.Error("tag must not verify under a different secret")
	}
}

func TestSigner_TamperedTag(t *testing.T) {
	s := NewSigner("test-secret")
	id := uuid.NewString()
	tag := s.Sign(id)

	for i := 0; i < len(tag); i++ {
		b := []byte(tag)
		if b[i] == 'a' {
			b[i] = 'b'
		} else {
			b[i] = 'a'
		}
		if s.Verify(id, string(b)) {
			t.Fatalf("tampered tag (position %d) verified", i)
		}
	}
}

func TestSigner_MalformedTags(t *testing.T) {
	s := NewSigner("test-secret")
	id := uuid.NewString()
	tag := s.Sign(id)

	malformed := []string{
		"",
		"zz",
		tag[:len(tag)-2],
		tag + "00",
		strings.ToUpper(tag[:10]) + "not-hex",
		"../../etc/passwd",
	}
	for _, m := range malformed {
		if s.Verify(id, m) {
			t.Errorf("Verify accepted malformed tag %q", m)
		}
	}
}
