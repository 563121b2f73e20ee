package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer computes and checks HMAC-SHA256 tags over member ids. It holds no
// mutable state and is safe for concurrent use.
type Signer struct {
	key []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{key: []byte(secret)}
}

// Sign returns the hex-encoded tag for memberID.
func (s *Signer) Sign(memberID string) string {
	return hex.EncodeToString(s.mac(memberID))
}

// Verify reports whether tag is the valid hex tag for memberID. Malformed or
// wrong-length tags return false.
func (s *Signer) Verify(memberID, tag string) bool {
	got, err := hex.DecodeString(tag)
	if err != nil || len(got) != sha256.Size {
		return false
	}
	return hmac.Equal(got, s.mac(memberID))
}

func (s *Signer) mac(memberID string) []byte {
	m := hmac.New(sha256.New, s.key)
	m.Write([]byte(memberID))
	return m.Sum(nil)
}
