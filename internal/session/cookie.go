package session

import (
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	CookiePrefix  = "group_session_"
	DefaultMaxAge = 30 * 24 * time.Hour
)

var slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,78}[a-z0-9])?$`)

// ValidSlug reports whether slug can be used as a public group identifier
// and, through CookieName, as part of a cookie name.
func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

// CookieName returns the per-group session cookie name.
func CookieName(slug string) string {
	return CookiePrefix + slug
}

// Principal is a member identity proven by a valid session cookie.
type Principal struct {
	slug     string
	memberID string
}

func (p Principal) Slug() string     { return p.slug }
func (p Principal) MemberID() string { return p.memberID }

// Manager issues, reads and clears group session cookies.
type Manager struct {
	signer *Signer
	secure bool
	maxAge time.Duration
}

// NewManager creates a cookie manager. secure should be true in production so
// cookies are only sent over HTTPS.
func NewManager(signer *Signer, secure bool, maxAge time.Duration) *Manager {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Manager{signer: signer, secure: secure, maxAge: maxAge}
}

// Issue stores a freshly signed credential for memberID in the group's cookie.
func (m *Manager) Issue(c *gin.Context, slug, memberID string) error {
	if !ValidSlug(slug) {
		return fmt.Errorf("invalid group slug %q", slug)
	}
	value := Encode(memberID, m.signer.Sign(memberID))
	m.set(c, slug, value, int(m.maxAge/time.Second))
	return nil
}

// Read returns the raw cookie value for the group, if any.
func (m *Manager) Read(c *gin.Context, slug string) (string, bool) {
	if !ValidSlug(slug) {
		return "", false
	}
	raw, err := c.Cookie(CookieName(slug))
	if err != nil || raw == "" {
		return "", false
	}
	return raw, true
}

// Clear deletes the group's cookie.
func (m *Manager) Clear(c *gin.Context, slug string) {
	if !ValidSlug(slug) {
		return
	}
	m.set(c, slug, "", -1)
}

// Authenticate checks that the request carries a valid credential for the
// group whose member id equals claimedMemberID. The id comparison happens
// before the signature check so a cookie for one member can never be used to
// act as another.
func (m *Manager) Authenticate(c *gin.Context, slug, claimedMemberID string) (Principal, bool) {
	if claimedMemberID == "" {
		return Principal{}, false
	}
	raw, ok := m.Read(c, slug)
	if !ok {
		return Principal{}, false
	}
	cred, ok := Decode(raw)
	if !ok {
		return Principal{}, false
	}
	if cred.MemberID != claimedMemberID {
		return Principal{}, false
	}
	if !m.signer.Verify(claimedMemberID, cred.Tag) {
		return Principal{}, false
	}
	return Principal{slug: slug, memberID: claimedMemberID}, true
}

// Current returns whichever member the group's cookie proves, without a
// claimed id. Used for read-only "who am I" lookups.
func (m *Manager) Current(c *gin.Context, slug string) (Principal, bool) {
	raw, ok := m.Read(c, slug)
	if !ok {
		return Principal{}, false
	}
	cred, ok := Decode(raw)
	if !ok {
		return Principal{}, false
	}
	return m.Authenticate(c, slug, cred.MemberID)
}

func (m *Manager) set(c *gin.Context, slug, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName(slug), value, maxAge, "/", "", m.secure, true)
}
