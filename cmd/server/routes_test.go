package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rdychk/rdychk/internal/config"
	"github.com/rdychk/rdychk/internal/models"
	"github.com/rdychk/rdychk/internal/session"
)

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	svc    *appServices
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "server.db")
	cfg.Session.Secret = "routes-test-secret"
	cfg.RateLimit.RPS = 1000
	cfg.RateLimit.Burst = 1000
	cfg.Log.Level = "error"

	svc, err := bootstrap(cfg)
	if err != nil {
		t.Fatalf("bootstrap() error = %v", err)
	}
	t.Cleanup(svc.shutdown)

	r := gin.New()
	registerRoutes(r, svc)
	return &testServer{t: t, router: r, svc: svc}
}

func (s *testServer) do(method, path string, body interface{}, cookies ...*http.Cookie) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, ck := range cookies {
		if ck != nil {
			req.AddCookie(ck)
		}
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			s.t.Fatalf("%s %s: bad envelope %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, env
}

type joined struct {
	member models.Member
	cookie *http.Cookie
}

func (s *testServer) join(slug, name string) joined {
	s.t.Helper()
	w, env := s.do("POST", "/api/groups/"+slug+"/join", map[string]string{"name": name})
	if w.Code != http.StatusOK {
		s.t.Fatalf("join %s: status %d %s", name, w.Code, w.Body.String())
	}
	var resp struct {
		Member models.Member `json:"member"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		s.t.Fatalf("join %s: decode member: %v", name, err)
	}

	var cookie *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == session.CookieName(slug) {
			cookie = ck
		}
	}
	if cookie == nil {
		s.t.Fatalf("join %s: no session cookie issued", name)
	}
	return joined{member: resp.Member, cookie: cookie}
}

func memberPath(slug, memberID, suffix string) string {
	return "/api/groups/" + slug + "/members/" + memberID + suffix
}

func TestEndToEnd_IdentityBinding(t *testing.T) {
	s := newTestServer(t)
	slug := "beach-party-ab12cd"
	if err := s.svc.db.Create(&models.Group{Slug: slug, Name: "Beach party", Type: models.GroupTypeInPerson}).Error; err != nil {
		t.Fatal(err)
	}

	a := s.join(slug, "Ana")
	if a.member.Role != models.RoleAdmin {
		t.Errorf("first member role = %s, expected admin", a.member.Role)
	}
	if !a.cookie.HttpOnly || a.cookie.MaxAge != 2592000 || a.cookie.Path != "/" {
		t.Errorf("unexpected cookie attributes %+v", a.cookie)
	}

	b := s.join(slug, "Ben")
	if b.member.Role != models.RoleMember {
		t.Errorf("second member role = %s, expected member", b.member.Role)
	}

	w, env := s.do("POST", memberPath(slug, a.member.ID, "/ready"), map[string]bool{"is_ready": true}, a.cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("A toggles own readiness: status %d %s", w.Code, w.Body.String())
	}
	var m models.Member
	if err := json.Unmarshal(env.Data, &m); err != nil {
		t.Fatalf("decode member: %v", err)
	}
	if !m.IsReady {
		t.Error("expected is_ready=true")
	}

	// B presents a valid cookie of its own while claiming to be A.
	w, env = s.do("POST", memberPath(slug, a.member.ID, "/ready"), map[string]bool{"is_ready": false}, b.cookie)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("forged toggle: status %d, expected 401", w.Code)
	}
	if env.Success || env.Error == "" {
		t.Errorf("unexpected envelope %+v", env)
	}

	w, _ = s.do("POST", memberPath(slug, a.member.ID, "/ready"), map[string]bool{"is_ready": false})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no cookie: status %d, expected 401", w.Code)
	}

	var stored models.Member
	s.svc.db.First(&stored, "id = ?", a.member.ID)
	if !stored.IsReady {
		t.Error("rejected requests must not change A's readiness")
	}
}

func TestEndToEnd_AdminActions(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do("POST", "/api/groups", map[string]string{"name": "Friday Drinks", "type": "in_person"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create group: status %d %s", w.Code, w.Body.String())
	}
	var group models.Group
	if err := json.Unmarshal(env.Data, &group); err != nil {
		t.Fatalf("decode group: %v", err)
	}
	if !strings.HasPrefix(group.Slug, "friday-drinks-") {
		t.Fatalf("unexpected slug %q", group.Slug)
	}
	slug := group.Slug

	a := s.join(slug, "Ana")
	b := s.join(slug, "Ben")

	w, _ = s.do("POST", memberPath(slug, b.member.ID, "/kick"), map[string]string{"target_id": a.member.ID}, b.cookie)
	if w.Code != http.StatusForbidden {
		t.Errorf("member kicking admin: status %d, expected 403", w.Code)
	}

	w, env = s.do("POST", memberPath(slug, a.member.ID, "/kick"), map[string]string{"target_id": a.member.ID}, a.cookie)
	if w.Code != http.StatusBadRequest || env.Error != "You cannot kick yourself" {
		t.Errorf("self kick: status %d error %q", w.Code, env.Error)
	}

	w, _ = s.do("PUT", memberPath(slug, b.member.ID, "/location"),
		map[string]interface{}{"location": map[string]string{"name": "Pier 7"}}, b.cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("member proposes location: status %d %s", w.Code, w.Body.String())
	}
	w, _ = s.do("POST", memberPath(slug, b.member.ID, "/vote"), map[string]int{"vote": 1}, b.cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("vote: status %d %s", w.Code, w.Body.String())
	}

	w, _ = s.do("POST", memberPath(slug, a.member.ID, "/kick"), map[string]string{"target_id": b.member.ID}, a.cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("admin kicks member: status %d %s", w.Code, w.Body.String())
	}

	// The kicked member's cookie is still validly signed but no longer acts.
	w, _ = s.do("POST", memberPath(slug, b.member.ID, "/ready"), map[string]bool{"is_ready": true}, b.cookie)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("kicked member: status %d, expected 401", w.Code)
	}

	w, env = s.do("GET", "/api/groups/"+slug, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("view group: status %d", w.Code)
	}
	var view struct {
		Members []models.Member  `json:"members"`
		Tally   models.VoteTally `json:"tally"`
	}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode group view: %v", err)
	}
	if len(view.Members) != 1 || view.Tally.Up != 0 {
		t.Errorf("after kick: members=%d tally=%+v", len(view.Members), view.Tally)
	}
}

func TestEndToEnd_SessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	slug := "office-lunch-99ff00"
	s.svc.db.Create(&models.Group{Slug: slug, Name: "Lunch"})

	w, env := s.do("GET", "/api/groups/"+slug+"/session", nil)
	if w.Code != http.StatusOK || !strings.Contains(string(env.Data), `"member":null`) {
		t.Errorf("anonymous whoami: %d %s", w.Code, env.Data)
	}

	a := s.join(slug, "Ana")
	_, env = s.do("GET", "/api/groups/"+slug+"/session", nil, a.cookie)
	if !strings.Contains(string(env.Data), a.member.ID) {
		t.Errorf("whoami should return Ana, got %s", env.Data)
	}

	w, _ = s.do("POST", "/api/groups/"+slug+"/reclaim", map[string]string{"member_id": a.member.ID})
	if w.Code != http.StatusOK {
		t.Errorf("reclaim: status %d %s", w.Code, w.Body.String())
	}

	w, _ = s.do("DELETE", memberPath(slug, a.member.ID, ""), nil, a.cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("leave: status %d %s", w.Code, w.Body.String())
	}
	cleared := false
	for _, ck := range w.Result().Cookies() {
		if ck.Name == session.CookieName(slug) && ck.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("leave should clear the session cookie")
	}

	w, _ = s.do("POST", "/api/groups/"+slug+"/reclaim", map[string]string{"member_id": a.member.ID})
	if w.Code != http.StatusNotFound {
		t.Errorf("reclaim after leave: status %d, expected 404", w.Code)
	}
}

func TestEndToEnd_PreviewRejectsUnsafeURL(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do("GET", "/api/preview?url=http://169.254.169.254/latest/meta-data", nil)
	if w.Code != http.StatusBadRequest || env.Success {
		t.Errorf("unsafe preview: status %d %+v", w.Code, env)
	}
	w, _ = s.do("GET", "/api/preview", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing url: status %d", w.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do("GET", "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"healthy"`) {
		t.Errorf("health: %d %s", w.Code, w.Body.String())
	}

	s.join(func() string {
		slug := "metrics-000000"
		s.svc.db.Create(&models.Group{Slug: slug, Name: "Metrics"})
		return slug
	}(), "Ana")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "rdychk_mutations_total") {
		t.Errorf("metrics should expose the mutation counter, got %d", rec.Code)
	}
}
