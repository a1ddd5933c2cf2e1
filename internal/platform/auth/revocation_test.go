package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func fixedRevocations(at *time.Time) *SessionRevocations {
	s := NewSessionRevocations()
	s.now = func() time.Time { return *at }
	return s
}

func TestSessionRevocations_Session(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	s := fixedRevocations(&now)
	u := User{ID: "dr-1", Role: RoleDentist, SessionID: "s-1"}

	if s.IsRevoked(u, now) {
		t.Fatal("nothing revoked yet")
	}
	s.RevokeSession("s-1", "dr-1")
	if !s.IsRevoked(u, now) {
		t.Error("revoked session should be rejected")
	}
	other := u
	other.SessionID = "s-2"
	if s.IsRevoked(other, now) {
		t.Error("other sessions of the same user stay valid")
	}
}

func TestSessionRevocations_UserCutsOffEarlierTokens(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	s := fixedRevocations(&now)
	u := User{ID: "dr-1", Role: RoleDentist, SessionID: "s-1"}

	s.RevokeUser("dr-1")
	if !s.IsRevoked(u, now.Add(-time.Hour)) || !s.IsRevoked(u, now) {
		t.Error("tokens issued up to the revocation should be rejected")
	}
	if !s.IsRevoked(u, time.Time{}) {
		t.Error("tokens without iat should be rejected")
	}
	if s.IsRevoked(u, now.Add(time.Second)) {
		t.Error("tokens issued after the revocation should be accepted")
	}
}

func TestSessionRevocations_Sweep(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	s := fixedRevocations(&now)
	s.RevokeSession("old", "dr-1")
	s.RevokeUser("dr-2")
	now = now.Add(MaxTokenTTL / 2)
	s.RevokeSession("new", "dr-3")

	now = now.Add(MaxTokenTTL/2 + time.Minute)
	if n := s.Sweep(); n != 2 {
		t.Errorf("expected 2 dropped, got %d", n)
	}
	entries := s.Entries()
	if len(entries) != 1 || entries[0].SessionID != "new" {
		t.Errorf("unexpected entries %+v", entries)
	}
}

func TestJWTMiddleware_RejectsRevokedSession(t *testing.T) {
	cfg := testJWTConfig()
	cfg.Revocations = NewSessionRevocations()
	tok, err := IssueToken(cfg, User{ID: "dr-1", Role: RoleDentist, SessionID: "s-1"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := runWithHeader(t, JWTMiddleware(cfg), "Bearer "+tok); err != nil {
		t.Fatalf("fresh token: %v", err)
	}
	cfg.Revocations.RevokeSession("s-1", "dr-1")
	_, _, err = runWithHeader(t, JWTMiddleware(cfg), "Bearer "+tok)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestIssueToken_BoundsTTL(t *testing.T) {
	for _, ttl := range []time.Duration{0, -time.Minute, MaxTokenTTL + time.Second} {
		if _, err := IssueToken(testJWTConfig(), User{ID: "dr-1", Role: RoleDentist}, ttl); err == nil {
			t.Errorf("ttl %s should be rejected", ttl)
		}
	}
}

func TestRevocationRoutes(t *testing.T) {
	store := NewSessionRevocations()
	e := echo.New()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := Role(c.Request().Header.Get("X-Test-Role"))
			setUser(c, User{ID: "u-" + string(role), Role: role, SessionID: "sess-" + string(role)})
			return next(c)
		}
	})
	RegisterRevocationRoutes(api, store, zerolog.Nop())

	do := func(method, path, role, body string) int {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("X-Test-Role", role)
		if body != "" {
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do(http.MethodPost, "/api/v1/auth/logout", string(RoleDentist), ""); code != http.StatusNoContent {
		t.Fatalf("logout: %d", code)
	}
	if !store.IsRevoked(User{ID: "u-dentista", SessionID: "sess-dentista"}, time.Now()) {
		t.Error("logout should revoke the caller's session")
	}
	if code := do(http.MethodPost, "/api/v1/admin/sessions/revoke-user/dr-9", string(RoleDentist), ""); code != http.StatusForbidden {
		t.Errorf("dentist revoking users: expected 403, got %d", code)
	}
	if code := do(http.MethodPost, "/api/v1/admin/sessions/revoke", string(RoleAdmin), `{"sessionId":""}`); code != http.StatusBadRequest {
		t.Errorf("empty session id: expected 400, got %d", code)
	}
	if code := do(http.MethodPost, "/api/v1/admin/sessions/revoke-user/dr-9", string(RoleAdmin), ""); code != http.StatusNoContent {
		t.Errorf("admin revoke user: %d", code)
	}
	if code := do(http.MethodGet, "/api/v1/admin/sessions", string(RoleAdmin), ""); code != http.StatusOK {
		t.Errorf("list: %d", code)
	}
	if len(store.Entries()) != 2 {
		t.Errorf("expected 2 entries, got %+v", store.Entries())
	}
}
