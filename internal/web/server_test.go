package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/CrAsH90548/Abschlussprojekt2026/internal/auth"
	"github.com/CrAsH90548/Abschlussprojekt2026/internal/session"
	"github.com/CrAsH90548/Abschlussprojekt2026/internal/store"
)

type captureMailer struct {
	to   string
	link string
}

func (m *captureMailer) SendPasswordReset(to, userName, link string) error {
	m.to = to
	m.link = link
	return nil
}

func newTestServer(t *testing.T) (*Server, http.Handler, *store.Repo, *captureMailer) {
	t.Helper()
	dsn := "file:web_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo, err := store.New(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sessions := session.NewDBStore(repo, time.Hour)
	mail := &captureMailer{}
	resets := auth.NewResetTokens([]byte("test-secret"), time.Hour)
	s := New(repo, sessions, mail, resets, Options{
		BaseURL:    "http://dashboard.test",
		SessionTTL: time.Hour,
	})
	r := chi.NewRouter()
	r.Use(session.Middleware(sessions, repo))
	s.Register(r)
	return s, r, repo, mail
}

func createUser(t *testing.T, repo *store.Repo, userName, email, password string) *store.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := repo.CreateUser(context.Background(), userName, email, hash)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func postForm(t *testing.T, h http.Handler, target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	return rw
}

func get(t *testing.T, h http.Handler, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	return rw
}

func sessionCookie(t *testing.T, rw *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rw.Result().Cookies() {
		if c.Name == session.CookieName && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no session cookie set")
	return nil
}

func TestDashboardRequiresLogin(t *testing.T) {
	_, h, _, _ := newTestServer(t)

	rw := get(t, h, "/")
	if rw.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rw.Code)
	}
	if loc := rw.Header().Get("Location"); loc != "/auth/login/?next=/" {
		t.Fatalf("location = %q", loc)
	}
}

func TestHistoryIsPublic(t *testing.T) {
	_, h, _, _ := newTestServer(t)

	rw := get(t, h, "/historie/")
	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), "Historie") {
		t.Fatalf("page does not mention Historie")
	}
}

func TestRegisterSignsIn(t *testing.T) {
	_, h, repo, _ := newTestServer(t)

	rw := postForm(t, h, "/auth/register/", url.Values{
		"username":  {"max"},
		"email":     {"max@firma.de"},
		"password1": {"geheim123"},
		"password2": {"geheim123"},
	})
	if rw.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302, body: %s", rw.Code, rw.Body.String())
	}
	if loc := rw.Header().Get("Location"); loc != "/" {
		t.Fatalf("location = %q", loc)
	}
	c := sessionCookie(t, rw)

	if rw := get(t, h, "/", c); rw.Code != http.StatusOK {
		t.Fatalf("dashboard with session = %d, want 200", rw.Code)
	}
	if _, err := repo.UserByIdentifier(context.Background(), "max"); err != nil {
		t.Fatalf("user not stored: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	_, h, repo, _ := newTestServer(t)
	createUser(t, repo, "max", "max@firma.de", "geheim123")

	cases := []struct {
		name string
		form url.Values
		want string
	}{
		{
			name: "password mismatch",
			form: url.Values{"username": {"neu"}, "email": {"neu@firma.de"}, "password1": {"a1234567"}, "password2": {"b1234567"}},
			want: "stimmen nicht überein",
		},
		{
			name: "username taken",
			form: url.Values{"username": {"max"}, "email": {"neu@firma.de"}, "password1": {"a1234567"}, "password2": {"a1234567"}},
			want: "bereits vergeben",
		},
		{
			name: "email taken case-insensitive",
			form: url.Values{"username": {"neu"}, "email": {"MAX@Firma.DE"}, "password1": {"a1234567"}, "password2": {"a1234567"}},
			want: "bereits verwendet",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rw := postForm(t, h, "/auth/register/", tc.form)
			if rw.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (form re-render)", rw.Code)
			}
			if !strings.Contains(rw.Body.String(), tc.want) {
				t.Fatalf("page missing %q", tc.want)
			}
			for _, c := range rw.Result().Cookies() {
				if c.Name == session.CookieName && c.Value != "" {
					t.Fatalf("session cookie set despite validation error")
				}
			}
		})
	}
}

func TestLoginWithEmailAnyCase(t *testing.T) {
	_, h, repo, _ := newTestServer(t)
	createUser(t, repo, "max", "max@firma.de", "geheim123")

	rw := postForm(t, h, "/auth/login/", url.Values{
		"identifier": {"MAX@Firma.DE"},
		"password":   {"geheim123"},
	})
	if rw.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302, body: %s", rw.Code, rw.Body.String())
	}
	sessionCookie(t, rw)
}

func TestLoginWithUserName(t *testing.T) {
	_, h, repo, _ := newTestServer(t)
	createUser(t, repo, "max", "max@firma.de", "geheim123")

	rw := postForm(t, h, "/auth/login/?next=/historie/", url.Values{
		"identifier": {"max"},
		"password":   {"geheim123"},
	})
	if rw.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rw.Code)
	}
	if loc := rw.Header().Get("Location"); loc != "/historie/" {
		t.Fatalf("location = %q, want /historie/", loc)
	}
}

func TestLoginFailureIsUniform(t *testing.T) {
	_, h, repo, _ := newTestServer(t)
	createUser(t, repo, "max", "max@firma.de", "geheim123")

	wrongPassword := postForm(t, h, "/auth/login/", url.Values{
		"identifier": {"max"},
		"password":   {"falsch"},
	})
	unknownUser := postForm(t, h, "/auth/login/", url.Values{
		"identifier": {"niemand"},
		"password":   {"falsch"},
	})
	for name, rw := range map[string]*httptest.ResponseRecorder{"wrong password": wrongPassword, "unknown user": unknownUser} {
		if rw.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", name, rw.Code)
		}
		if !strings.Contains(rw.Body.String(), loginFailedMessage) {
			t.Fatalf("%s: page missing the uniform failure message", name)
		}
	}
}

func TestLoginRejectsOffsiteNext(t *testing.T) {
	_, h, repo, _ := newTestServer(t)
	createUser(t, repo, "max", "max@firma.de", "geheim123")

	rw := postForm(t, h, "/auth/login/?next=//evil.example/", url.Values{
		"identifier": {"max"},
		"password":   {"geheim123"},
	})
	if loc := rw.Header().Get("Location"); loc != "/" {
		t.Fatalf("location = %q, want /", loc)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	_, h, repo, _ := newTestServer(t)
	createUser(t, repo, "max", "max@firma.de", "geheim123")

	login := postForm(t, h, "/auth/login/", url.Values{
		"identifier": {"max"},
		"password":   {"geheim123"},
	})
	c := sessionCookie(t, login)

	rw := get(t, h, "/logout/", c)
	if rw.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rw.Code)
	}
	if loc := rw.Header().Get("Location"); loc != "/auth/login/" {
		t.Fatalf("location = %q", loc)
	}

	// The old token must no longer resolve a user.
	after := get(t, h, "/", c)
	if after.Code != http.StatusFound {
		t.Fatalf("dashboard after logout = %d, want redirect", after.Code)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	_, h, repo, mail := newTestServer(t)
	createUser(t, repo, "max", "max@firma.de", "geheim123")

	rw := postForm(t, h, "/auth/password-reset/", url.Values{"email": {"max@firma.de"}})
	if rw.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rw.Code)
	}
	if loc := rw.Header().Get("Location"); loc != "/auth/password-reset/done/" {
		t.Fatalf("location = %q", loc)
	}
	if mail.to != "max@firma.de" {
		t.Fatalf("mail went to %q", mail.to)
	}
	if !strings.HasPrefix(mail.link, "http://dashboard.test/auth/reset/") {
		t.Fatalf("unexpected link %q", mail.link)
	}
	token := strings.TrimSuffix(strings.TrimPrefix(mail.link, "http://dashboard.test/auth/reset/"), "/")

	form := get(t, h, "/auth/reset/"+token+"/")
	if form.Code != http.StatusOK || !strings.Contains(form.Body.String(), "Neues Passwort") {
		t.Fatalf("confirm form: status = %d", form.Code)
	}

	confirm := postForm(t, h, "/auth/reset/"+token+"/", url.Values{
		"password1": {"neues-geheim"},
		"password2": {"neues-geheim"},
	})
	if confirm.Code != http.StatusFound {
		t.Fatalf("confirm status = %d, want 302, body: %s", confirm.Code, confirm.Body.String())
	}
	if loc := confirm.Header().Get("Location"); loc != "/auth/reset/done/" {
		t.Fatalf("location = %q", loc)
	}

	// Old password out, new password in.
	old := postForm(t, h, "/auth/login/", url.Values{"identifier": {"max"}, "password": {"geheim123"}})
	if old.Code != http.StatusOK {
		t.Fatalf("old password still accepted")
	}
	fresh := postForm(t, h, "/auth/login/", url.Values{"identifier": {"max"}, "password": {"neues-geheim"}})
	if fresh.Code != http.StatusFound {
		t.Fatalf("new password rejected: %d", fresh.Code)
	}

	// The used token carries the old password fingerprint and is dead now.
	reused := postForm(t, h, "/auth/reset/"+token+"/", url.Values{
		"password1": {"nochmal"},
		"password2": {"nochmal"},
	})
	if reused.Code != http.StatusOK || !strings.Contains(reused.Body.String(), "ungültig") {
		t.Fatalf("used token not rejected: %d", reused.Code)
	}
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	_, h, _, mail := newTestServer(t)

	rw := postForm(t, h, "/auth/password-reset/", url.Values{"email": {"niemand@firma.de"}})
	if rw.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rw.Code)
	}
	if loc := rw.Header().Get("Location"); loc != "/auth/password-reset/done/" {
		t.Fatalf("location = %q", loc)
	}
	if mail.to != "" {
		t.Fatalf("mail sent for unknown address")
	}
}

func TestResetFormWithGarbageToken(t *testing.T) {
	_, h, _, _ := newTestServer(t)

	rw := get(t, h, "/auth/reset/kaputt/")
	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), "ungültig") {
		t.Fatalf("invalid token page missing")
	}
}
