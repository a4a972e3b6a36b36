// Package web serves the HTML frontend: dashboard, history and the whole
// account lifecycle (login, registration, logout, password reset).
package web

import (
	"encoding/base64"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/csrf"

	"github.com/CrAsH90548/Abschlussprojekt2026/internal/auth"
	"github.com/CrAsH90548/Abschlussprojekt2026/internal/mailer"
	"github.com/CrAsH90548/Abschlussprojekt2026/internal/session"
	"github.com/CrAsH90548/Abschlussprojekt2026/internal/store"
)

type Options struct {
	BaseURL       string
	SessionTTL    time.Duration
	SecureCookies bool
}

type Server struct {
	repo     *store.Repo
	sessions session.Store
	mail     mailer.Mailer
	resets   auth.ResetTokens
	opts     Options
	pages    map[string]*template.Template
}

func New(repo *store.Repo, sessions session.Store, mail mailer.Mailer, resets auth.ResetTokens, opts Options) *Server {
	return &Server{
		repo:     repo,
		sessions: sessions,
		mail:     mail,
		resets:   resets,
		opts:     opts,
		pages:    parsePages(),
	}
}

func (s *Server) Register(r chi.Router) {
	r.Get("/", s.handleDashboard)
	r.Get("/historie/", s.handleHistory)
	r.Get("/logout/", s.handleLogout)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login/", s.handleLoginForm)
		r.Post("/login/", s.handleLogin)
		r.Get("/register/", s.handleRegisterForm)
		r.Post("/register/", s.handleRegister)
		r.Post("/logout/", s.handleLogout)
		r.Get("/password-reset/", s.handleResetRequestForm)
		r.Post("/password-reset/", s.handleResetRequest)
		r.Get("/password-reset/done/", s.handleResetRequestDone)
		r.Get("/reset/done/", s.handleResetComplete)
		r.Get("/reset/{token}/", s.handleResetConfirmForm)
		r.Post("/reset/{token}/", s.handleResetConfirm)
	})
}

// viewData is the payload every page template renders from. Fields beyond
// Title, User, Flash and CSRFField only matter to individual pages.
type viewData struct {
	Title     string
	User      *store.User
	Flash     *flash
	CSRFField template.HTML

	Next       string
	Identifier string
	FormError  string
	UserName   string
	Email      string
	Token      string
	TokenValid bool
	Errors     map[string]string
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, page string, data viewData) {
	data.User = session.UserFrom(r.Context())
	data.CSRFField = csrf.TemplateField(r)
	if data.Flash == nil {
		data.Flash = popFlash(w, r)
	}
	tmpl, ok := s.pages[page]
	if !ok {
		slog.Error("unknown page template", "page", page)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		slog.Error("render page", "page", page, "error", err)
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if session.UserFrom(r.Context()) == nil {
		http.Redirect(w, r, "/auth/login/?next=/", http.StatusFound)
		return
	}
	s.render(w, r, "dashboard.html", viewData{Title: "Dashboard"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "history.html", viewData{Title: "Historie"})
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if session.UserFrom(r.Context()) != nil {
		http.Redirect(w, r, safeNext(r.URL.Query().Get("next")), http.StatusFound)
		return
	}
	s.render(w, r, "login.html", viewData{Title: "Login", Next: r.URL.Query().Get("next")})
}

const loginFailedMessage = "E-Mail/Benutzername oder Passwort ist falsch."

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	identifier := strings.TrimSpace(r.PostFormValue("identifier"))
	password := r.PostFormValue("password")
	next := r.URL.Query().Get("next")

	fail := func() {
		s.render(w, r, "login.html", viewData{
			Title:      "Login",
			Next:       next,
			Identifier: identifier,
			FormError:  loginFailedMessage,
		})
	}

	user, err := s.repo.UserByIdentifier(r.Context(), identifier)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			slog.Error("login lookup", "error", err)
		}
		fail()
		return
	}
	if !user.IsActive || !auth.CheckPassword(user.PasswordHash, password) {
		fail()
		return
	}
	if err := s.signIn(w, r, user.ID); err != nil {
		slog.Error("create session", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	setFlash(w, "info", "Willkommen zurück!")
	http.Redirect(w, r, safeNext(next), http.StatusFound)
}

func (s *Server) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	if session.UserFrom(r.Context()) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	s.render(w, r, "register.html", viewData{Title: "Registrieren"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	userName := strings.TrimSpace(r.PostFormValue("username"))
	email := strings.ToLower(strings.TrimSpace(r.PostFormValue("email")))
	password1 := r.PostFormValue("password1")
	password2 := r.PostFormValue("password2")

	fieldErrors := map[string]string{}
	if userName == "" {
		fieldErrors["username"] = "Bitte einen Benutzernamen angeben."
	}
	if email == "" {
		fieldErrors["email"] = "Bitte eine E-Mail-Adresse angeben."
	}
	if password1 == "" {
		fieldErrors["password1"] = "Bitte ein Passwort wählen."
	} else if password1 != password2 {
		fieldErrors["password2"] = "Die Passwörter stimmen nicht überein."
	}
	if userName != "" {
		taken, err := s.repo.UserNameTaken(r.Context(), userName)
		if err != nil {
			slog.Error("username check", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if taken {
			fieldErrors["username"] = "Dieser Benutzername ist bereits vergeben."
		}
	}
	if email != "" {
		taken, err := s.repo.EmailTaken(r.Context(), email)
		if err != nil {
			slog.Error("email check", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if taken {
			fieldErrors["email"] = "Diese E-Mail-Adresse wird bereits verwendet."
		}
	}
	if len(fieldErrors) > 0 {
		s.render(w, r, "register.html", viewData{
			Title:    "Registrieren",
			UserName: userName,
			Email:    email,
			Errors:   fieldErrors,
		})
		return
	}

	hash, err := auth.HashPassword(password1)
	if err != nil {
		slog.Error("hash password", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	user, err := s.repo.CreateUser(r.Context(), userName, email, hash)
	if err != nil {
		slog.Error("create user", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if err := s.signIn(w, r, user.ID); err != nil {
		slog.Error("create session", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	slog.Info("user registered", "user", user.UserName)
	setFlash(w, "info", "Account erstellt. Viel Spaß!")
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(session.CookieName); err == nil && c.Value != "" {
		if err := s.sessions.Delete(r.Context(), c.Value); err != nil {
			slog.Error("delete session", "error", err)
		}
	}
	session.ClearCookie(w)
	setFlash(w, "info", "Du wurdest abgemeldet.")
	http.Redirect(w, r, "/auth/login/", http.StatusFound)
}

func (s *Server) handleResetRequestForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "password_reset.html", viewData{Title: "Passwort zurücksetzen"})
}

// handleResetRequest answers identically whether or not the address has an
// account, so the form cannot be used to probe for registered mails.
func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.PostFormValue("email"))
	if email != "" {
		user, err := s.repo.UserByEmail(r.Context(), email)
		switch {
		case err == nil && user.IsActive:
			token, err := s.resets.Issue(user)
			if err != nil {
				slog.Error("issue reset token", "error", err)
				break
			}
			link := strings.TrimRight(s.opts.BaseURL, "/") + "/auth/reset/" + token + "/"
			if err := s.mail.SendPasswordReset(user.Email, user.UserName, link); err != nil {
				slog.Error("send reset mail", "error", err)
			}
		case err != nil && !errors.Is(err, store.ErrUserNotFound):
			slog.Error("reset lookup", "error", err)
		}
	}
	http.Redirect(w, r, "/auth/password-reset/done/", http.StatusFound)
}

func (s *Server) handleResetRequestDone(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "password_reset_done.html", viewData{Title: "E-Mail unterwegs"})
}

func (s *Server) handleResetConfirmForm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	_, err := s.verifyResetToken(r, token)
	s.render(w, r, "password_reset_confirm.html", viewData{
		Title:      "Neues Passwort",
		Token:      token,
		TokenValid: err == nil,
	})
}

func (s *Server) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	user, err := s.verifyResetToken(r, token)
	if err != nil {
		s.render(w, r, "password_reset_confirm.html", viewData{
			Title:      "Neues Passwort",
			Token:      token,
			TokenValid: false,
		})
		return
	}

	password1 := r.PostFormValue("password1")
	password2 := r.PostFormValue("password2")
	fieldErrors := map[string]string{}
	if password1 == "" {
		fieldErrors["password1"] = "Bitte ein Passwort wählen."
	} else if password1 != password2 {
		fieldErrors["password2"] = "Die Passwörter stimmen nicht überein."
	}
	if len(fieldErrors) > 0 {
		s.render(w, r, "password_reset_confirm.html", viewData{
			Title:      "Neues Passwort",
			Token:      token,
			TokenValid: true,
			Errors:     fieldErrors,
		})
		return
	}

	hash, err := auth.HashPassword(password1)
	if err != nil {
		slog.Error("hash password", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if err := s.repo.SetPasswordHash(r.Context(), user.ID, hash); err != nil {
		slog.Error("set password", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	slog.Info("password reset completed", "user", user.UserName)
	http.Redirect(w, r, "/auth/reset/done/", http.StatusFound)
}

func (s *Server) handleResetComplete(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "password_reset_complete.html", viewData{Title: "Passwort geändert"})
}

func (s *Server) verifyResetToken(r *http.Request, token string) (*store.User, error) {
	return s.resets.Verify(token, func(id uuid.UUID) (*store.User, error) {
		return s.repo.UserByID(r.Context(), id)
	})
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	token, err := s.sessions.Create(r.Context(), userID)
	if err != nil {
		return err
	}
	session.SetCookie(w, token, s.opts.SessionTTL, s.opts.SecureCookies)
	return nil
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/"
	}
	return next
}

const flashCookieName = "sensihub_flash"

type flash struct {
	Level   string
	Message string
}

func setFlash(w http.ResponseWriter, level, message string) {
	value := base64.RawURLEncoding.EncodeToString([]byte(level + "\n" + message))
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash reads and clears the one-shot flash cookie.
func popFlash(w http.ResponseWriter, r *http.Request) *flash {
	c, err := r.Cookie(flashCookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	level, message, ok := strings.Cut(string(raw), "\n")
	if !ok {
		return nil
	}
	return &flash{Level: level, Message: message}
}
