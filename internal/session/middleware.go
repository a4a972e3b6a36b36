package session

import (
	"context"
	"net/http"
	"time"

	"github.com/CrAsH90548/Abschlussprojekt2026/internal/store"
)

const CookieName = "sensihub_session"

type ctxKey struct{}

// Middleware resolves the session cookie into a *store.User and stashes it in
// the request context. Requests without a valid session pass through with no
// user; handlers that need one check UserFrom.
func Middleware(sessions Store, users *store.Repo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(CookieName)
			if err != nil || c.Value == "" {
				next.ServeHTTP(w, r)
				return
			}
			userID, err := sessions.UserID(r.Context(), c.Value)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			user, err := users.UserByID(r.Context(), userID)
			if err != nil || !user.IsActive {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFrom returns the signed-in user, or nil for anonymous requests.
func UserFrom(ctx context.Context) *store.User {
	u, _ := ctx.Value(ctxKey{}).(*store.User)
	return u
}

func SetCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
