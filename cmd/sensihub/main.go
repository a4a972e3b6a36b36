package main

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"gorm.io/gorm"

	"github.com/CrAsH90548/Abschlussprojekt2026/internal/auth"
	"github.com/CrAsH90548/Abschlussprojekt2026/internal/config"
	"github.com/CrAsH90548/Abschlussprojekt2026/internal/httpapi"
	"github.com/CrAsH90548/Abschlussprojekt2026/internal/mailer"
	"github.com/CrAsH90548/Abschlussprojekt2026/internal/session"
	"github.com/CrAsH90548/Abschlussprojekt2026/internal/store"
	"github.com/CrAsH90548/Abschlussprojekt2026/internal/timefmt"
	"github.com/CrAsH90548/Abschlussprojekt2026/internal/web"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	db, err := openDB(cfg)
	if err != nil {
		slog.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	repo, err := store.New(db)
	if err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		slog.Error("invalid TIME_ZONE", "tz", cfg.TimeZone, "error", err)
		os.Exit(1)
	}
	conv := timefmt.New(loc, cfg.UseTZ)

	var sessions session.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		sessions = session.NewRedisStore(client, cfg.SessionTTL)
		slog.Info("session backend", "kind", "redis", "addr", cfg.RedisAddr)
	} else {
		sessions = session.NewDBStore(repo, cfg.SessionTTL)
		slog.Info("session backend", "kind", "db")
	}

	var mail mailer.Mailer
	if cfg.SMTPHost != "" {
		mail = &mailer.SMTPMailer{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			FromEmail: cfg.FromEmail,
			FromName:  cfg.FromName,
		}
	} else {
		mail = mailer.LogMailer{}
	}

	resets := auth.NewResetTokens([]byte(cfg.SecretKey), cfg.ResetTTL)

	api := httpapi.New(repo, conv)
	site := web.New(repo, sessions, mail, resets, web.Options{
		BaseURL:       cfg.BaseURL,
		SessionTTL:    cfg.SessionTTL,
		SecureCookies: cfg.SecureCookies,
	})

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(cfg).Handler)
	r.Use(session.Middleware(sessions, repo))

	r.Route("/api", api.Register)

	// The HTML site gets CSRF protection; the JSON API stays outside it so
	// devices can POST readings without a token.
	csrfKey := sha256.Sum256([]byte(cfg.SecretKey))
	protect := csrf.Protect(csrfKey[:],
		csrf.Secure(cfg.SecureCookies),
		csrf.Path("/"),
	)
	webRouter := chi.NewRouter()
	site.Register(webRouter)
	r.Mount("/", protect(webRouter))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("sensihub listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	slog.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.DBDriver == "postgres" {
		return store.OpenPostgres(
			cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.DBName,
			cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.SSLMode,
		)
	}
	return store.OpenSQLite(cfg.SQLitePath)
}

func corsHandler(cfg *config.Config) *cors.Cors {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return cors.New(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
		})
	}
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
}

func setupLogging(level string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: lvl, TimeFormat: time.TimeOnly})))
}
