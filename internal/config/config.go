package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port    string
	BaseURL string

	DBDriver   string // "sqlite" or "postgres"
	SQLitePath string
	Postgres   DBConfig

	SecretKey string
	// IngestToken is read from the environment but not yet enforced by the
	// ingest handler.
	// TODO: decide where devices should carry it (header vs query param) and
	// check it in POST /api/ingest.
	IngestToken string

	TimeZone string
	UseTZ    bool

	CORSAllowedOrigins []string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string

	RedisAddr     string
	RedisPassword string

	SessionTTL time.Duration
	ResetTTL   time.Duration

	SecureCookies bool
	LogLevel      string
}

func Load() *Config {
	cfg := &Config{
		Port:          getEnv("PORT", "8000"),
		BaseURL:       strings.TrimRight(getEnv("BASE_URL", "http://localhost:8000"), "/"),
		DBDriver:      getEnv("DB_DRIVER", "sqlite"),
		SQLitePath:    getEnv("SQLITE_PATH", "sensihub.db"),
		SecretKey:     getEnv("SECRET_KEY", "dev-insecure-secret-key"),
		IngestToken:   os.Getenv("INGEST_TOKEN"),
		TimeZone:      getEnv("TIME_ZONE", "Europe/Berlin"),
		UseTZ:         parseBool(getEnv("USE_TZ", "false")),
		SMTPHost:      strings.TrimSpace(os.Getenv("SMTP_HOST")),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPUsername:  os.Getenv("SMTP_USERNAME"),
		SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
		FromEmail:     getEnv("FROM_EMAIL", "noreply@localhost"),
		FromName:      getEnv("FROM_NAME", "Sensor-Dashboard"),
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		SessionTTL:    time.Duration(parseInt(getEnv("SESSION_TTL_HOURS", "336"))) * time.Hour,
		ResetTTL:      time.Duration(parseInt(getEnv("RESET_TTL_MINUTES", "60"))) * time.Minute,
		SecureCookies: parseBool(getEnv("SECURE_COOKIES", "false")),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Postgres: DBConfig{
			User:     strings.TrimSpace(os.Getenv("POSTGRES_USER")),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DBName:   strings.TrimSpace(os.Getenv("POSTGRES_DB")),
			Host:     strings.TrimSpace(os.Getenv("POSTGRES_HOST")),
			Port:     strings.TrimSpace(os.Getenv("POSTGRES_PORT")),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
	}

	if raw := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	slog.Info("config loaded", "port", cfg.Port, "db", cfg.DBDriver, "tz", cfg.TimeZone, "use_tz", cfg.UseTZ)
	return cfg
}

type DBConfig struct {
	User     string
	Password string
	DBName   string
	Host     string
	Port     string
	SSLMode  string
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func parseBool(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func parseInt(val string) int {
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return 0
	}
	return n
}
