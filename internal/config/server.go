// Package config loads settings for the two binaries: the backend reads its
// environment (after an optional .env file), the terminal client reads a
// TOML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dukerupert/fampulse/internal/database"
	"github.com/dukerupert/fampulse/internal/storage"
)

// Server configures cmd/fampulse.
type Server struct {
	Port           string
	LogLevel       string
	DBDriver       database.Dialect
	DBDSN          string
	JWTSecret      string
	TokenTTL       time.Duration
	AllowedOrigins []string
	RateLimit      int
	Storage        storage.Config
}

// LoadServer loads the .env files (missing files are fine) and reads the
// FAMPULSE_* environment. Variables already set in the environment win.
func LoadServer(envFiles ...string) (Server, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Server{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	driver, err := database.ParseDialect(os.Getenv("FAMPULSE_DB_DRIVER"))
	if err != nil {
		return Server{}, err
	}
	cfg := Server{
		Port:      envOr("FAMPULSE_PORT", "8080"),
		LogLevel:  os.Getenv("FAMPULSE_LOG_LEVEL"),
		DBDriver:  driver,
		DBDSN:     os.Getenv("FAMPULSE_DB_DSN"),
		JWTSecret: os.Getenv("FAMPULSE_JWT_SECRET"),
		Storage: storage.Config{
			Endpoint:  os.Getenv("FAMPULSE_S3_ENDPOINT"),
			Bucket:    os.Getenv("FAMPULSE_S3_BUCKET"),
			Region:    os.Getenv("FAMPULSE_S3_REGION"),
			AccessKey: os.Getenv("FAMPULSE_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("FAMPULSE_S3_SECRET_KEY"),
			PublicURL: os.Getenv("FAMPULSE_S3_PUBLIC_URL"),
		},
	}
	if cfg.DBDSN == "" {
		if driver == database.Postgres {
			return Server{}, errors.New("FAMPULSE_DB_DSN is required for postgres")
		}
		cfg.DBDSN = "fampulse.db"
	}
	if origins := os.Getenv("FAMPULSE_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}
	if cfg.TokenTTL, err = durationEnv("FAMPULSE_TOKEN_TTL", 30*24*time.Hour); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit, err = intEnv("FAMPULSE_RATE_LIMIT", 600); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: must be a non-negative integer", key)
	}
	return n, nil
}
