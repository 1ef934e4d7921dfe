package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukerupert/fampulse/internal/database"
)

var serverKeys = []string{
	"FAMPULSE_PORT", "FAMPULSE_LOG_LEVEL", "FAMPULSE_DB_DRIVER", "FAMPULSE_DB_DSN",
	"FAMPULSE_JWT_SECRET", "FAMPULSE_TOKEN_TTL", "FAMPULSE_ALLOWED_ORIGINS", "FAMPULSE_RATE_LIMIT",
	"FAMPULSE_S3_ENDPOINT", "FAMPULSE_S3_BUCKET", "FAMPULSE_S3_REGION", "FAMPULSE_S3_ACCESS_KEY",
	"FAMPULSE_S3_SECRET_KEY", "FAMPULSE_S3_PUBLIC_URL",
}

// clearEnv unsets the server variables for the test, restoring them at
// cleanup. godotenv writes straight to the process environment, so this also
// undoes what an .env file loaded.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range serverKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadServerDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadServer(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.DBDriver != database.SQLite || cfg.DBDSN != "fampulse.db" {
		t.Errorf("db = %s %s", cfg.DBDriver, cfg.DBDSN)
	}
	if cfg.TokenTTL != 30*24*time.Hour {
		t.Errorf("TokenTTL = %v", cfg.TokenTTL)
	}
	if cfg.Storage.Enabled() {
		t.Error("storage should be disabled without credentials")
	}
}

func TestLoadServerEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	data := "FAMPULSE_PORT=9000\nFAMPULSE_DB_DRIVER=postgres\nFAMPULSE_DB_DSN=postgres://localhost/fam\n" +
		"FAMPULSE_ALLOWED_ORIGINS=https://a.example, https://b.example\nFAMPULSE_S3_BUCKET=avatars\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("FAMPULSE_PORT", "9100")

	cfg, err := LoadServer(path)
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.Port != "9100" {
		t.Errorf("Port = %q, want environment to win", cfg.Port)
	}
	if cfg.DBDriver != database.Postgres {
		t.Errorf("DBDriver = %s", cfg.DBDriver)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.Storage.Bucket != "avatars" {
		t.Errorf("Bucket = %q", cfg.Storage.Bucket)
	}
}

func TestLoadServerRejects(t *testing.T) {
	tests := map[string]string{
		"FAMPULSE_DB_DRIVER":  "mysql",
		"FAMPULSE_TOKEN_TTL":  "forever",
		"FAMPULSE_RATE_LIMIT": "-1",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			if _, err := LoadServer(filepath.Join(t.TempDir(), "missing.env")); err == nil {
				t.Errorf("expected error for %s=%s", key, val)
			}
		})
	}
}

func TestLoadServerPostgresNeedsDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv("FAMPULSE_DB_DRIVER", "postgres")
	if _, err := LoadServer(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error without DSN")
	}
}

func TestLoadClientMissingFile(t *testing.T) {
	cfg, err := LoadClient(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.ServerURL != defaultServerURL || cfg.PollInterval != 3*time.Second {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadClient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `server_url = "https://fam.example.com/"
token = "abc"
user_id = "asha"
family_id = "fam-1"
poll_interval = "10s"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := LoadClient(path)
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.ServerURL != "https://fam.example.com" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.UserID != "asha" || cfg.FamilyID != "fam-1" || cfg.Token != "abc" {
		t.Errorf("identity = %+v", cfg)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
}

func TestLoadClientInvalid(t *testing.T) {
	for name, data := range map[string]string{
		"syntax": "not valid toml {{{",
		"poll":   `poll_interval = "soon"`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if _, err := LoadClient(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
