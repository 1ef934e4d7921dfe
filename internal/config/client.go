package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultClientPath = "~/.config/fampulse/config.toml"
	defaultServerURL  = "http://127.0.0.1:8080"
	defaultLogFile    = "~/.local/state/fampulse/famtui.log"
)

// Client configures cmd/famtui.
type Client struct {
	ServerURL    string
	Token        string
	UserID       string
	FamilyID     string
	AppURL       string
	LogFile      string
	LogLevel     string
	PollInterval time.Duration
	StatePath    string
}

// DefaultClientPath returns the default client config path.
func DefaultClientPath() string {
	return defaultClientPath
}

// LoadClient reads the client config, falling back to defaults when the
// file is missing. A file that exists but does not parse is an error.
func LoadClient(path string) (Client, error) {
	resolved, err := expandPath(orDefault(path, defaultClientPath))
	if err != nil {
		return Client{}, err
	}

	cfg := Client{
		ServerURL:    defaultServerURL,
		LogFile:      mustExpand(defaultLogFile),
		PollInterval: 3 * time.Second,
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Client{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Client{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		ServerURL    string `toml:"server_url"`
		Token        string `toml:"token"`
		UserID       string `toml:"user_id"`
		FamilyID     string `toml:"family_id"`
		AppURL       string `toml:"app_url"`
		LogFile      string `toml:"log_file"`
		LogLevel     string `toml:"log_level"`
		PollInterval string `toml:"poll_interval"`
		StatePath    string `toml:"state_path"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Client{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.ServerURL = strings.TrimRight(orDefault(raw.ServerURL, defaultServerURL), "/")
	cfg.Token = strings.TrimSpace(raw.Token)
	cfg.UserID = strings.TrimSpace(raw.UserID)
	cfg.FamilyID = strings.TrimSpace(raw.FamilyID)
	cfg.AppURL = strings.TrimSpace(raw.AppURL)
	cfg.LogLevel = raw.LogLevel
	cfg.LogFile = mustExpand(orDefault(raw.LogFile, defaultLogFile))
	cfg.StatePath = raw.StatePath
	if p := strings.TrimSpace(raw.PollInterval); p != "" {
		d, err := time.ParseDuration(p)
		if err != nil || d <= 0 {
			return Client{}, fmt.Errorf("parse config: poll_interval %q is not a positive duration", p)
		}
		cfg.PollInterval = d
	}
	return cfg, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}

func mustExpand(path string) string {
	p, err := expandPath(path)
	if err != nil {
		return path
	}
	return p
}
