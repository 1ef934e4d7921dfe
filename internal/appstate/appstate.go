// Package appstate holds device-local state that is never synced: the last
// opened module, the dark-mode preference and the app lock. State is loaded
// once at startup and written back only by Save.
package appstate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"golang.org/x/crypto/bcrypt"
)

// Modules a client can open.
const (
	ModuleGrocery = "grocery"
	ModuleMilk    = "milk"
	ModuleFamily  = "family"
)

const defaultStatePath = "~/.local/state/fampulse/state.toml"

var (
	ErrWrongPIN     = errors.New("incorrect PIN")
	ErrInvalidPIN   = errors.New("PIN must be 4 to 8 digits")
	ErrLockDisabled = errors.New("app lock is not enabled")
)

// Lock is the app lock enrollment. Credential is a bcrypt hash of the PIN.
type Lock struct {
	Enabled    bool   `toml:"enabled"`
	Credential string `toml:"credential,omitempty"`
}

type fileState struct {
	Module   string `toml:"module"`
	DarkMode bool   `toml:"dark_mode"`
	Lock     Lock   `toml:"lock"`
}

// State is safe for concurrent use.
type State struct {
	path string

	mu sync.RWMutex
	s  fileState
}

// DefaultPath returns the default state file path.
func DefaultPath() string {
	return defaultStatePath
}

func defaults() fileState { return fileState{Module: ModuleGrocery} }

// Load reads state from path, falling back to defaults when the file is
// missing or unreadable.
func Load(path string) (*State, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	st := &State{path: resolved, s: defaults()}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return st, nil // Graceful degradation
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return st, nil
	}
	var fs fileState
	if err := toml.Unmarshal(bytes, &fs); err != nil {
		return st, nil
	}
	if !validModule(fs.Module) {
		fs.Module = ModuleGrocery
	}
	if fs.Lock.Credential == "" {
		fs.Lock.Enabled = false
	}
	st.s = fs
	return st, nil
}

// Save writes state back to the file it was loaded from, creating
// directories as needed.
func (st *State) Save() error {
	st.mu.RLock()
	bytes, err := toml.Marshal(st.s)
	st.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(st.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(st.path, bytes, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

func (st *State) Path() string { return st.path }

func validModule(m string) bool {
	switch m {
	case ModuleGrocery, ModuleMilk, ModuleFamily:
		return true
	}
	return false
}

func (st *State) Module() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Module
}

// SetModule records the last opened module. Unknown names are ignored.
func (st *State) SetModule(m string) {
	if !validModule(m) {
		return
	}
	st.mu.Lock()
	st.s.Module = m
	st.mu.Unlock()
}

func (st *State) DarkMode() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.DarkMode
}

func (st *State) SetDarkMode(on bool) {
	st.mu.Lock()
	st.s.DarkMode = on
	st.mu.Unlock()
}

// LockEnabled reports whether the app asks for a PIN on start.
func (st *State) LockEnabled() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Lock.Enabled
}

// EnableLock enrolls pin as the app lock credential.
func (st *State) EnableLock(pin string) error {
	if !validPIN(pin) {
		return ErrInvalidPIN
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash PIN: %w", err)
	}
	st.mu.Lock()
	st.s.Lock = Lock{Enabled: true, Credential: string(hash)}
	st.mu.Unlock()
	return nil
}

// DisableLock removes the enrollment after checking pin.
func (st *State) DisableLock(pin string) error {
	if err := st.Unlock(pin); err != nil {
		return err
	}
	st.mu.Lock()
	st.s.Lock = Lock{}
	st.mu.Unlock()
	return nil
}

// Unlock checks pin against the enrolled credential.
func (st *State) Unlock(pin string) error {
	st.mu.RLock()
	lock := st.s.Lock
	st.mu.RUnlock()
	if !lock.Enabled {
		return ErrLockDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(lock.Credential), []byte(pin)); err != nil {
		return ErrWrongPIN
	}
	return nil
}

func validPIN(pin string) bool {
	if len(pin) < 4 || len(pin) > 8 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultStatePath)
	}
	return expandPath(path)
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
