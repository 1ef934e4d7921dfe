package appstate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	st, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if st.Module() != ModuleGrocery {
		t.Fatalf("Module = %q, want %q", st.Module(), ModuleGrocery)
	}
	if st.DarkMode() || st.LockEnabled() {
		t.Fatal("expected dark mode and lock off by default")
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "state.toml")
	st, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	st.SetModule(ModuleMilk)
	st.SetDarkMode(true)
	if err := st.EnableLock("4321"); err != nil {
		t.Fatalf("EnableLock: %v", err)
	}
	if err := st.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Module() != ModuleMilk {
		t.Errorf("Module = %q, want %q", loaded.Module(), ModuleMilk)
	}
	if !loaded.DarkMode() {
		t.Error("DarkMode not persisted")
	}
	if err := loaded.Unlock("4321"); err != nil {
		t.Errorf("Unlock after reload: %v", err)
	}
}

func TestStateNotWrittenWithoutSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	st, _ := Load(path)
	st.SetModule(ModuleFamily)
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("state file exists before Save: %v", err)
	}
}

func TestLock(t *testing.T) {
	st, _ := Load(filepath.Join(t.TempDir(), "state.toml"))

	if err := st.Unlock("1234"); !errors.Is(err, ErrLockDisabled) {
		t.Errorf("Unlock without enrollment = %v, want ErrLockDisabled", err)
	}
	for _, pin := range []string{"123", "123456789", "12a4"} {
		if err := st.EnableLock(pin); !errors.Is(err, ErrInvalidPIN) {
			t.Errorf("EnableLock(%q) = %v, want ErrInvalidPIN", pin, err)
		}
	}
	if err := st.EnableLock("1234"); err != nil {
		t.Fatalf("EnableLock: %v", err)
	}
	if err := st.Unlock("0000"); !errors.Is(err, ErrWrongPIN) {
		t.Errorf("Unlock wrong PIN = %v, want ErrWrongPIN", err)
	}
	if err := st.DisableLock("0000"); !errors.Is(err, ErrWrongPIN) {
		t.Errorf("DisableLock wrong PIN = %v, want ErrWrongPIN", err)
	}
	if err := st.DisableLock("1234"); err != nil {
		t.Fatalf("DisableLock: %v", err)
	}
	if st.LockEnabled() {
		t.Error("lock still enabled")
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	data := "module = \"settings\"\n[lock]\nenabled = true\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	st, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.Module() != ModuleGrocery {
		t.Errorf("Module = %q, want %q", st.Module(), ModuleGrocery)
	}
	if st.LockEnabled() {
		t.Error("lock enabled without a credential")
	}
}

func TestLoad_InvalidTOMLFallsBackToDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	if err := os.WriteFile(path, []byte("not valid toml {{{\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	st, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.Module() != ModuleGrocery {
		t.Errorf("Module = %q", st.Module())
	}
}
