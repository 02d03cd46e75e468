package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// GetConfigDir returns the Kagan configuration root, honouring
// KAGAN_CONFIG_DIR before falling back to the platform XDG/AppData
// convention.
func GetConfigDir() string {
	if dir := os.Getenv("KAGAN_CONFIG_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(xdgConfigHome(), "kagan")
}

// GetDataDir returns the Kagan data root (holds the SQLite database).
func GetDataDir() string {
	if dir := os.Getenv("KAGAN_DATA_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(xdgDataHome(), "kagan")
}

// GetCacheDir returns the Kagan cache root.
func GetCacheDir() string {
	if dir := os.Getenv("KAGAN_CACHE_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(xdgCacheHome(), "kagan")
}

// GetWorktreeBase returns the root directory under which per-workspace
// worktrees are created: `<worktree_base>/<workspace-id>/<repo>`.
func GetWorktreeBase() string {
	if dir := os.Getenv("KAGAN_WORKTREE_BASE"); dir != "" {
		return dir
	}
	return filepath.Join(GetDataDir(), "worktrees")
}

// GetLocksDir returns the directory holding the OS advisory instance lock,
// honouring XDG_STATE_HOME.
func GetLocksDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "kagan")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "kagan-state")
	}
	return filepath.Join(home, ".local", "state", "kagan")
}

// GetRuntimeDir returns the directory holding IPC runtime artifacts:
// core.sock, core.endpoint.json, core.lease.json, core.start.lock.
func GetRuntimeDir() string {
	return filepath.Join(GetDataDir(), "run")
}

// GetConfigPath returns the path to the primary YAML config file.
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// GetDatabasePath returns the path to the primary SQLite database file.
func GetDatabasePath() string {
	return filepath.Join(GetDataDir(), "kagan.db")
}

func xdgConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return appData
		}
	}
	return filepath.Join(home, ".config")
}

func xdgDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share")
}

func xdgCacheHome() string {
	if v := os.Getenv("XDG_CACHE_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache")
}
