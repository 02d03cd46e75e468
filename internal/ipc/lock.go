package ipc

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

const (
	startLockName        = "core.start.lock"
	startLockPollPeriod  = 200 * time.Millisecond
	startLockStaleAfter  = 60 * time.Second
)

func startLockPath() string { return filepath.Join(runtimeDir(), startLockName) }

// TryAcquireStartLock attempts to create the exclusive start lock that
// serializes concurrent launchers racing to spawn a new core process: only
// the launcher that creates the file proceeds to spawn, avoiding a
// thundering herd of core processes on simultaneous client starts.
func TryAcquireStartLock() (bool, error) {
	if err := os.MkdirAll(runtimeDir(), 0o700); err != nil {
		return false, err
	}
	f, err := os.OpenFile(startLockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	_, err = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	return true, err
}

// ReleaseStartLock removes the start lock; safe to call even if the lock
// is already gone.
func ReleaseStartLock() {
	_ = os.Remove(startLockPath())
}

// ClearStaleStartLock removes the start lock if it is older than
// startLockStaleAfter, recovering from a launcher that crashed before
// releasing it.
func ClearStaleStartLock() {
	info, err := os.Stat(startLockPath())
	if err != nil {
		return
	}
	if time.Since(info.ModTime()) < startLockStaleAfter {
		return
	}
	_ = os.Remove(startLockPath())
}

// pidExists reports whether a process with the given PID is currently
// running, using signal 0 which the kernel validates without delivering
// anything to the target process.
func pidExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means a process with this PID exists but is owned by another
	// user; any other error (typically ESRCH) means it does not.
	return errors.Is(err, syscall.EPERM)
}
