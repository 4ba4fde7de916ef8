// Package lock provides file-based locking with PID-based stale detection.
package lock

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/jayteealao/gitup/internal/errors"
)

// UpdateLock is the lock held for the duration of a batch update.
const UpdateLock = "update"

// Lock represents a held file lock.
type Lock struct {
	flock    *flock.Flock
	pidFile  string
	lockPath string
	name     string
}

// Manager manages named locks under <dataDir>/locks.
type Manager struct {
	lockDir string
}

// NewManager creates a new lock manager.
func NewManager(dataDir string) (*Manager, error) {
	lockDir := filepath.Join(dataDir, "locks")
	if err := os.MkdirAll(lockDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &Manager{lockDir: lockDir}, nil
}

func (m *Manager) paths(name string) (lockPath, pidFile string) {
	return filepath.Join(m.lockDir, name+".lock"), filepath.Join(m.lockDir, name+".pid")
}

// Acquire waits for the named lock until ctx is done.
// Stale locks left by dead processes are removed first.
func (m *Manager) Acquire(ctx context.Context, name string) (*Lock, error) {
	lockPath, pidFile := m.paths(name)
	m.cleanStaleLock(pidFile, lockPath)

	fl := flock.New(lockPath)

	locked, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil || !locked {
		if pid, readErr := readPIDFile(pidFile); readErr == nil {
			return nil, fmt.Errorf("%w: held by PID %d", errors.ErrUpdateLocked, pid)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrUpdateLocked, err)
		}
		return nil, errors.ErrUpdateLocked
	}

	return m.hold(fl, name, lockPath, pidFile)
}

// TryAcquire takes the named lock without waiting.
// Returns nil if the lock is held elsewhere.
func (m *Manager) TryAcquire(name string) (*Lock, error) {
	lockPath, pidFile := m.paths(name)
	m.cleanStaleLock(pidFile, lockPath)

	fl := flock.New(lockPath)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to try lock: %w", err)
	}
	if !locked {
		return nil, nil
	}

	return m.hold(fl, name, lockPath, pidFile)
}

func (m *Manager) hold(fl *flock.Flock, name, lockPath, pidFile string) (*Lock, error) {
	if err := writePIDFile(pidFile); err != nil {
		fl.Unlock()
		return nil, fmt.Errorf("failed to write PID file: %w", err)
	}

	return &Lock{
		flock:    fl,
		pidFile:  pidFile,
		lockPath: lockPath,
		name:     name,
	}, nil
}

// IsLocked reports whether the named lock is held, and by which PID if known.
func (m *Manager) IsLocked(name string) (bool, int, error) {
	lockPath, pidFile := m.paths(name)

	fl := flock.New(lockPath)

	locked, err := fl.TryLock()
	if err != nil {
		return false, 0, fmt.Errorf("failed to check lock: %w", err)
	}

	if locked {
		fl.Unlock()
		return false, 0, nil
	}

	pid, err := readPIDFile(pidFile)
	if err != nil {
		return true, 0, nil // Locked but unknown PID
	}

	return true, pid, nil
}

// cleanStaleLock removes lock files whose owning process has exited.
func (m *Manager) cleanStaleLock(pidFile, lockPath string) {
	pid, err := readPIDFile(pidFile)
	if err != nil {
		return
	}

	if isProcessRunning(pid) {
		return
	}

	os.Remove(pidFile)
	os.Remove(lockPath)
}

// Release releases the lock.
func (l *Lock) Release() error {
	os.Remove(l.pidFile)

	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	os.Remove(l.lockPath)

	return nil
}

// Name returns the lock name.
func (l *Lock) Name() string {
	return l.name
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// isProcessRunning probes pid with signal 0. When the answer is unclear the
// process is assumed alive so a live lock is never removed.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if stderrors.Is(err, os.ErrProcessDone) || stderrors.Is(err, syscall.ESRCH) {
		return false
	}
	return true
}
