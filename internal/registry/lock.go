package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"ratchet/internal/logging"
)

// ErrLocked is returned when the registry lock cannot be acquired before the
// wait deadline.
var ErrLocked = errors.New("registry locked")

// Lock tuning. Variables so tests can shorten the windows.
var (
	lockRetryEvery = 25 * time.Millisecond
	lockStaleAfter = 30 * time.Second
	lockWaitFor    = 5 * time.Second
)

// WithLock runs fn while holding an advisory lockfile next to path. Every
// load-mutate-persist of the registry goes through here. A lock older than
// lockStaleAfter is treated as abandoned and removed.
func WithLock(path string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	lockPath := path + ".lock"
	deadline := time.Now().Add(lockWaitFor)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			if err := f.Close(); err != nil {
				os.Remove(lockPath)
				return fmt.Errorf("write registry lock: %w", err)
			}
			defer os.Remove(lockPath)
			return fn()
		}
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("acquire registry lock: %w", err)
		}
		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			logging.New("registry").Warn("removing stale registry lock", "path", lockPath)
			os.Remove(lockPath)
			continue
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s held by another process", ErrLocked, lockPath)
		}
		time.Sleep(lockRetryEvery)
	}
}
