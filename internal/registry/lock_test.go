package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func shortenLockWindows(t *testing.T, wait, stale time.Duration) {
	t.Helper()
	origRetry, origStale, origWait := lockRetryEvery, lockStaleAfter, lockWaitFor
	lockRetryEvery = 5 * time.Millisecond
	lockStaleAfter = stale
	lockWaitFor = wait
	t.Cleanup(func() {
		lockRetryEvery, lockStaleAfter, lockWaitFor = origRetry, origStale, origWait
	})
}

func TestWithLock_RunsAndReleases(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".ledger", "registry.json")
	ran := false
	err := WithLock(path, func() error {
		ran = true
		if _, statErr := os.Stat(path + ".lock"); statErr != nil {
			t.Errorf("lock file absent while held: %v", statErr)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if !ran {
		t.Fatal("fn did not run")
	}
	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Errorf("lock file still present after release: %v", err)
	}
}

func TestWithLock_ContentionTimesOut(t *testing.T) {
	shortenLockWindows(t, 50*time.Millisecond, time.Hour)
	path := filepath.Join(t.TempDir(), ".ledger", "registry.json")

	err := WithLock(path, func() error {
		inner := WithLock(path, func() error { return nil })
		if !errors.Is(inner, ErrLocked) {
			t.Errorf("inner error = %v, want ErrLocked", inner)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("outer WithLock: %v", err)
	}
}

func TestWithLock_RecoversStaleLock(t *testing.T) {
	shortenLockWindows(t, time.Second, 50*time.Millisecond)
	path := filepath.Join(t.TempDir(), ".ledger", "registry.json")
	lockPath := path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(lockPath, []byte("12345\n"), 0o644); err != nil {
		t.Fatalf("write lock: %v", err)
	}
	old := time.Now().Add(-time.Minute)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	ran := false
	if err := WithLock(path, func() error { ran = true; return nil }); err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if !ran {
		t.Fatal("fn did not run after stale recovery")
	}
}

func TestWithLock_PropagatesFnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	sentinel := errors.New("boom")
	if err := WithLock(path, func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want sentinel", err)
	}
	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Error("lock not released after fn error")
	}
}
