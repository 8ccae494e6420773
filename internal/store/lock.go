package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// artifactLock coordinates readers and the writer of one artifact across
// processes. Readers share the lock; a writer holds it exclusively.
type artifactLock struct {
	flock *flock.Flock
}

func newArtifactLock(artifactPath string) *artifactLock {
	return &artifactLock{flock: flock.New(artifactPath + ".lock")}
}

func (l *artifactLock) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(l.flock.Path()), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	return nil
}

// RLock blocks until a shared lock is held.
func (l *artifactLock) RLock() error {
	if err := l.ensureDir(); err != nil {
		return err
	}
	if err := l.flock.RLock(); err != nil {
		return fmt.Errorf("failed to acquire shared lock: %w", err)
	}
	return nil
}

// Lock blocks until the exclusive lock is held.
func (l *artifactLock) Lock() error {
	if err := l.ensureDir(); err != nil {
		return err
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	return nil
}

// Unlock releases whichever lock is held. Calling it unlocked is a no-op.
func (l *artifactLock) Unlock() error {
	if !l.flock.Locked() && !l.flock.RLocked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
