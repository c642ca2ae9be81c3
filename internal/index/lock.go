package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
)

// lockRetry is how often a waiting run polls a held lock.
const lockRetry = 200 * time.Millisecond

// CollectionLock serializes indexing runs on one collection across
// processes. The lock file is <dir>/<collection>.index.lock.
type CollectionLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewCollectionLock creates an unheld lock.
func NewCollectionLock(dir, collection string) *CollectionLock {
	path := filepath.Join(dir, collection+lockSuffix)
	return &CollectionLock{path: path, flock: flock.New(path)}
}

// Lock blocks until the lock is held or ctx ends.
func (l *CollectionLock) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.flock.TryLockContext(ctx, lockRetry)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return mcberrors.FromContext(ctxErr)
		}
		return fmt.Errorf("failed to acquire lock %s: %w", l.path, err)
	}
	if !ok {
		return mcberrors.Cancelled(fmt.Errorf("gave up waiting for lock %s", l.path))
	}
	l.locked = true
	return nil
}

// TryLock acquires the lock without waiting.
func (l *CollectionLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.path, err)
	}
	l.locked = ok
	return ok, nil
}

// Unlock releases the lock. Safe on an unheld lock.
func (l *CollectionLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *CollectionLock) Path() string { return l.path }
