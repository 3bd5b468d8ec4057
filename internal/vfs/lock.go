package vfs

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// acquireBaseLock takes a cross-process exclusive lock on basePath's commit
// lock file for the duration of a commit, guarding the re-hash-then-apply
// sequence against a second brio process committing to the same base
// concurrently. The lock file sits beside basePath, not inside it, so it
// never enters the base hash or the change set. release must be called
// exactly once.
func acquireBaseLock(basePath string) (release func(), err error) {
	lockPath := filepath.Clean(basePath) + ".vfs.lock"
	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("vfs: acquire commit lock on %s: %w", basePath, err)
	}
	return func() { _ = fl.Unlock() }, nil
}
