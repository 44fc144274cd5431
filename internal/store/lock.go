package store

import (
	"path/filepath"

	"github.com/gofrs/flock"

	verrors "github.com/voxide/voxrag/internal/errors"
)

// DirLock is an advisory lock on a data directory. The engine is a
// single-writer system; a second process mmap-writing the same
// vectors.bin would corrupt it, so every opener takes this lock first.
type DirLock struct {
	fl *flock.Flock
}

// AcquireDirLock takes a non-blocking exclusive lock on <dir>/LOCK.
// Fails fast with a fatal configuration error when another process
// holds the directory.
func AcquireDirLock(dir string) (*DirLock, error) {
	fl := flock.New(filepath.Join(dir, "LOCK"))

	locked, err := fl.TryLock()
	if err != nil {
		return nil, verrors.New(verrors.ErrCodeDataDirLocked, "lock data directory", err)
	}
	if !locked {
		return nil, verrors.Newf(verrors.ErrCodeDataDirLocked,
			"data directory %s is in use by another voxrag process", dir).
			WithSuggestion("stop the other process or point --data at a different directory")
	}

	return &DirLock{fl: fl}, nil
}

// Release drops the lock. The LOCK file is left behind; flock state,
// not file existence, is what matters.
func (l *DirLock) Release() error {
	return l.fl.Unlock()
}
