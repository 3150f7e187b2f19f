// Package lockfile provides the per-target advisory exclusive lock that
// serializes concurrent builds of the same target across processes (spec
// §5). The API shape — New / Lock(block bool) / Unlock — follows
// mutagen's pkg/filesystem/locking.Locker; the implementation uses
// golang.org/x/sys/unix.Flock instead of mutagen's fcntl byte-range lock,
// since a whole-file flock is the simpler primitive for a file whose sole
// purpose is being locked.
package lockfile

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/distr1/redo/internal/stamp"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// ErrWouldBlock is returned by Lock(false) when another process already
// holds the lock.
var ErrWouldBlock = errors.New("lockfile: would block")

// Locker holds an open file descriptor on a target's LockFile.
type Locker struct {
	file *os.File
}

// Path returns the deterministic LockFile path for a target, given its
// canonical absolute path: <root>/.lck.<hash>.lck. (spec §3 LockFile).
func Path(root, absTargetPath string) string {
	return filepath.Join(root, ".lck."+stamp.HashTargetID(absTargetPath)+".lck.")
}

// New opens (creating if necessary) the lock file at path, in an unlocked
// state.
func New(path string) (*Locker, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, xerrors.Errorf("creating lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, xerrors.Errorf("opening lock file: %w", err)
	}
	return &Locker{file: f}, nil
}

// Lock attempts to acquire the exclusive lock. If block is false and the
// lock is already held, it returns ErrWouldBlock immediately; the caller
// is expected to retry with block=true later (spec §4.5 step 2's two-pass
// acquisition).
func (l *Locker) Lock(block bool) error {
	how := unix.LOCK_EX
	if !block {
		how |= unix.LOCK_NB
	}
	for {
		err := unix.Flock(int(l.file.Fd()), how)
		if err == nil {
			return nil
		}
		if err == unix.EINTR {
			continue
		}
		if !block && (err == unix.EWOULDBLOCK || err == unix.EAGAIN) {
			return ErrWouldBlock
		}
		return err
	}
}

// Unlock releases the lock and closes the underlying file descriptor.
func (l *Locker) Unlock() error {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

// PurgeStale removes every LockFile under root. It is never called during
// normal builds (spec §5): "Global lock cleanup ... runs only when
// explicitly invoked." No CLI verb exposes it; it exists for operators
// restoring a metadata root after an unclean shutdown left lock files
// behind, and is covered by a package-level test.
func PurgeStale(root string) error {
	matches, err := filepath.Glob(filepath.Join(root, ".lck.*.lck."))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
