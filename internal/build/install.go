package build

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/distr1/redo/internal/metadir"
	"github.com/distr1/redo/internal/stamp"
)

// install classifies and applies the child's output per spec §4.5.1.
// preBuild is the target's stamp as observed before the .do script ran, or
// Absent if it did not exist yet — used to detect a script that wrote
// directly to $1 instead of using $3/stdout.
func (s *Session) install(target, tmp3, tmpStdout string, preBuild stamp.Stamp) error {
	tmp3Info, tmp3Err := os.Lstat(tmp3)
	tmp3Exists := tmp3Err == nil

	stdoutInfo, stdoutErr := os.Stat(tmpStdout)
	stdoutNonEmpty := stdoutErr == nil && stdoutInfo.Size() > 0

	notModified := func() error {
		cur, err := stamp.Compute(target)
		if err != nil {
			return err
		}
		if !stamp.Equal(cur, preBuild) {
			return fmt.Errorf("%s: modified $1 directly", target)
		}
		return nil
	}

	switch {
	case tmp3Exists:
		if err := notModified(); err != nil {
			return err
		}
		if err := s.installRename(tmp3, target, tmp3Info.IsDir()); err != nil {
			return err
		}
		if stdoutNonEmpty {
			return fmt.Errorf("%s: wrote to stdout and created $3", target)
		}
		return nil

	case stdoutNonEmpty:
		if err := notModified(); err != nil {
			return err
		}
		return s.installRename(tmpStdout, target, false)

	default:
		// No artifact produced via $3 or stdout. The target itself must
		// still be unchanged from before the build ran, or the script
		// wrote to $1 directly (spec scenario: "echo oops > e", no $3).
		if err := notModified(); err != nil {
			return err
		}
		if err := os.RemoveAll(target); err != nil {
			return err
		}
		return metadir.Open(s.Root, target).StorePhony()
	}
}

// installRename moves src into place at dst, trying a plain rename first
// (atomic on the common case: both paths on the same filesystem) and
// falling back to copy-then-remove for either a file or a directory. If
// both attempts fail, the target is treated as phony rather than erroring
// out (spec §4.5.1 renaming note).
func (s *Session) installRename(src, dst string, isDir bool) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := os.RemoveAll(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	var copyErr error
	if isDir {
		copyErr = copyDir(src, dst)
	} else {
		copyErr = copyFile(src, dst)
	}
	if copyErr == nil {
		os.RemoveAll(src)
		return nil
	}

	os.RemoveAll(dst)
	return metadir.Open(s.Root, dst).StorePhony()
}

// copyFile is the cross-filesystem fallback for installRename: a target's
// built artifact (tmp3 or tmpStdout) may live on a different filesystem
// than the target itself, in which case os.Rename fails and the content
// has to be duplicated instead. Unlike a plain io.Copy helper, the mode
// bits of src are preserved on dest — a .do script that produces an
// executable via $3 must still be executable once installed, even when
// the install took the copy path instead of rename.
func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// copyDir recurses copyFile over a directory tree, for installing a
// directory artifact across filesystems.
func copyDir(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, info.Mode().Perm()); err != nil {
		return err
	}
	for _, e := range entries {
		s := filepath.Join(src, e.Name())
		d := filepath.Join(dest, e.Name())
		if e.IsDir() {
			if err := copyDir(s, d); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(s, d); err != nil {
			return err
		}
	}
	return nil
}
