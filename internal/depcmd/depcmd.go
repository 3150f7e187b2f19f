// Package depcmd implements the dependency-declaration helpers (spec §4.6):
// the logic behind redo-ifchange, redo-ifcreate, and redo-always once they
// have finished (or, for ifcreate/always, without) building anything. Each
// helper runs as a child process of a running .do script and writes its
// records back into the parent target's MetaDir.
package depcmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/distr1/redo/internal/env"
	"github.com/distr1/redo/internal/metadir"
)

// Parent resolves the MetaDir and .do directory of the target whose .do is
// currently running, as discovered from REDO_TARGET and REDO_PATH. It
// fails if those are unset, i.e. the calling process was not invoked from
// inside a running .do script.
func Parent(root string) (meta *metadir.Dir, doDir string, err error) {
	target := env.ParentTarget()
	if target == "" {
		return nil, "", fmt.Errorf("not running inside a .do script (REDO_TARGET is unset)")
	}
	doDir = env.ParentPath()
	if doDir == "" {
		return nil, "", fmt.Errorf("not running inside a .do script (REDO_PATH is unset)")
	}
	return metadir.Open(root, target), doDir, nil
}

// Normalize resolves raw (as given on a redo-ifchange/redo-ifcreate command
// line, possibly relative to the helper's current directory) to both an
// absolute path usable for stat/stamp calls and a record key expressed
// relative to the parent .do's directory, per spec §4.6: "normalize each
// dependency path to be relative to the parent's redo-path (via the
// current directory at call time)".
func Normalize(doDir, raw string) (abs, recordKey string, err error) {
	abs = raw
	if !filepath.IsAbs(raw) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", "", err
		}
		abs = filepath.Join(cwd, raw)
	}
	rel, err := filepath.Rel(doDir, abs)
	if err != nil {
		// Not expressible relative to doDir (e.g. different volume); fall
		// back to the absolute path as the record key.
		return abs, abs, nil
	}
	return abs, rel, nil
}

// StoreIfChange records an ifchange dependency on raw in the parent's
// MetaDir, stamped at the current moment (spec: "stamped post-build").
func StoreIfChange(root, raw string) error {
	meta, doDir, err := Parent(root)
	if err != nil {
		return err
	}
	abs, key, err := Normalize(doDir, raw)
	if err != nil {
		return err
	}
	return meta.StoreIfChange(key, abs)
}

// StoreIfCreate records an ifcreate dependency on raw, failing if raw
// already exists.
func StoreIfCreate(root, raw string) error {
	meta, doDir, err := Parent(root)
	if err != nil {
		return err
	}
	abs, key, err := Normalize(doDir, raw)
	if err != nil {
		return err
	}
	return meta.StoreIfCreate(key, abs)
}

// StoreAlways records an always dependency on the parent target.
func StoreAlways(root string) error {
	meta, _, err := Parent(root)
	if err != nil {
		return err
	}
	return meta.StoreAlways()
}
