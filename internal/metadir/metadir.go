// Package metadir implements the per-target metadata store (spec §4.3): a
// flat directory of self-describing record files recording a target's
// dependencies, its cached .do path, and its clean/dirty/phony status.
package metadir

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/distr1/redo/internal/stamp"
	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

const (
	prefixIfChange = ".@"
	suffixIfChange = "@."
	prefixIfCreate = ".%"
	suffixIfCreate = "%."
	fileAlways     = ".~redo-always~."
	filePhony      = ".phony-target."
	fileCachedDo   = ".do.do."
	fileBuilt      = ".blt.blt."
	prefixClean    = ".cln."
	suffixClean    = ".cln."
	prefixDirty    = ".drt."
	suffixDirty    = ".drt."
)

// Dir is a handle on the MetaDir for one target. It does not cache any
// record contents; every method reflects the on-disk state at call time.
type Dir struct {
	path string // <root>/<xx>/<rest-of-hash>
}

// Open returns the Dir for the target identified by absTargetPath, without
// requiring it to exist yet.
func Open(root, absTargetPath string) *Dir {
	id := stamp.HashTargetID(absTargetPath)
	sub := id
	if len(id) > 2 {
		sub = filepath.Join(id[:2], id[2:])
	}
	return &Dir{path: filepath.Join(root, sub)}
}

// Path returns the MetaDir's own directory.
func (d *Dir) Path() string { return d.path }

// Exists reports whether the MetaDir has been created.
func (d *Dir) Exists() bool {
	fi, err := os.Stat(d.path)
	return err == nil && fi.IsDir()
}

// Init removes any prior MetaDir contents, creates a fresh MetaDir, records
// doPath as the cached .do, and stores an ifchange record for the .do
// itself stamped at this moment (spec §4.3 init_metadir).
func (d *Dir) Init(doPath string) error {
	if err := os.RemoveAll(d.path); err != nil {
		return xerrors.Errorf("removing stale metadir: %w", err)
	}
	if err := os.MkdirAll(d.path, 0755); err != nil {
		return xerrors.Errorf("creating metadir: %w", err)
	}
	if err := d.writeAtomic(fileCachedDo, []byte(doPath)); err != nil {
		return err
	}
	return d.StoreIfChange(doPath, doPath)
}

// StoreIfChange stamps actualPath (or records it absent) and writes the
// ifchange record under recordKey, the path spelling later used to resolve
// the dependency (spec §4.6: normalized relative to the parent's .do
// directory; absolute paths, such as the .do file's own self-record, are
// also valid keys).
func (d *Dir) StoreIfChange(recordKey, actualPath string) error {
	s, err := stamp.Compute(actualPath)
	if err != nil {
		return xerrors.Errorf("stamping %s: %w", actualPath, err)
	}
	return d.writeAtomic(ifChangeName(recordKey), []byte(s))
}

// StoreIfCreate records recordKey as an ifcreate dependency. It fails if
// actualPath currently exists, matching redo-ifcreate's contract.
func (d *Dir) StoreIfCreate(recordKey, actualPath string) error {
	if _, err := os.Lstat(actualPath); err == nil {
		return fmt.Errorf("redo-ifcreate: %s already exists", actualPath)
	} else if !os.IsNotExist(err) {
		return err
	}
	return d.writeAtomic(ifCreateName(recordKey), []byte{0})
}

// StoreAlways records an always dependency.
func (d *Dir) StoreAlways() error {
	return d.writeAtomic(fileAlways, []byte{0})
}

// StorePhony marks the target as having produced no artifact.
func (d *Dir) StorePhony() error {
	return d.writeAtomic(filePhony, []byte{0})
}

// MarkClean purges any clean/dirty marks from prior sessions and records
// session as having proven the target clean.
func (d *Dir) MarkClean(session string) error {
	if err := d.purgeMarks(); err != nil {
		return err
	}
	return d.writeAtomic(prefixClean+session+suffixClean, []byte{0})
}

// MarkDirty purges any clean/dirty marks from prior sessions and records
// session as having observed a build failure.
func (d *Dir) MarkDirty(session string) error {
	if err := d.purgeMarks(); err != nil {
		return err
	}
	return d.writeAtomic(prefixDirty+session+suffixDirty, []byte{0})
}

func (d *Dir) purgeMarks() error {
	for _, pattern := range []string{prefixClean + "*" + suffixClean, prefixDirty + "*" + suffixDirty} {
		matches, err := filepath.Glob(filepath.Join(d.path, pattern))
		if err != nil {
			return err
		}
		for _, m := range matches {
			if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}

// MarkBuilt records target's current stamp as the post-build timestamp.
func (d *Dir) MarkBuilt(target string) error {
	s, err := stamp.Compute(target)
	if err != nil {
		return err
	}
	return d.writeAtomic(fileBuilt, []byte(s))
}

// BuiltTimestamp returns the stamp recorded by the last successful
// MarkBuilt, if any.
func (d *Dir) BuiltTimestamp() (stamp.Stamp, bool, error) {
	b, err := os.ReadFile(filepath.Join(d.path, fileBuilt))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return stamp.Stamp(b), true, nil
}

// IsClean reports whether session previously marked this target clean.
func (d *Dir) IsClean(session string) bool {
	_, err := os.Stat(filepath.Join(d.path, prefixClean+session+suffixClean))
	return err == nil
}

// IsDirty reports whether session previously marked this target dirty.
func (d *Dir) IsDirty(session string) bool {
	_, err := os.Stat(filepath.Join(d.path, prefixDirty+session+suffixDirty))
	return err == nil
}

// CachedDo returns the .do path recorded by Init, if any.
func (d *Dir) CachedDo() (string, bool, error) {
	b, err := os.ReadFile(filepath.Join(d.path, fileCachedDo))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

// IsPhony reports whether the target's last build produced no artifact.
func (d *Dir) IsPhony() bool {
	_, err := os.Stat(filepath.Join(d.path, filePhony))
	return err == nil
}

// HasAlways reports whether the target declared an always dependency.
func (d *Dir) HasAlways() bool {
	_, err := os.Stat(filepath.Join(d.path, fileAlways))
	return err == nil
}

// IfChangeRecord is one (dependency, stamp-at-declaration-time) pair.
type IfChangeRecord struct {
	Dep   string
	Stamp stamp.Stamp
}

// IfChangeRecords lists every ifchange dependency recorded for this target.
func (d *Dir) IfChangeRecords() ([]IfChangeRecord, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []IfChangeRecord
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefixIfChange) || !strings.HasSuffix(name, suffixIfChange) {
			continue
		}
		escaped := strings.TrimSuffix(strings.TrimPrefix(name, prefixIfChange), suffixIfChange)
		b, err := os.ReadFile(filepath.Join(d.path, name))
		if err != nil {
			return nil, err
		}
		out = append(out, IfChangeRecord{Dep: Unescape(escaped), Stamp: stamp.Stamp(b)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dep < out[j].Dep })
	return out, nil
}

// IfCreateRecords lists every ifcreate dependency recorded for this target.
func (d *Dir) IfCreateRecords() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefixIfCreate) || !strings.HasSuffix(name, suffixIfCreate) {
			continue
		}
		escaped := strings.TrimSuffix(strings.TrimPrefix(name, prefixIfCreate), suffixIfCreate)
		out = append(out, Unescape(escaped))
	}
	sort.Strings(out)
	return out, nil
}

// BuiltTargetPath returns the path whose existence certifies that target
// was actually produced: target itself if present on disk, else the
// phony-marker path if the target was recorded phony, else ok=false (spec
// §4.3 getBuiltTargetPath).
func (d *Dir) BuiltTargetPath(target string) (path string, ok bool) {
	if _, err := os.Lstat(target); err == nil {
		return target, true
	}
	if d.IsPhony() {
		return filepath.Join(d.path, filePhony), true
	}
	return "", false
}

func (d *Dir) writeAtomic(name string, data []byte) error {
	if err := os.MkdirAll(d.path, 0755); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(d.path, name), data)
}

// writeFileAtomic installs data at path by writing to a sibling temp file
// and renaming into place, the same pattern distri's internal/build uses to
// install build artifacts (renameio.TempFile + CloseAtomicallyReplace).
func writeFileAtomic(path string, data []byte) error {
	f, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer f.Cleanup()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.CloseAtomicallyReplace()
}

// IsSource reports whether absTargetPath exists on disk and has no MetaDir
// of its own — i.e. it is a source file, never built by redo (spec §4.3
// is_source).
func IsSource(root, absTargetPath string) bool {
	if _, err := os.Lstat(absTargetPath); err != nil {
		return false
	}
	return !Open(root, absTargetPath).Exists()
}

func ifChangeName(dep string) string {
	return prefixIfChange + Escape(dep) + suffixIfChange
}

func ifCreateName(dep string) string {
	return prefixIfCreate + Escape(dep) + suffixIfCreate
}
