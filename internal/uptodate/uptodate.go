// Package uptodate implements the recursive up-to-date decision procedure
// (spec §4.4). The recursion is guarded by a seen set scoped to one
// resolver call, the same cycle-protection idiom distri's
// internal/build/resolve.go uses when walking a package dependency graph
// (resolve1's seen map) — generalized here from a package graph to a redo
// target graph, and from "already counted" to "already proven up to date
// for this call" (spec §9: a second visit to the same target within one
// resolver call is treated as up to date).
package uptodate

import (
	"os"
	"path/filepath"

	"github.com/distr1/redo/internal/dofile"
	"github.com/distr1/redo/internal/metadir"
	"github.com/distr1/redo/internal/stamp"
)

// IsUpToDate reports whether target (an absolute path) needs no rebuild.
func IsUpToDate(root, target string) (bool, error) {
	return isUpToDate(root, target, make(map[string]bool))
}

func isUpToDate(root, target string, seen map[string]bool) (bool, error) {
	if seen[target] {
		return true, nil
	}
	seen[target] = true

	d := metadir.Open(root, target)

	// Step 1: never built at all (neither the target nor a phony marker
	// exists) -> always stale.
	if _, ok := d.BuiltTargetPath(target); !ok {
		return false, nil
	}

	// Step 2: no .do -> source file, trivially up to date.
	doPath, hasDo, err := dofile.Resolve(target)
	if err != nil {
		return false, err
	}
	if !hasDo {
		return true, nil
	}

	// Step 3: no MetaDir -> treat as source.
	if !d.Exists() {
		return true, nil
	}

	// Step 4: always and ifcreate short-circuits, in that precedence order.
	if d.HasAlways() {
		return false, nil
	}
	ifcreates, err := d.IfCreateRecords()
	if err != nil {
		return false, err
	}
	doDir := filepath.Dir(doPath)
	for _, p := range ifcreates {
		if !filepath.IsAbs(p) {
			p = filepath.Join(doDir, p)
		}
		if _, err := os.Lstat(p); err == nil {
			return false, nil
		} else if !os.IsNotExist(err) {
			return false, err
		}
	}

	// Step 5: every ifchange dependency must still be present, unchanged,
	// and itself up to date.
	records, err := d.IfChangeRecords()
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		depAbs := rec.Dep
		if !filepath.IsAbs(depAbs) {
			depAbs = filepath.Join(doDir, depAbs)
		}
		depMeta := metadir.Open(root, depAbs)
		if _, ok := depMeta.BuiltTargetPath(depAbs); !ok {
			return false, nil
		}
		cur, err := stamp.Compute(depAbs)
		if err != nil {
			return false, err
		}
		if !stamp.Equal(cur, rec.Stamp) {
			return false, nil
		}
		depUpToDate, err := isUpToDate(root, depAbs, seen)
		if err != nil {
			return false, err
		}
		if !depUpToDate {
			return false, nil
		}
	}

	return true, nil
}
