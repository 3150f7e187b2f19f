// Package dofile implements the .do search order (spec §4.2): a
// target-specific script in the target's own directory, or a default
// script matching a suffix of the target's extensions, searched in the
// target's directory and then each ancestor directory in turn. The ascent
// is bounded exactly like distri's internal/build/resolve.go bounds its
// dependency-graph recursion with a seen set — here the "seen" set is
// implicit in strictly walking up toward the filesystem root, which visits
// each directory at most once.
package dofile

import (
	"os"
	"path/filepath"
	"strings"
)

// Resolve returns the .do script for absTarget, or ok=false if none exists
// anywhere along the search path.
func Resolve(absTarget string) (doPath string, ok bool, err error) {
	dir := filepath.Dir(absTarget)
	base := filepath.Base(absTarget)

	specific := filepath.Join(dir, base+".do")
	exists, err := isFile(specific)
	if err != nil {
		return "", false, err
	}
	if exists {
		return specific, true, nil
	}

	candidates := defaultCandidates(base)
	for d := dir; ; {
		for _, name := range candidates {
			p := filepath.Join(d, name)
			ok, err := isFile(p)
			if err != nil {
				return "", false, err
			}
			if ok {
				return p, true, nil
			}
		}
		parent := filepath.Dir(d)
		if parent == d {
			return "", false, nil
		}
		d = parent
	}
}

// defaultCandidates lists default<...>.do names in search order, from the
// most specific (matching the target's full extension chain) down to the
// bare "default.do".
func defaultCandidates(filename string) []string {
	var out []string
	rest := filename
	for {
		idx := strings.Index(rest, ".")
		if idx == -1 {
			break
		}
		rest = rest[idx+1:]
		out = append(out, "default."+rest+".do")
	}
	out = append(out, "default.do")
	return out
}

func isFile(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !fi.IsDir(), nil
}
