// Package env captures the REDO_* environment contract that is threaded
// through every parent/child .do invocation (spec §6). A top-level `redo`
// process reads this environment to discover whether it is itself nested
// inside another .do script; a spawned .do script and the redo-ifchange /
// redo-ifcreate / redo-always helpers it calls read it to find their way
// back to the parent target's metadata directory.
package env

import (
	"os"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

const (
	KeepGoing = "REDO_KEEP_GOING"
	Shuffle   = "REDO_SHUFFLE"
	Depth     = "REDO_DEPTH"
	ShellArgs = "REDO_SHELL_ARGS"
	InitPath  = "REDO_INIT_PATH"
	Session   = "REDO_SESSION"
	Path      = "REDO_PATH"
	Target    = "REDO_TARGET"
)

// Root returns the directory under which the metadata store and lock files
// live. $REDO_DIR overrides the default of $HOME/.redo, mirroring distri's
// $DISTRIROOT-or-$HOME/distri resolution in internal/env.findDistriRoot.
func Root() (string, error) {
	if dir := os.Getenv("REDO_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", xerrors.Errorf("determining metadata root: %w", err)
	}
	return home + "/.redo", nil
}

// IsKeepGoing reports whether REDO_KEEP_GOING is set to a non-empty value.
func IsKeepGoing() bool {
	return os.Getenv(KeepGoing) != ""
}

// CurrentDepth returns REDO_DEPTH as an integer, defaulting to 0 for an
// outermost invocation that has not set it yet.
func CurrentDepth() int {
	v := os.Getenv(Depth)
	if v == "" {
		return 0
	}
	d, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return d
}

// ParentPath returns REDO_PATH: the directory the currently running .do was
// invoked from. Empty at the outermost invocation.
func ParentPath() string {
	return os.Getenv(Path)
}

// ParentTarget returns REDO_TARGET: the absolute path of the target whose
// .do is currently executing. Empty at the outermost invocation.
func ParentTarget() string {
	return os.Getenv(Target)
}

// SessionID returns REDO_SESSION, materializing and exporting a fresh one
// into the current process's environment if absent. Only the outermost
// invocation of a redo command should observe an empty value here; nested
// redo-ifchange invocations inherit REDO_SESSION from their parent's child
// environment (see Child).
func SessionID() string {
	if s := os.Getenv(Session); s != "" {
		return s
	}
	s := uuid.NewString()
	os.Setenv(Session, s)
	return s
}

// ShellExtraArgs returns the accumulated REDO_SHELL_ARGS, e.g. "-x -v".
func ShellExtraArgs() string {
	return os.Getenv(ShellArgs)
}

// InitDir returns REDO_INIT_PATH, the working directory of the outermost
// invocation, materializing it from the current working directory if unset.
func InitDir() (string, error) {
	if p := os.Getenv(InitPath); p != "" {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	os.Setenv(InitPath, wd)
	return wd, nil
}

// Child describes the environment overrides a parent build applies before
// spawning a .do script or a recursive redo-ifchange/-ifcreate/-always
// helper (spec §6 "Environment written to child").
type Child struct {
	Path      string // directory of the .do about to run
	Target    string // absolute path of the target being built
	Depth     int
	KeepGoing bool
	Shuffle   string
	ShellArgs string
	InitPath  string
	Session   string
}

// Environ renders c on top of base (typically os.Environ()), overwriting
// (never appending to) REDO_TARGET and the other REDO_* keys, and appending
// ":." to PATH so helpers invoked from the current directory are found.
func (c Child) Environ(base []string) []string {
	out := make([]string, 0, len(base)+8)
	drop := map[string]bool{
		KeepGoing: true, Shuffle: true, Depth: true, ShellArgs: true,
		InitPath: true, Session: true, Path: true, Target: true,
		"PATH": true,
	}
	for _, kv := range base {
		if k, _, ok := splitEnv(kv); ok && drop[k] {
			continue
		}
		out = append(out, kv)
	}
	out = append(out,
		Path+"="+c.Path,
		Target+"="+c.Target,
		Depth+"="+strconv.Itoa(c.Depth),
		ShellArgs+"="+c.ShellArgs,
		InitPath+"="+c.InitPath,
		Session+"="+c.Session,
		Shuffle+"="+c.Shuffle,
		"PATH="+pathValue(base)+":.",
	)
	if c.KeepGoing {
		out = append(out, KeepGoing+"=1")
	}
	return out
}

func splitEnv(kv string) (key, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

func pathValue(base []string) string {
	for _, kv := range base {
		if k, v, ok := splitEnv(kv); ok && k == "PATH" {
			return v
		}
	}
	return ""
}
