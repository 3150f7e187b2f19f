// Package build implements the single-target build orchestrator (spec
// §4.5): locate the .do, lock the target, run the script under a
// controlled environment, atomically install its output, and update the
// target's metadata. Subprocess composition here mirrors distri's
// internal/build/build.go build-step execution (exec.CommandContext,
// cmd.Env, cmd.Dir, cmd.Stdout wiring); the atomic-install half is new
// (spec §4.5.1 has no equivalent in distri, which installs a single
// finished artifact rather than choosing between two candidate outputs).
package build

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/distr1/redo/internal/dofile"
	"github.com/distr1/redo/internal/env"
	"github.com/distr1/redo/internal/lockfile"
	"github.com/distr1/redo/internal/metadir"
	"github.com/distr1/redo/internal/stamp"
	"github.com/distr1/redo/internal/uptodate"
	"golang.org/x/xerrors"
)

// Session carries the ambient configuration threaded through one redo
// invocation: the metadata root, the REDO_SESSION id, and the environment
// values every spawned .do and helper must inherit.
type Session struct {
	Root      string
	SessionID string
	Depth     int
	KeepGoing bool
	Shuffle   string
	ShellArgs string
	InitPath  string

	Stderr io.Writer
}

// NewSession builds a Session from the process environment, materializing
// REDO_SESSION and REDO_INIT_PATH if this is the outermost invocation.
func NewSession() (*Session, error) {
	root, err := env.Root()
	if err != nil {
		return nil, err
	}
	initPath, err := env.InitDir()
	if err != nil {
		return nil, err
	}
	return &Session{
		Root:      root,
		SessionID: env.SessionID(),
		Depth:     env.CurrentDepth(),
		KeepGoing: env.IsKeepGoing(),
		Shuffle:   os.Getenv(env.Shuffle),
		ShellArgs: env.ShellExtraArgs(),
		InitPath:  initPath,
		Stderr:    os.Stderr,
	}, nil
}

// RedoTarget builds target unconditionally (the `redo` verb): it must have
// a .do, or this fails with NoDoFileError. block controls whether lock
// acquisition waits for a contended target or returns ErrDeferred (spec
// §4.5 step 2's two-pass acquisition, driven by internal/batch).
func (s *Session) RedoTarget(ctx context.Context, target string, block bool) error {
	abs, err := stamp.Canonicalize(target)
	if err != nil {
		return err
	}
	doPath, ok, err := dofile.Resolve(abs)
	if err != nil {
		return err
	}
	if !ok {
		return &NoDoFileError{Target: target}
	}
	return s.runBuild(ctx, abs, doPath, block)
}

// IfChangeTarget builds target only if it is not already up to date (the
// `redo-ifchange` verb's per-target behavior, spec §4.5 redo_ifchange).
// block is as for RedoTarget.
func (s *Session) IfChangeTarget(ctx context.Context, target string, block bool) error {
	abs, err := stamp.Canonicalize(target)
	if err != nil {
		return err
	}
	upToDate, err := uptodate.IsUpToDate(s.Root, abs)
	if err != nil {
		return err
	}
	if upToDate {
		return nil
	}
	doPath, ok, err := dofile.Resolve(abs)
	if err != nil {
		return err
	}
	if ok {
		return s.runBuild(ctx, abs, doPath, block)
	}
	if _, err := os.Lstat(abs); err == nil {
		return nil // a source file, not out of date in any actionable sense
	}
	return &NoDoFileError{Target: target}
}

// runBuild performs the full per-target build sequence of spec §4.5 steps
// 1-9 for a target whose .do has already been resolved.
func (s *Session) runBuild(ctx context.Context, target, doPath string, block bool) error {
	lockPath := lockfile.Path(s.Root, target)
	locker, err := lockfile.New(lockPath)
	if err != nil {
		return err
	}
	if err := locker.Lock(block); err != nil {
		if !block && errors.Is(err, lockfile.ErrWouldBlock) {
			return ErrDeferred
		}
		return xerrors.Errorf("locking %s: %w", target, err)
	}
	defer locker.Unlock()

	meta := metadir.Open(s.Root, target)

	cachedStamp, hasCached, err := meta.BuiltTimestamp()
	if err != nil {
		return err
	}
	preBuild, err := stamp.Compute(target)
	if err != nil {
		return err
	}
	if hasCached && !preBuild.IsAbsent() && !stamp.Equal(cachedStamp, preBuild) {
		log.Printf("redo: %s was modified outside of redo; leaving it alone", target)
		return nil
	}

	doDir := filepath.Dir(doPath)
	origWd, err := os.Getwd()
	if err != nil {
		return err
	}
	if err := os.Chdir(doDir); err != nil {
		return err
	}
	defer os.Chdir(origWd)

	if err := meta.Init(doPath); err != nil {
		return err
	}

	tmp3 := target + ".redo1.temp"
	tmpStdout := filepath.Join(doDir, filepath.Base(target)+".redo2.temp")
	defer func() {
		os.Remove(tmp3)
		os.Remove(tmpStdout)
	}()

	arg1, arg2, err := targetArgs(target, doPath, doDir)
	if err != nil {
		return err
	}
	arg3, err := filepath.Rel(doDir, tmp3)
	if err != nil {
		arg3 = tmp3
	}

	argv, err := interpreter(doPath, s.ShellArgs)
	if err != nil {
		return err
	}
	argv = append(argv, doPath, arg1, arg2, arg3)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = doDir
	cmd.Env = s.childEnviron(doDir, target)
	cmd.Stderr = s.Stderr

	outFile, err := os.Create(tmpStdout)
	if err != nil {
		return err
	}
	cmd.Stdout = outFile
	runErr := cmd.Run()
	outFile.Close()

	if runErr != nil {
		if err := meta.MarkDirty(s.SessionID); err != nil {
			return err
		}
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			return &ExitError{Target: target, Code: exitErr.ExitCode()}
		}
		return runErr
	}

	if err := s.install(target, tmp3, tmpStdout, preBuild); err != nil {
		meta.MarkDirty(s.SessionID)
		return err
	}
	if err := meta.MarkClean(s.SessionID); err != nil {
		return err
	}
	if _, err := os.Lstat(target); err == nil {
		if err := meta.MarkBuilt(target); err != nil {
			return err
		}
	}
	return nil
}

// childEnviron composes the environment the .do script (and anything it
// spawns, including the redo-ifchange/-ifcreate/-always helpers) inherits
// (spec §6 "Environment written to child").
func (s *Session) childEnviron(doDir, target string) []string {
	return env.Child{
		Path:      doDir,
		Target:    target,
		Depth:     s.Depth + 1,
		KeepGoing: s.KeepGoing,
		Shuffle:   s.Shuffle,
		ShellArgs: s.ShellArgs,
		InitPath:  s.InitPath,
		Session:   s.SessionID,
	}.Environ(os.Environ())
}

// targetArgs computes $1 and $2 (spec §6): $1 is target relative to doDir;
// $2 equals $1 for a specific .do, or $1 with the matched default.do's
// extension suffix stripped.
func targetArgs(target, doPath, doDir string) (arg1, arg2 string, err error) {
	arg1, err = filepath.Rel(doDir, target)
	if err != nil {
		return "", "", err
	}
	specific := filepath.Join(doDir, filepath.Base(target)+".do")
	if doPath == specific {
		return arg1, arg1, nil
	}
	doName := filepath.Base(doPath)
	suffix := trimDefaultDo(doName)
	arg2 = trimSuffixOnce(arg1, suffix)
	return arg1, arg2, nil
}

// trimDefaultDo extracts the extension suffix a default<...>.do name
// covers, e.g. "default.tar.gz.do" -> ".tar.gz", "default.do" -> "".
func trimDefaultDo(name string) string {
	const prefix, suffix = "default", ".do"
	if len(name) < len(prefix)+len(suffix) {
		return ""
	}
	return name[len(prefix) : len(name)-len(suffix)]
}

func trimSuffixOnce(s, suffix string) string {
	if suffix == "" {
		return s
	}
	if len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)]
	}
	return s
}
