package batch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/distr1/redo/internal/build"
	"github.com/distr1/redo/internal/lockfile"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func testSession(t *testing.T, dir string) *build.Session {
	t.Helper()
	t.Setenv("REDO_DIR", filepath.Join(dir, "meta"))
	sess, err := build.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	return sess
}

func TestRunBuildsEveryTargetSequentially(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		writeFile(t, filepath.Join(dir, name+".do"), "echo "+name+" > $3\n")
	}
	sess := testSession(t, dir)

	err := Run(context.Background(), sess, Redo,
		[]string{filepath.Join(dir, "a"), filepath.Join(dir, "b"), filepath.Join(dir, "c")},
		false)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a", "b", "c"} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("target %s was not built: %v", name, err)
		}
		if strings.TrimSpace(string(got)) != name {
			t.Fatalf("target %s content = %q, want %q", name, got, name)
		}
	}
}

func TestRunKeepGoingCollectsAllFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "good.do"), "echo ok > $3\n")
	writeFile(t, filepath.Join(dir, "bad.do"), "exit 1\n")
	sess := testSession(t, dir)

	err := Run(context.Background(), sess, Redo,
		[]string{filepath.Join(dir, "good"), filepath.Join(dir, "bad")}, true)
	if err == nil {
		t.Fatal("expected an aggregate error naming the failed target")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Fatalf("error %q does not name the failing target", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "good")); statErr != nil {
		t.Fatalf("good target should still have been built under keep-going: %v", statErr)
	}
}

func TestRunNonKeepGoingStopsAtFirstFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.do"), "exit 1\n")
	writeFile(t, filepath.Join(dir, "after.do"), "echo built > $3\n")
	sess := testSession(t, dir)

	err := Run(context.Background(), sess, Redo,
		[]string{filepath.Join(dir, "bad"), filepath.Join(dir, "after")}, false)
	if err == nil {
		t.Fatal("expected an error from the failing target")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "after")); !os.IsNotExist(statErr) {
		t.Fatalf("target after the failure should not have been attempted, stat err = %v", statErr)
	}
}

func TestRunEmptyTargetsIsNoop(t *testing.T) {
	dir := t.TempDir()
	sess := testSession(t, dir)
	if err := Run(context.Background(), sess, Redo, nil, false); err != nil {
		t.Fatal(err)
	}
}

// TestRunDefersContendedTargetToSecondPass exercises spec §4.5 step 2's
// two-pass acquisition directly: with one target's LockFile already held,
// the first (non-blocking) pass must not fail or wait on it, and the
// second (blocking) pass must still build it once the holder releases.
func TestRunDefersContendedTargetToSecondPass(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "free.do"), "echo free > $3\n")
	writeFile(t, filepath.Join(dir, "held.do"), "echo held > $3\n")
	sess := testSession(t, dir)

	held := filepath.Join(dir, "held")
	abs, err := filepath.Abs(held)
	if err != nil {
		t.Fatal(err)
	}
	locker, err := lockfile.New(lockfile.Path(sess.Root, abs))
	if err != nil {
		t.Fatal(err)
	}
	if err := locker.Lock(true); err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		locker.Unlock()
	}()

	err = Run(context.Background(), sess, Redo,
		[]string{filepath.Join(dir, "free"), held}, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, statErr := os.Stat(held); statErr != nil {
		t.Fatalf("held target should have been built in the second pass: %v", statErr)
	}
}
