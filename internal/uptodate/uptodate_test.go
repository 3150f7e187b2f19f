package uptodate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/distr1/redo/internal/metadir"
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

func TestSourceFileIsUpToDate(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "meta")
	src := filepath.Join(dir, "source.c")
	writeFile(t, src, "int main(){}")

	ok, err := IsUpToDate(root, src)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("a plain source file with no .do should be up to date")
	}
}

func TestNeverBuiltIsStale(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "meta")
	target := filepath.Join(dir, "out")
	writeFile(t, filepath.Join(dir, "out.do"), "echo hi\n")

	ok, err := IsUpToDate(root, target)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("a target that has never been built should be stale")
	}
}

// simulates a successful build of `target` via `doPath`, recording an
// ifchange dependency on each entry of `deps` and marking the target built.
func simulateBuild(t *testing.T, root, target, doPath string, deps []string) *metadir.Dir {
	t.Helper()
	d := metadir.Open(root, target)
	if err := d.Init(doPath); err != nil {
		t.Fatal(err)
	}
	for _, dep := range deps {
		if err := d.StoreIfChange(dep, dep); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.MarkBuilt(target); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestUpToDateAfterCleanBuild(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "meta")
	dep := filepath.Join(dir, "a")
	writeFile(t, dep, "hello\n")
	writeFile(t, filepath.Join(dir, "a.do"), "echo hello\n")

	target := filepath.Join(dir, "b")
	writeFile(t, target, "hello\n")
	doPath := filepath.Join(dir, "b.do")
	writeFile(t, doPath, "redo-ifchange a; cat a\n")

	// `a` is itself a built target with no further deps.
	simulateBuild(t, root, dep, filepath.Join(dir, "a.do"), nil)
	simulateBuild(t, root, target, doPath, []string{dep})

	ok, err := IsUpToDate(root, target)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("freshly built target with unchanged deps should be up to date")
	}
}

func TestStaleAfterDependencyContentChange(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "meta")
	dep := filepath.Join(dir, "a")
	writeFile(t, dep, "hello\n")
	writeFile(t, filepath.Join(dir, "a.do"), "echo hello\n")

	target := filepath.Join(dir, "b")
	writeFile(t, target, "hello\n")
	doPath := filepath.Join(dir, "b.do")
	writeFile(t, doPath, "redo-ifchange a; cat a\n")

	simulateBuild(t, root, dep, filepath.Join(dir, "a.do"), nil)
	simulateBuild(t, root, target, doPath, []string{dep})

	// external edit of the dependency's content
	writeFile(t, dep, "world\n")

	ok, err := IsUpToDate(root, target)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("target should be stale once its dependency's content changed")
	}
}

func TestAlwaysForcesRebuild(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "meta")
	target := filepath.Join(dir, "d")
	writeFile(t, target, "now\n")
	doPath := filepath.Join(dir, "d.do")
	writeFile(t, doPath, "redo-always; echo now\n")

	d := metadir.Open(root, target)
	if err := d.Init(doPath); err != nil {
		t.Fatal(err)
	}
	if err := d.StoreAlways(); err != nil {
		t.Fatal(err)
	}
	if err := d.MarkBuilt(target); err != nil {
		t.Fatal(err)
	}

	ok, err := IsUpToDate(root, target)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("a target with an always dependency must never report up to date")
	}
}

func TestIfCreateTriggersRebuildOnceCreated(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "meta")
	target := filepath.Join(dir, "c")
	writeFile(t, target, "ok\n")
	doPath := filepath.Join(dir, "c.do")
	writeFile(t, doPath, "redo-ifcreate x; echo ok\n")

	d := metadir.Open(root, target)
	if err := d.Init(doPath); err != nil {
		t.Fatal(err)
	}
	depX := filepath.Join(dir, "x")
	if err := d.StoreIfCreate(depX, depX); err != nil {
		t.Fatal(err)
	}
	if err := d.StorePhony(); err != nil {
		t.Fatal(err)
	}

	ok, err := IsUpToDate(root, target)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("target should be up to date while the ifcreate path does not exist")
	}

	writeFile(t, depX, "")
	ok, err = IsUpToDate(root, target)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("creating the ifcreate-declared path should make the target stale")
	}
}

func TestCycleIsTreatedAsUpToDate(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "meta")
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	writeFile(t, a, "a")
	writeFile(t, b, "b")
	doA := filepath.Join(dir, "a.do")
	doB := filepath.Join(dir, "b.do")
	writeFile(t, doA, "redo-ifchange b\n")
	writeFile(t, doB, "redo-ifchange a\n")

	simulateBuild(t, root, a, doA, []string{b})
	simulateBuild(t, root, b, doB, []string{a})

	ok, err := IsUpToDate(root, a)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("a mutually-recursive dependency cycle must not hang the resolver, and should resolve up to date")
	}
}
