package depcmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/distr1/redo/internal/env"
)

func TestParentRequiresRedoTarget(t *testing.T) {
	t.Setenv(env.Target, "")
	t.Setenv(env.Path, "")
	if _, _, err := Parent(t.TempDir()); err == nil {
		t.Fatal("expected error outside a running .do")
	}
}

func TestStoreIfChangeWritesParentRecord(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "meta")
	doDir := filepath.Join(dir, "pkg")
	if err := os.MkdirAll(doDir, 0755); err != nil {
		t.Fatal(err)
	}
	parentTarget := filepath.Join(doDir, "b")
	dep := filepath.Join(doDir, "a")
	if err := os.WriteFile(dep, []byte("hi\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(env.Target, parentTarget)
	t.Setenv(env.Path, doDir)

	oldwd, _ := os.Getwd()
	defer os.Chdir(oldwd)
	if err := os.Chdir(doDir); err != nil {
		t.Fatal(err)
	}

	if err := StoreIfChange(root, "a"); err != nil {
		t.Fatal(err)
	}

	meta, _, err := Parent(root)
	if err != nil {
		t.Fatal(err)
	}
	recs, err := meta.IfChangeRecords()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Dep != "a" {
		t.Errorf("IfChangeRecords() = %+v, want one record keyed %q", recs, "a")
	}
}

func TestStoreAlways(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "meta")
	doDir := filepath.Join(dir, "pkg")
	os.MkdirAll(doDir, 0755)
	parentTarget := filepath.Join(doDir, "b")

	t.Setenv(env.Target, parentTarget)
	t.Setenv(env.Path, doDir)

	if err := StoreAlways(root); err != nil {
		t.Fatal(err)
	}
	meta, _, err := Parent(root)
	if err != nil {
		t.Fatal(err)
	}
	if !meta.HasAlways() {
		t.Fatal("expected always record to be written")
	}
}
