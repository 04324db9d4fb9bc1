package layers

import (
	"os"
	"path/filepath"
	"testing"

	errs "github.com/bibin-skaria/rootfs/internal/errors"
)

func TestLaterLayerWins(t *testing.T) {
	dest := t.TempDir()

	err := applyLayers(t, dest,
		buildLayer(t, file("f", "A", 0644)),
		buildLayer(t, file("f", "B", 0600)),
	)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	path := filepath.Join(dest, "f")
	if got := readFile(t, path); got != "B" {
		t.Errorf("f = %q, want %q", got, "B")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("f mode = %o, want 0600", perm)
	}
}

func TestHardlinkResolvesForwardReference(t *testing.T) {
	dest := t.TempDir()

	// The link entry precedes its target in the stream; resolution must be
	// deferred until the layer is fully materialized.
	err := applyLayers(t, dest,
		buildLayer(t,
			hardlink("link", "target"),
			file("target", "shared", 0644),
		),
	)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	linkInfo, err := os.Stat(filepath.Join(dest, "link"))
	if err != nil {
		t.Fatalf("stat link: %v", err)
	}
	targetInfo, err := os.Stat(filepath.Join(dest, "target"))
	if err != nil {
		t.Fatalf("stat target: %v", err)
	}
	if !os.SameFile(linkInfo, targetInfo) {
		t.Error("expected link and target to share the same inode")
	}
	if got := readFile(t, filepath.Join(dest, "link")); got != "shared" {
		t.Errorf("link = %q, want %q", got, "shared")
	}
}

func TestHardlinkWithMissingSourceIsDropped(t *testing.T) {
	dest := t.TempDir()

	err := applyLayers(t, dest,
		buildLayer(t,
			hardlink("link", "never-written"),
			file("other", "x", 0644),
		),
	)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	mustNotExist(t, filepath.Join(dest, "link"))
	if got := readFile(t, filepath.Join(dest, "other")); got != "x" {
		t.Errorf("other = %q, want x", got)
	}
}

func TestPathTraversalAborts(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "dest")

	err := applyLayers(t, dest,
		buildLayer(t, file("../../etc/passwd", "evil", 0644)),
	)
	if err == nil {
		t.Fatal("expected merge to fail on traversal")
	}
	if !errs.IsPathTraversal(err) {
		t.Fatalf("error = %v, want path traversal", err)
	}
	mustNotExist(t, filepath.Join(parent, "etc"))
}

func TestHardlinkTargetTraversalAborts(t *testing.T) {
	dest := t.TempDir()

	err := applyLayers(t, dest,
		buildLayer(t, hardlink("link", "../../outside")),
	)
	if err == nil {
		t.Fatal("expected merge to fail on traversal via link target")
	}
	if !errs.IsPathTraversal(err) {
		t.Fatalf("error = %v, want path traversal", err)
	}
}

func TestDirectoryModeSurvivesImplicitParentCreation(t *testing.T) {
	dest := t.TempDir()

	err := applyLayers(t, dest,
		buildLayer(t,
			dir("d", 0750),
			file("d/child", "c", 0644),
		),
	)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(dest, "d"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0750 {
		t.Errorf("d mode = %o, want 0750", perm)
	}
}

func TestMultiLayerSequencing(t *testing.T) {
	dest := t.TempDir()

	err := applyLayers(t, dest,
		buildLayer(t, dir("d", 0755), file("d/x", "x", 0644)),
		buildLayer(t, whiteout("d/.wh..wh..opq")),
		buildLayer(t, file("d/y", "y", 0644)),
	)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	names := listNames(t, filepath.Join(dest, "d"))
	if len(names) != 1 || names[0] != "y" {
		t.Errorf("d contains %v, want [y]", names)
	}
}

func TestSymlinkOverwritesPriorObjects(t *testing.T) {
	dest := t.TempDir()

	err := applyLayers(t, dest,
		buildLayer(t,
			file("was-file", "f", 0644),
			dir("was-dir", 0755),
			file("was-dir/inner", "i", 0644),
		),
		buildLayer(t,
			symlink("was-file", "elsewhere"),
			symlink("was-dir", "elsewhere"),
		),
	)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	for _, name := range []string{"was-file", "was-dir"} {
		target, err := os.Readlink(filepath.Join(dest, name))
		if err != nil {
			t.Fatalf("readlink %s: %v", name, err)
		}
		if target != "elsewhere" {
			t.Errorf("%s -> %q, want elsewhere", name, target)
		}
	}
}

func TestRegularFileReplacesSymlinkWithoutFollowingIt(t *testing.T) {
	dest := t.TempDir()

	err := applyLayers(t, dest,
		buildLayer(t,
			file("victim", "original", 0644),
			symlink("f", "victim"),
		),
		buildLayer(t, file("f", "new", 0644)),
	)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	if got := readFile(t, filepath.Join(dest, "f")); got != "new" {
		t.Errorf("f = %q, want new", got)
	}
	if got := readFile(t, filepath.Join(dest, "victim")); got != "original" {
		t.Errorf("victim = %q, want original (write must not follow the old symlink)", got)
	}
}

func TestUnsupportedKindsAreSkipped(t *testing.T) {
	dest := t.TempDir()

	err := applyLayers(t, dest,
		buildLayer(t,
			tarEntry{name: "dev/null", typeflag: '3', mode: 0666}, // char device
			tarEntry{name: "fifo", typeflag: '6', mode: 0644},
			file("kept", "x", 0644),
		),
	)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	mustNotExist(t, filepath.Join(dest, "dev", "null"))
	mustNotExist(t, filepath.Join(dest, "fifo"))
	if got := readFile(t, filepath.Join(dest, "kept")); got != "x" {
		t.Errorf("kept = %q, want x", got)
	}
}

func TestRootEntryIsSkipped(t *testing.T) {
	dest := t.TempDir()

	err := applyLayers(t, dest,
		buildLayer(t,
			tarEntry{name: "./", typeflag: '5', mode: 0711},
			file("f", "x", 0644),
		),
	)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if got := readFile(t, filepath.Join(dest, "f")); got != "x" {
		t.Errorf("f = %q, want x", got)
	}
}

func TestMergeOverSources(t *testing.T) {
	workDir := t.TempDir()
	dest := filepath.Join(workDir, "rootfs")

	writeBlob := func(name string, entries ...tarEntry) string {
		path := filepath.Join(workDir, name)
		stream := buildLayer(t, entries...)
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.ReadFrom(stream); err != nil {
			t.Fatal(err)
		}
		if err := f.Close(); err != nil {
			t.Fatal(err)
		}
		return path
	}

	blob1 := writeBlob("layer1.tar", file("a", "1", 0644))
	blob2 := writeBlob("layer2.tar", file("b", "2", 0600), whiteout(".wh.a"))

	err := Merge(dest, []Source{FileSource(blob1), FileSource(blob2)})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	mustNotExist(t, filepath.Join(dest, "a"))
	if got := readFile(t, filepath.Join(dest, "b")); got != "2" {
		t.Errorf("b = %q, want 2", got)
	}
}
