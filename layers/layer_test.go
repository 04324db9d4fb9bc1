package layers

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"testing"
)

// tarEntry describes one member of a fixture layer.
type tarEntry struct {
	name     string
	typeflag byte
	mode     int64
	content  string
	linkname string
}

func file(name, content string, mode int64) tarEntry {
	return tarEntry{name: name, typeflag: tar.TypeReg, mode: mode, content: content}
}

func dir(name string, mode int64) tarEntry {
	return tarEntry{name: name, typeflag: tar.TypeDir, mode: mode}
}

func symlink(name, target string) tarEntry {
	return tarEntry{name: name, typeflag: tar.TypeSymlink, mode: 0777, linkname: target}
}

func hardlink(name, target string) tarEntry {
	return tarEntry{name: name, typeflag: tar.TypeLink, mode: 0644, linkname: target}
}

func whiteout(name string) tarEntry {
	return tarEntry{name: name, typeflag: tar.TypeReg, mode: 0644}
}

// buildLayer assembles an uncompressed tar stream from fixture entries.
func buildLayer(t *testing.T, entries ...tarEntry) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		header := &tar.Header{
			Name:     e.name,
			Typeflag: e.typeflag,
			Mode:     e.mode,
			Linkname: e.linkname,
			Size:     int64(len(e.content)),
		}
		if err := tw.WriteHeader(header); err != nil {
			t.Fatalf("write header %s: %v", e.name, err)
		}
		if e.content != "" {
			if _, err := tw.Write([]byte(e.content)); err != nil {
				t.Fatalf("write content %s: %v", e.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close layer: %v", err)
	}
	return &buf
}

func applyLayers(t *testing.T, dest string, layerStreams ...io.Reader) error {
	t.Helper()
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}
	m := NewMerger(dest)
	for _, stream := range layerStreams {
		if err := m.ApplyLayer(stream); err != nil {
			return err
		}
	}
	return nil
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func mustNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); !os.IsNotExist(err) {
		t.Errorf("expected %s to be absent, lstat err = %v", path, err)
	}
}

func listNames(t *testing.T, path string) []string {
	t.Helper()
	entries, err := os.ReadDir(path)
	if err != nil {
		t.Fatalf("read dir %s: %v", path, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}
