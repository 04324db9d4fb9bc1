package layers

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	errs "github.com/bibin-skaria/rootfs/internal/errors"
)

// applyWhiteout classifies a normalized entry path and, for whiteout markers,
// applies the removal against the destination tree. It returns true when the
// entry was a directive and has been fully consumed; the marker itself is
// never materialized. Absent targets are successful no-ops.
func (m *Merger) applyWhiteout(rel string) (bool, error) {
	base := path.Base(rel)
	parent := path.Dir(rel)

	if base == opaqueMarker {
		dir := filepath.Join(m.dest, filepath.FromSlash(parent))
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			// Opaque marker for content not yet created: nothing to clear.
			return true, nil
		}
		children, err := os.ReadDir(dir)
		if err != nil {
			return true, errs.NewIOError("read dir", dir, err)
		}
		for _, child := range children {
			if err := removePath(filepath.Join(dir, child.Name())); err != nil {
				return true, err
			}
		}
		logrus.WithFields(logrus.Fields{"dir": parent}).Debug("cleared opaque directory")
		return true, nil
	}

	if strings.HasPrefix(base, whiteoutPrefix) {
		name := strings.TrimPrefix(base, whiteoutPrefix)
		if name == "" {
			// A bare ".wh." names nothing; consume it without side effects.
			return true, nil
		}
		target := filepath.Join(m.dest, filepath.FromSlash(parent), name)
		if err := removePath(target); err != nil {
			return true, err
		}
		logrus.WithFields(logrus.Fields{"path": path.Join(parent, name)}).Debug("applied whiteout")
		return true, nil
	}

	return false, nil
}

// removePath deletes whatever sits at p: files and symlinks are unlinked,
// directories are removed recursively. A missing p is a no-op.
func removePath(p string) error {
	info, err := os.Lstat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.NewIOError("stat", p, err)
	}

	if info.IsDir() {
		if err := os.RemoveAll(p); err != nil {
			return errs.NewIOError("remove dir", p, err)
		}
		return nil
	}
	if err := os.Remove(p); err != nil {
		return errs.NewIOError("remove", p, err)
	}
	return nil
}
