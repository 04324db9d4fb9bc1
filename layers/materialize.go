package layers

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	errs "github.com/bibin-skaria/rootfs/internal/errors"
)

// materialize writes one ordinary entry to the destination tree. Hardlinks and
// directory modes are not applied here; they are recorded into the layer's
// buffers and resolved once the whole entry stream has been consumed.
func (m *Merger) materialize(rel string, entry *Entry, state *layerState) error {
	target := filepath.Join(m.dest, filepath.FromSlash(rel))

	switch entry.Kind {
	case KindDirectory:
		if err := os.MkdirAll(target, defaultDirPerm); err != nil {
			return errs.NewIOError("mkdir", target, err)
		}
		state.dirModes = append(state.dirModes, pendingDirMode{path: target, mode: entry.Mode})
		return nil

	case KindSymlink:
		if err := ensureParent(target); err != nil {
			return err
		}
		// Later layers' symlinks win unconditionally, whatever the old object was.
		if err := removePath(target); err != nil {
			return err
		}
		if err := os.Symlink(entry.Linkname, target); err != nil {
			return errs.NewIOError("symlink", target, err)
		}
		return nil

	case KindHardlink:
		source, ok, err := normalizeName(entry.Linkname)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		state.links = append(state.links, pendingLink{source: source, dest: rel})
		return nil

	case KindRegular:
		if err := ensureParent(target); err != nil {
			return err
		}
		// An old symlink or directory at this path must not swallow the write.
		if info, err := os.Lstat(target); err == nil && !info.Mode().IsRegular() {
			if err := removePath(target); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return errs.NewIOError("create", target, err)
		}
		if _, err := io.Copy(file, entry.Body); err != nil {
			file.Close()
			return errs.NewIOError("write", target, err)
		}
		if err := file.Close(); err != nil {
			return errs.NewIOError("close", target, err)
		}
		if err := os.Chmod(target, entry.Mode); err != nil {
			return errs.NewIOError("chmod", target, err)
		}
		return nil

	default:
		// Device nodes, FIFOs and tar metadata entries have no place in the
		// merged tree.
		logrus.WithFields(logrus.Fields{"name": entry.Name, "kind": entry.Kind.String()}).Debug("skipping unsupported entry")
		return nil
	}
}

// ensureParent creates the missing parent directories of target with the
// permissive default mode. Explicit directory entries correct the mode later.
func ensureParent(target string) error {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, defaultDirPerm); err != nil {
		return errs.NewIOError("mkdir", parent, err)
	}
	return nil
}
