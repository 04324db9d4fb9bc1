// Package export packages a merged rootfs tree as a plain uncompressed tar
// archive, the mechanical final step after extraction.
package export

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"go.uber.org/multierr"

	errs "github.com/bibin-skaria/rootfs/internal/errors"
)

// inode identifies a filesystem object across its hardlinks.
type inode struct {
	dev uint64
	ino uint64
}

// WriteTree writes the directory tree rooted at root to w as an uncompressed
// tar stream. The root entry is named "." and every member path is rooted
// there, preserving the merged tree verbatim: regular files sharing an inode
// are emitted once, with subsequent occurrences as hardlink entries back to
// the first archived name.
func WriteTree(root string, w io.Writer) (err error) {
	tw := tar.NewWriter(w)
	defer func() {
		err = multierr.Append(err, tw.Close())
	}()

	// inode -> archive name of the first occurrence, walk order (lexical).
	seen := map[inode]string{}

	return filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return errs.NewIOError("walk", path, walkErr)
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return errs.NewIOError("rel", path, err)
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return errs.NewIOError("readlink", path, err)
			}
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return errs.NewIOError("header", path, err)
		}
		header.Name = archiveName(relPath, info.IsDir())

		if info.Mode().IsRegular() {
			if st, ok := info.Sys().(*syscall.Stat_t); ok && st.Nlink > 1 {
				key := inode{dev: uint64(st.Dev), ino: uint64(st.Ino)}
				if first, linked := seen[key]; linked {
					header.Typeflag = tar.TypeLink
					header.Linkname = first
					header.Size = 0
					if err := tw.WriteHeader(header); err != nil {
						return errs.NewIOError("write header", path, err)
					}
					return nil
				}
				seen[key] = header.Name
			}
		}

		if err := tw.WriteHeader(header); err != nil {
			return errs.NewIOError("write header", path, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return errs.NewIOError("open", path, err)
		}
		defer file.Close()
		if _, err := io.Copy(tw, file); err != nil {
			return errs.NewIOError("copy", path, err)
		}
		return nil
	})
}

// WriteTreeFile is WriteTree targeting a file path.
func WriteTreeFile(root, outputPath string) error {
	out, err := os.Create(outputPath)
	if err != nil {
		return errs.NewIOError("create", outputPath, err)
	}

	writeErr := WriteTree(root, out)
	closeErr := out.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return errs.NewIOError("close", outputPath, closeErr)
	}
	return nil
}

func archiveName(relPath string, isDir bool) string {
	name := "./" + filepath.ToSlash(relPath)
	if relPath == "." {
		name = "."
	}
	if isDir {
		name += "/"
	}
	return name
}
