package deb

import (
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/blakesmith/ar"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"

	errs "github.com/bibin-skaria/rootfs/internal/errors"
	"github.com/bibin-skaria/rootfs/layers"
)

// dataMemberPrefix names the ar member carrying a package's filesystem
// payload. The member may carry a compression suffix and, in some packages, a
// trailing slash.
const dataMemberPrefix = "data.tar"

// Overlay applies each package's data.tar payload onto an existing rootfs in
// argument order, each package acting as one layer of the merge pipeline.
// After all packages are applied the Postgres server header is promoted if the
// packages shipped one (see ensurePGConfigHeader).
func Overlay(rootfsDir string, packages []string) error {
	info, err := os.Stat(rootfsDir)
	if err != nil || !info.IsDir() {
		return errs.NewIOError("stat rootfs", rootfsDir, fmt.Errorf("rootfs directory does not exist"))
	}

	merger := layers.NewMerger(rootfsDir)
	for _, pkg := range packages {
		logrus.WithFields(logrus.Fields{"package": pkg, "rootfs": rootfsDir}).Info("overlaying package")
		if err := applyPackage(merger, pkg); err != nil {
			return fmt.Errorf("package %s: %w", pkg, err)
		}
	}

	return ensurePGConfigHeader(rootfsDir)
}

// applyPackage walks the package's ar members, selects the first data.tar*
// member and feeds its decompressed payload through the merge pipeline.
func applyPackage(merger *layers.Merger, pkgPath string) error {
	pkg, err := os.Open(pkgPath)
	if err != nil {
		return errs.NewIOError("open package", pkgPath, err)
	}
	defer pkg.Close()

	reader := ar.NewReader(pkg)
	for {
		header, err := reader.Next()
		if err == io.EOF {
			return errs.NewMalformedArchiveError("select payload", "missing data.tar member", nil)
		}
		if err != nil {
			return errs.NewMalformedArchiveError("read ar header", "", err)
		}

		name := strings.TrimSuffix(strings.TrimSpace(header.Name), "/")
		if !strings.HasPrefix(name, dataMemberPrefix) {
			continue
		}

		payload, err := payloadReader(name, reader)
		if err != nil {
			return err
		}
		return merger.ApplyLayer(payload)
	}
}

// payloadReader picks the decompression transform from the member's filename
// suffix. An unsuffixed data.tar passes through as-is.
func payloadReader(name string, r io.Reader) (io.Reader, error) {
	switch {
	case strings.HasSuffix(name, ".xz"):
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, errs.NewMalformedArchiveError("open xz payload", name, err)
		}
		return xr, nil
	case strings.HasSuffix(name, ".gz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, errs.NewMalformedArchiveError("open gzip payload", name, err)
		}
		return gz, nil
	case strings.HasSuffix(name, ".bz2"):
		return bzip2.NewReader(r), nil
	default:
		return r, nil
	}
}

// ensurePGConfigHeader copies the lexically-last versioned server pg_config.h
// to the top of the includes directory when no unversioned one exists. The
// TimescaleDB/AGE builds compile against the flat location.
func ensurePGConfigHeader(rootfsDir string) error {
	includeRoot := filepath.Join(rootfsDir, "usr", "include", "postgresql")
	target := filepath.Join(includeRoot, "pg_config.h")

	if _, err := os.Lstat(target); err == nil {
		return nil
	}
	entries, err := os.ReadDir(includeRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.NewIOError("read dir", includeRoot, err)
	}

	// os.ReadDir sorts by name, so the last hit is the lexically-last version.
	var candidate string
	for _, entry := range entries {
		header := filepath.Join(includeRoot, entry.Name(), "server", "pg_config.h")
		if info, err := os.Stat(header); err == nil && info.Mode().IsRegular() {
			candidate = header
		}
	}
	if candidate == "" {
		return nil
	}

	logrus.WithFields(logrus.Fields{"from": candidate, "to": target}).Debug("promoting pg_config.h")
	return copyFile(candidate, target)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errs.NewIOError("open", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errs.NewIOError("stat", src, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errs.NewIOError("create", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errs.NewIOError("write", dst, err)
	}
	if err := out.Close(); err != nil {
		return errs.NewIOError("close", dst, err)
	}
	return nil
}
