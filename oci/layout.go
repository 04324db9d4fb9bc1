package oci

import (
	"os"
	"path/filepath"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/sirupsen/logrus"

	errs "github.com/bibin-skaria/rootfs/internal/errors"
	"github.com/bibin-skaria/rootfs/layers"
)

// LayerBlobs resolves the ordered layer blob paths of an OCI image layout
// directory: index.json names the first manifest, the manifest lists the
// layers in application order, and each digest addresses a blob under
// blobs/<algorithm>/<hex>.
func LayerBlobs(layoutDir string) ([]string, error) {
	indexPath := filepath.Join(layoutDir, "index.json")
	indexFile, err := os.Open(indexPath)
	if err != nil {
		return nil, errs.NewMissingManifestError("image layout has no index.json", err)
	}
	defer indexFile.Close()

	index, err := v1.ParseIndexManifest(indexFile)
	if err != nil {
		return nil, errs.NewMissingManifestError("failed to parse index.json", err)
	}
	if len(index.Manifests) == 0 {
		return nil, errs.NewMissingManifestError("image index lists no manifests", nil)
	}

	manifestPath, err := blobPath(layoutDir, index.Manifests[0].Digest)
	if err != nil {
		return nil, err
	}
	manifestFile, err := os.Open(manifestPath)
	if err != nil {
		return nil, errs.NewMissingManifestError("manifest blob is missing", err)
	}
	defer manifestFile.Close()

	manifest, err := v1.ParseManifest(manifestFile)
	if err != nil {
		return nil, errs.NewMissingManifestError("failed to parse manifest blob", err)
	}

	blobs := make([]string, 0, len(manifest.Layers))
	for _, layer := range manifest.Layers {
		blob, err := blobPath(layoutDir, layer.Digest)
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, blob)
	}

	logrus.WithFields(logrus.Fields{
		"layout": layoutDir,
		"layers": len(blobs),
	}).Debug("resolved image layout")
	return blobs, nil
}

func blobPath(layoutDir string, digest v1.Hash) (string, error) {
	if digest.Algorithm == "" || digest.Hex == "" {
		return "", errs.NewMissingManifestError("descriptor has no digest", nil)
	}
	return filepath.Join(layoutDir, "blobs", digest.Algorithm, digest.Hex), nil
}

// Extract materializes the image's rootfs into a fresh destination directory.
// A pre-existing destination is removed first; the merged result mirrors the
// container runtime view of the layered image.
func Extract(layoutDir, dest string) error {
	blobs, err := LayerBlobs(layoutDir)
	if err != nil {
		return err
	}

	if err := forceRemoveAll(dest); err != nil {
		return err
	}

	sources := make([]layers.Source, len(blobs))
	for i, blob := range blobs {
		sources[i] = layers.FileSource(blob)
	}

	logrus.WithFields(logrus.Fields{
		"layout": layoutDir,
		"dest":   dest,
		"layers": len(sources),
	}).Info("extracting rootfs")
	return layers.Merge(dest, sources)
}

// forceRemoveAll removes a directory tree, loosening permissions on entries
// that block the first attempt (read-only directories inside extracted
// images are common).
func forceRemoveAll(path string) error {
	if err := os.RemoveAll(path); err == nil || os.IsNotExist(err) {
		return nil
	}

	walkErr := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			_ = os.Chmod(p, 0o700)
		}
		return nil
	})
	if walkErr != nil && !os.IsNotExist(walkErr) {
		return errs.NewIOError("walk", path, walkErr)
	}
	if err := os.RemoveAll(path); err != nil {
		return errs.NewIOError("remove", path, err)
	}
	return nil
}
