package layers

import (
	"path"
	"strings"

	errs "github.com/bibin-skaria/rootfs/internal/errors"
)

// normalizeName maps a raw tar member name to a forward-slash path relative to
// the destination root. ok is false when the name collapses to the root itself
// (empty or "."), which carries nothing to apply and is skipped. A name that
// would resolve outside the destination root is a fatal traversal error, never
// silently corrected.
func normalizeName(raw string) (rel string, ok bool, err error) {
	name := strings.TrimPrefix(raw, "./")
	if name == "" {
		return "", false, nil
	}

	cleaned := path.Clean(name)
	if cleaned == "" || cleaned == "." {
		return "", false, nil
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false, errs.NewPathTraversalError(raw)
	}

	// Absolute member names are interpreted relative to the destination root.
	cleaned = strings.TrimLeft(cleaned, "/")
	if cleaned == "" {
		return "", false, nil
	}

	return cleaned, true, nil
}
