package layers

import (
	"io"
	"os"
)

// OCI/overlayfs whiteout markers. A base name of opaqueMarker hides all prior
// content of its directory; a whiteoutPrefix base name deletes the sibling
// whose name follows the prefix.
const (
	whiteoutPrefix = ".wh."
	opaqueMarker   = ".wh..wh..opq"
)

// defaultDirPerm is used when directories are created implicitly as parents of
// later entries. Directories that appear as explicit entries get their recorded
// mode reapplied after the whole layer is materialized.
const defaultDirPerm = os.FileMode(0o755)

// modeMask keeps owner/group/other permission bits only; special bits such as
// setuid are never propagated to the merged tree.
const modeMask = os.FileMode(0o777)

// EntryKind is the closed set of tar entry kinds the engine materializes.
// Everything else (device nodes, FIFOs, PAX metadata) is skipped.
type EntryKind int

const (
	KindRegular EntryKind = iota
	KindDirectory
	KindSymlink
	KindHardlink
	KindOther
)

func (k EntryKind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	case KindHardlink:
		return "hardlink"
	default:
		return "other"
	}
}

// Entry is one decoded tar record. Name is the raw path as stored in the
// archive; it is interpreted relative to the destination root after
// normalization. Body is only valid for regular files and only until the next
// entry is read.
type Entry struct {
	Name     string
	Kind     EntryKind
	Linkname string
	Mode     os.FileMode
	Body     io.Reader
}

// Source is an openable layer byte-stream. Sources are opened once, streamed
// and discarded.
type Source interface {
	Open() (io.ReadCloser, error)
}

// FileSource is a Source backed by a file path, typically an OCI layout blob.
type FileSource string

func (s FileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(s))
}

// pendingLink is a hardlink directive deferred to the end of its layer: the
// link's source file may appear later in the same entry stream.
type pendingLink struct {
	source string // destination-relative path of the link target
	dest   string // destination-relative path of the link itself
}

// pendingDirMode records a directory's mode to reapply after the layer is
// fully materialized, so implicit parent creation cannot clobber it.
type pendingDirMode struct {
	path string // absolute path under the destination root
	mode os.FileMode
}
