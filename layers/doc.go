// Package layers materializes an ordered sequence of tar-format layers onto a
// destination directory, producing the filesystem tree a container runtime
// would present for the same layers via overlayfs.
//
// Each layer is one compressed-or-plain tar stream (gzip, zstd, xz, bzip2 and
// uncompressed are detected transparently). Layers are applied strictly in
// order onto the shared destination tree; later layers overwrite or delete
// earlier content, never the other way around.
//
// # Whiteouts
//
// Deletions follow the OCI/overlayfs whiteout convention:
//
//   - an entry whose base name is ".wh..wh..opq" clears every existing child
//     of its directory while keeping the directory itself;
//   - an entry whose base name starts with ".wh." removes the sibling named
//     by the rest of the base name, recursively for directories.
//
// Whiteout entries are consumed as directives and never appear in the merged
// tree. A whiteout whose target does not exist is a successful no-op.
//
// # Deferred directives
//
// Two kinds of work cannot be applied in stream order and are buffered per
// layer instead:
//
//   - hardlinks, because the link's source file may appear later in the same
//     layer's stream;
//   - directory permission bits, because intermediate parents are auto-created
//     with a permissive default that later sibling writes would rely on.
//
// Both buffers are replayed in recorded order after the layer's entry stream
// ends and are discarded before the next layer begins.
//
// # Safety
//
// Member names are normalized to destination-relative paths; a name that would
// escape the destination root aborts the whole merge with a path traversal
// error. Entry kinds outside {regular file, directory, symlink, hardlink} are
// skipped.
package layers
