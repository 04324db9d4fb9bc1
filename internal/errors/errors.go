package errors

import (
	"errors"
	"fmt"
)

// Kind classifies the fatal failures the merge engine can raise. Every kind is
// terminal: the engine never retries, robustness comes from treating absent
// targets as no-ops instead.
type Kind string

const (
	// KindPathTraversal means a layer entry or hardlink target normalized to a
	// path outside the destination root.
	KindPathTraversal Kind = "path_traversal"
	// KindMalformedArchive covers corrupt tar/ar headers, unreadable compressed
	// streams and packages missing their data.tar payload.
	KindMalformedArchive Kind = "malformed_archive"
	// KindMissingManifest covers OCI index/manifest data lacking expected
	// fields (no manifests listed, absent layer digest).
	KindMissingManifest Kind = "missing_manifest_data"
	// KindIO covers failed filesystem syscalls (write, chmod, link, remove).
	KindIO Kind = "io_failure"
)

// MergeError is the typed failure surfaced by every fatal path in the engine.
type MergeError struct {
	Kind      Kind
	Operation string
	Path      string
	Message   string
	Cause     error
}

func (e *MergeError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	switch {
	case e.Operation != "" && e.Path != "":
		return fmt.Sprintf("[%s] %s %s: %s", e.Kind, e.Operation, e.Path, msg)
	case e.Path != "":
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Path, msg)
	case e.Operation != "":
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Operation, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

// Unwrap returns the underlying error
func (e *MergeError) Unwrap() error {
	return e.Cause
}

// NewPathTraversalError creates a traversal rejection for a raw member name.
func NewPathTraversalError(rawName string) *MergeError {
	return &MergeError{
		Kind:    KindPathTraversal,
		Path:    rawName,
		Message: "refusing to write outside destination root",
	}
}

// NewMalformedArchiveError creates an archive decoding error.
func NewMalformedArchiveError(operation, message string, cause error) *MergeError {
	return &MergeError{
		Kind:      KindMalformedArchive,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewMissingManifestError creates an error for OCI manifest data lacking
// expected fields.
func NewMissingManifestError(message string, cause error) *MergeError {
	return &MergeError{
		Kind:    KindMissingManifest,
		Message: message,
		Cause:   cause,
	}
}

// NewIOError wraps a failed filesystem operation.
func NewIOError(operation, path string, cause error) *MergeError {
	return &MergeError{
		Kind:      KindIO,
		Operation: operation,
		Path:      path,
		Cause:     cause,
	}
}

// IsKind reports whether err is (or wraps) a MergeError of the given kind.
func IsKind(err error, kind Kind) bool {
	var merr *MergeError
	if errors.As(err, &merr) {
		return merr.Kind == kind
	}
	return false
}

// IsPathTraversal reports whether err is a path traversal rejection.
func IsPathTraversal(err error) bool {
	return IsKind(err, KindPathTraversal)
}

// IsMalformedArchive reports whether err is an archive decoding failure.
func IsMalformedArchive(err error) bool {
	return IsKind(err, KindMalformedArchive)
}

// IsMissingManifest reports whether err is a manifest data failure.
func IsMissingManifest(err error) bool {
	return IsKind(err, KindMissingManifest)
}
