package layers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	errs "github.com/bibin-skaria/rootfs/internal/errors"
)

// Merger applies layer streams onto one destination tree. It holds the only
// reference to the destination root for the duration of a merge; invoking it
// concurrently is only safe with distinct destination roots.
type Merger struct {
	dest string
}

// NewMerger creates a Merger rooted at dest. The directory is not created
// until Merge or ApplyLayer runs.
func NewMerger(dest string) *Merger {
	return &Merger{dest: dest}
}

// Dest returns the destination root path.
func (m *Merger) Dest() string {
	return m.dest
}

// layerState buffers the directives of a single layer that can only be applied
// once the layer's entry stream is exhausted. It is discarded afterwards.
type layerState struct {
	links    []pendingLink
	dirModes []pendingDirMode
}

// Merge creates the destination root if absent and applies each layer source
// in order. Layers are strictly sequential: layer N+1 only begins after layer
// N's whiteouts, writes, links and directory modes have all completed, since
// its own whiteout and overwrite decisions must observe layer N's final state.
// The first failure aborts the merge and leaves the destination partially
// merged; callers needing atomicity must merge into a scratch location.
func Merge(dest string, sources []Source) error {
	if err := os.MkdirAll(dest, defaultDirPerm); err != nil {
		return errs.NewIOError("mkdir", dest, err)
	}

	m := NewMerger(dest)
	for i, source := range sources {
		rc, err := source.Open()
		if err != nil {
			return errs.NewIOError("open layer", fmt.Sprintf("%d", i), err)
		}
		applyErr := m.ApplyLayer(rc)
		closeErr := rc.Close()
		if applyErr != nil {
			return fmt.Errorf("layer %d: %w", i, applyErr)
		}
		if closeErr != nil {
			return errs.NewIOError("close layer", fmt.Sprintf("%d", i), closeErr)
		}
	}
	return nil
}

// ApplyLayer streams one layer onto the destination tree: sanitize, then
// whiteout-or-materialize per entry, then deferred hardlinks, then deferred
// directory modes.
//
// Entries are applied in stream order. Whiteouts act on destination state
// accumulated from prior layers; per OCI layer-authoring convention a whiteout
// precedes any same-named content within its own layer, and this engine
// assumes well-formed layers rather than defining a same-layer precedence.
func (m *Merger) ApplyLayer(r io.Reader) error {
	reader, err := NewEntryReader(r)
	if err != nil {
		return err
	}

	state := &layerState{}
	entries := 0
	for {
		entry, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		entries++

		rel, ok, err := normalizeName(entry.Name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		consumed, err := m.applyWhiteout(rel)
		if err != nil {
			return err
		}
		if consumed {
			continue
		}

		if err := m.materialize(rel, entry, state); err != nil {
			return err
		}
	}

	if err := m.resolveLinks(state.links); err != nil {
		return err
	}
	if err := m.finalizeDirModes(state.dirModes); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"dest":    m.dest,
		"entries": entries,
		"links":   len(state.links),
	}).Debug("layer applied")
	return nil
}

// resolveLinks creates the layer's deferred hardlinks in recorded order. A
// missing source is silently dropped: it may have been whited out within the
// same pass or skipped as an unsupported kind. Existing destinations are
// replaced; hardlinks always overwrite.
func (m *Merger) resolveLinks(links []pendingLink) error {
	for _, link := range links {
		source := filepath.Join(m.dest, filepath.FromSlash(link.source))
		target := filepath.Join(m.dest, filepath.FromSlash(link.dest))

		if _, err := os.Stat(source); err != nil {
			if os.IsNotExist(err) {
				logrus.WithFields(logrus.Fields{"link": link.dest, "source": link.source}).Debug("dropping hardlink with missing source")
				continue
			}
			return errs.NewIOError("stat", source, err)
		}

		if err := ensureParent(target); err != nil {
			return err
		}
		if err := removePath(target); err != nil {
			return err
		}
		if err := os.Link(source, target); err != nil {
			return errs.NewIOError("link", target, err)
		}
	}
	return nil
}

// finalizeDirModes reapplies the recorded directory modes in insertion order.
// Directories removed again before the layer ended are skipped.
func (m *Merger) finalizeDirModes(dirModes []pendingDirMode) error {
	for _, dm := range dirModes {
		if _, err := os.Stat(dm.path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errs.NewIOError("stat", dm.path, err)
		}
		if err := os.Chmod(dm.path, dm.mode); err != nil {
			return errs.NewIOError("chmod", dm.path, err)
		}
	}
	return nil
}
