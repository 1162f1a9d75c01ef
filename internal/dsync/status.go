package dsync

import (
	"fmt"
	"os"
	"path/filepath"

	"dsync-go/internal/hashing"
)

// FileStatus compares one path on disk with the index.
type FileStatus struct {
	RelativePath string
	Tracked      bool
	Deleted      bool
	Present      bool // a regular file exists at the path below root
	Modified     bool // present and its content differs from the manifest
}

// Status reports every tracked file plus untracked files found under root,
// which defaults to the sync root. Tracked files come first in index order.
func (e *Engine) Status(root string) ([]*FileStatus, error) {
	if root == "" {
		root = e.syncDir
	}
	e.logger.Debug("computing status", "root", root)

	e.mu.Lock()
	manifests := make([]*FileManifest, 0, e.index.Len())
	for _, p := range e.index.Paths() {
		m, _ := e.index.Get(p)
		manifests = append(manifests, m.Clone())
	}
	e.mu.Unlock()

	seen := make(map[string]bool, len(manifests))
	var statuses []*FileStatus
	for _, m := range manifests {
		seen[m.FilePath] = true
		st := &FileStatus{RelativePath: m.FilePath, Tracked: true, Deleted: m.Deleted}
		if !ValidRelPath(m.FilePath) {
			statuses = append(statuses, st)
			continue
		}

		p := filepath.Join(root, filepath.FromSlash(m.FilePath))
		info, err := os.Stat(p)
		if err == nil && info.Mode().IsRegular() {
			st.Present = true
			sum, err := hashing.File(p)
			if err != nil {
				return nil, fmt.Errorf("hashing %s: %w", m.FilePath, err)
			}
			st.Modified = sum != m.FileHash
		}
		statuses = append(statuses, st)
	}

	if _, err := os.Stat(root); os.IsNotExist(err) {
		return statuses, nil
	}
	entries, err := e.scanner.Scan(root)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir || seen[entry.RelPath] {
			continue
		}
		statuses = append(statuses, &FileStatus{RelativePath: entry.RelPath, Present: true})
	}
	return statuses, nil
}
