package dsync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"dsync-go/internal/fs"
)

// FolderSnapshotName is the blob name of the uploaded snapshot of a folder
// manifest.
func FolderSnapshotName(relPath string) string {
	return "folder_metadata_" + strings.ReplaceAll(relPath, "/", "_") + ".json"
}

// Scan walks the sync root once. Folders are tracked and files uploaded;
// individual failures are recorded in the report and do not stop the scan.
// The returned error is only set when the walk itself failed or ctx was
// cancelled.
func (e *Engine) Scan(ctx context.Context) (*BatchReport, error) {
	if err := os.MkdirAll(e.syncDir, 0755); err != nil {
		return nil, fmt.Errorf("creating sync dir: %w", err)
	}
	entries, err := e.scanner.Scan(e.syncDir)
	if err != nil {
		return nil, err
	}

	report := &BatchReport{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if entry.IsDir {
			if _, err := e.TrackFolder(ctx, entry.AbsPath); err != nil {
				e.logger.Warn("tracking folder failed", "path", entry.RelPath, "error", err)
			}
			continue
		}

		res, err := e.UploadFile(ctx, entry.AbsPath)
		if err != nil {
			e.logger.Error("upload failed", "path", entry.RelPath, "error", err)
			report.add(FileResult{Path: entry.RelPath, Err: err})
			continue
		}
		report.add(FileResult{Path: entry.RelPath, Skipped: res.Skipped})
	}

	if n := report.Transferred(); n > 0 || report.Failed() > 0 {
		e.logger.Info("scan complete", "uploaded", n, "failed", report.Failed())
	}
	return report, nil
}

// TrackFolder records a folder under the sync root with its recursive
// counts. A JSON snapshot of the record is uploaded on a best-effort basis;
// its locator is kept when the upload succeeded. Tracked folders are not
// revisited.
func (e *Engine) TrackFolder(ctx context.Context, absDir string) (*FolderManifest, error) {
	relPath, err := e.RelPath(absDir)
	if err != nil {
		return nil, err
	}
	if m, ok := e.lookupFolder(relPath); ok {
		return m, nil
	}

	files, folders, err := fs.CountTree(absDir)
	if err != nil {
		return nil, err
	}
	m := &FolderManifest{
		FolderPath:  relPath,
		DateCreated: NewTimestamp(e.clock.Now()),
		FileCount:   files,
		FolderCount: folders,
	}
	if loc, err := e.uploadFolderSnapshot(ctx, m); err != nil {
		e.logger.Warn("folder snapshot upload failed", "path", relPath, "error", err)
	} else {
		m.Locator = &loc
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.folderIndex.Get(relPath); ok {
		return existing.Clone(), nil
	}
	prev := e.folderIndex.LastUpdated
	e.folderIndex.Put(m)
	e.folderIndex.LastUpdated = NewTimestamp(e.clock.Now())
	if err := e.folders.Save(e.folderIndex); err != nil {
		e.folderIndex.Remove(relPath)
		e.folderIndex.LastUpdated = prev
		return nil, fmt.Errorf("saving folders index: %w", err)
	}

	e.logger.Info("folder tracked", "path", relPath, "files", files, "folders", folders)
	return m.Clone(), nil
}

// Folders returns copies of every tracked folder in index order.
func (e *Engine) Folders() []*FolderManifest {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*FolderManifest
	for _, p := range e.folderIndex.Paths() {
		m, _ := e.folderIndex.Get(p)
		out = append(out, m.Clone())
	}
	return out
}

func (e *Engine) lookupFolder(relPath string) (*FolderManifest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.folderIndex.Get(relPath)
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

func (e *Engine) uploadFolderSnapshot(ctx context.Context, m *FolderManifest) (string, error) {
	doc, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding folder snapshot: %w", err)
	}
	endpoint, err := e.endpoints.Select()
	if err != nil {
		return "", err
	}
	blob, err := e.transport.Upload(ctx, endpoint, doc, FolderSnapshotName(m.FolderPath))
	if err != nil {
		return "", err
	}
	if blob == nil || blob.Locator == "" {
		return "", ErrMissingLocator
	}
	return blob.Locator, nil
}
