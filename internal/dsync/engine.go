package dsync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"dsync-go/internal/fs"
	"dsync-go/internal/partition"
)

// Options tunes an Engine.
type Options struct {
	SyncDir      string
	MaxChunkSize int      // defaults to partition.DefaultMaxChunkSize
	Concurrency  int      // parallel chunk uploads per file, defaults to 1
	Ignore       []string // extra scan ignore patterns
}

// Deps are the collaborators an Engine is built from. Transport, Endpoints,
// Encryptor, Compressor, Files and Folders are required. A nil Mirror
// disables remote index copies.
type Deps struct {
	Transport  Transport
	Endpoints  EndpointSelector
	Encryptor  Encryptor
	Compressor Compressor
	Files      IndexStore
	Folders    FolderStore
	Mirror     *Mirror
	Logger     Logger
	Clock      Clock
	Metrics    Metrics
}

// Engine runs the upload and download pipelines over one sync root and owns
// the in-memory files and folders indexes. Every index read-modify-write
// happens under mu; mirror syncs are serialized by mirrorMu.
type Engine struct {
	syncDir      string
	maxChunkSize int
	concurrency  int
	scanner      *fs.Scanner

	transport  Transport
	endpoints  EndpointSelector
	encryptor  Encryptor
	compressor Compressor
	files      IndexStore
	folders    FolderStore
	mirror     *Mirror
	logger     Logger
	clock      Clock
	metrics    Metrics

	mu          sync.Mutex
	index       *Index
	folderIndex *FolderIndex

	mirrorMu sync.Mutex
}

// NewEngine creates an Engine and loads both indexes. A document that cannot
// be parsed is logged and replaced by an empty index on the next save.
func NewEngine(opts Options, deps Deps) (*Engine, error) {
	switch {
	case deps.Transport == nil:
		return nil, errors.New("engine requires a transport")
	case deps.Endpoints == nil:
		return nil, errors.New("engine requires an endpoint selector")
	case deps.Encryptor == nil:
		return nil, errors.New("engine requires an encryptor")
	case deps.Compressor == nil:
		return nil, errors.New("engine requires a compressor")
	case deps.Files == nil || deps.Folders == nil:
		return nil, errors.New("engine requires index stores")
	}
	if opts.SyncDir == "" {
		return nil, fmt.Errorf("sync dir is not set: %w", ErrConfiguration)
	}
	syncDir, err := filepath.Abs(opts.SyncDir)
	if err != nil {
		return nil, fmt.Errorf("resolving sync dir: %w", err)
	}

	e := &Engine{
		syncDir:      syncDir,
		maxChunkSize: opts.MaxChunkSize,
		concurrency:  opts.Concurrency,
		scanner:      fs.NewScanner(opts.Ignore),
		transport:    deps.Transport,
		endpoints:    deps.Endpoints,
		encryptor:    deps.Encryptor,
		compressor:   deps.Compressor,
		files:        deps.Files,
		folders:      deps.Folders,
		mirror:       deps.Mirror,
		logger:       deps.Logger,
		clock:        deps.Clock,
		metrics:      deps.Metrics,
	}
	if e.maxChunkSize <= 0 {
		e.maxChunkSize = partition.DefaultMaxChunkSize
	}
	if e.concurrency < 1 {
		e.concurrency = 1
	}
	if e.logger == nil {
		e.logger = NewNopLogger()
	}
	if e.clock == nil {
		e.clock = RealClock{}
	}
	if e.metrics == nil {
		e.metrics = NopMetrics{}
	}

	e.index, err = e.files.Load()
	if errors.Is(err, ErrCorruptIndex) {
		e.logger.Warn("files index is corrupt, starting empty", "error", err)
		e.index, err = NewIndex(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading files index: %w", err)
	}

	e.folderIndex, err = e.folders.Load()
	if errors.Is(err, ErrCorruptIndex) {
		e.logger.Warn("folders index is corrupt, starting empty", "error", err)
		e.folderIndex, err = NewFolderIndex(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading folders index: %w", err)
	}

	e.logger.Debug("engine ready", "sync_dir", e.syncDir, "files", e.index.Len())
	return e, nil
}

// SyncDir returns the absolute sync root.
func (e *Engine) SyncDir() string { return e.syncDir }

// RelPath converts an absolute path under the sync root into the
// slash-separated key used by the indexes.
func (e *Engine) RelPath(absPath string) (string, error) {
	abs, err := filepath.Abs(absPath)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", absPath, err)
	}
	rel, err := filepath.Rel(e.syncDir, abs)
	if err != nil {
		return "", fmt.Errorf("relative path for %s: %w", absPath, err)
	}
	rel = filepath.ToSlash(rel)
	if !ValidRelPath(rel) {
		return "", fmt.Errorf("path is not inside the sync dir: %s", absPath)
	}
	return rel, nil
}

// Lookup returns a copy of the manifest stored for relPath.
func (e *Engine) Lookup(relPath string) (*FileManifest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.index.Get(relPath)
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// ListAvailable returns the paths that can be downloaded, in index order.
func (e *Engine) ListAvailable() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var paths []string
	for _, p := range e.index.Paths() {
		if m, _ := e.index.Get(p); !m.Deleted {
			paths = append(paths, p)
		}
	}
	return paths
}

// MarkDeleted soft-deletes relPath. The manifest and its remote chunks are
// kept. Deleting an already deleted path is a no-op.
func (e *Engine) MarkDeleted(ctx context.Context, relPath string) error {
	changed, err := e.markDeleted(relPath)
	if err != nil {
		e.metrics.FileProcessed("delete", false)
		return err
	}
	e.metrics.FileProcessed("delete", true)
	if !changed {
		return nil
	}
	e.logger.Info("file marked deleted", "path", relPath)
	e.syncMirror(ctx)
	return nil
}

func (e *Engine) markDeleted(relPath string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.index.Get(relPath)
	if !ok {
		return false, fmt.Errorf("%s: %w", relPath, ErrNotFound)
	}
	if m.Deleted {
		return false, nil
	}

	prev := e.index.LastUpdated
	m.Deleted = true
	e.index.LastUpdated = NewTimestamp(e.clock.Now())
	if err := e.files.Save(e.index); err != nil {
		m.Deleted = false
		e.index.LastUpdated = prev
		return false, fmt.Errorf("saving files index: %w", err)
	}
	return true, nil
}

// commit records m unless another caller committed the same path while the
// pipeline ran, in which case the existing manifest wins. The in-memory
// index is rolled back when the document cannot be saved.
func (e *Engine) commit(m *FileManifest) (*FileManifest, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.index.Get(m.FilePath); ok {
		return existing.Clone(), false, nil
	}

	prev := e.index.LastUpdated
	e.index.Put(m)
	e.index.LastUpdated = NewTimestamp(e.clock.Now())
	if err := e.files.Save(e.index); err != nil {
		e.index.Remove(m.FilePath)
		e.index.LastUpdated = prev
		return nil, false, fmt.Errorf("saving files index: %w", err)
	}
	return m.Clone(), true, nil
}

// syncMirror pushes the current files index to its remote copy. Failures
// are logged only. The document is encoded while mirrorMu is held, so
// copies are published in commit order.
func (e *Engine) syncMirror(ctx context.Context) {
	if e.mirror == nil {
		return
	}
	e.mirrorMu.Lock()
	defer e.mirrorMu.Unlock()

	e.mu.Lock()
	doc, err := e.index.Encode()
	e.mu.Unlock()
	if err != nil {
		e.logger.Warn("encoding files index for mirror failed", "error", err)
		return
	}

	mode, err := e.mirror.Sync(ctx, doc)
	if err != nil {
		e.metrics.MirrorSynced(MirrorFailed)
		e.logger.Warn("mirroring files index failed", "error", err)
		return
	}
	e.metrics.MirrorSynced(mode)
	e.logger.Debug("files index mirrored", "mode", mode)
}
