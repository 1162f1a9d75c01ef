package dsync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"dsync-go/internal/fs"
	"dsync-go/internal/hashing"
	"dsync-go/internal/partition"
)

// FetchFile downloads and decodes relPath without writing it anywhere. Every
// chunk and the whole file are verified against the manifest.
func (e *Engine) FetchFile(ctx context.Context, relPath string) ([]byte, *FileManifest, error) {
	m, ok := e.Lookup(relPath)
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", relPath, ErrNotFound)
	}
	if m.Deleted {
		return nil, nil, fmt.Errorf("%s: %w", relPath, ErrGone)
	}

	data, err := e.decode(ctx, m)
	if err != nil {
		e.metrics.FileProcessed("download", false)
		return nil, nil, fmt.Errorf("downloading %s: %w", relPath, err)
	}
	e.metrics.FileProcessed("download", true)
	return data, m, nil
}

// DownloadFile fetches relPath and writes it to outPath atomically. Nothing
// is written unless every check passed.
func (e *Engine) DownloadFile(ctx context.Context, relPath, outPath string) error {
	data, _, err := e.FetchFile(ctx, relPath)
	if err != nil {
		return err
	}
	if err := fs.WriteFileAtomic(outPath, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	e.logger.Info("file downloaded", "path", relPath, "out", outPath, "size", len(data))
	return nil
}

// DownloadAll restores every non-deleted file below outDir, continuing past
// failures.
func (e *Engine) DownloadAll(ctx context.Context, outDir string) (*BatchReport, error) {
	report := &BatchReport{}
	for _, relPath := range e.ListAvailable() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		var err error
		if ValidRelPath(relPath) {
			err = e.DownloadFile(ctx, relPath, filepath.Join(outDir, filepath.FromSlash(relPath)))
		} else {
			err = fmt.Errorf("%s: path escapes output directory: %w", relPath, ErrIntegrity)
		}
		if err != nil {
			e.logger.Error("download failed", "path", relPath, "error", err)
		}
		report.add(FileResult{Path: relPath, Err: err})
	}
	e.logger.Info("download complete", "succeeded", report.Succeeded(), "failed", report.Failed())
	return report, nil
}

func (e *Engine) decode(ctx context.Context, m *FileManifest) ([]byte, error) {
	parts := make(map[int][]byte, len(m.Chunks))
	for _, c := range m.SortedChunks() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, dup := parts[c.Index]; dup {
			return nil, fmt.Errorf("duplicate chunk index %d: %w", c.Index, ErrIntegrity)
		}

		data, err := e.transport.Fetch(ctx, c.Locator)
		if err != nil {
			e.metrics.ChunkDownloaded(false, 0)
			return nil, fmt.Errorf("chunk %d: %w: %w", c.Index, ErrChunkUnavailable, err)
		}
		if hashing.Bytes(data) != c.Hash {
			e.metrics.ChunkDownloaded(false, len(data))
			return nil, fmt.Errorf("chunk %d hash mismatch: %w", c.Index, ErrIntegrity)
		}
		e.metrics.ChunkDownloaded(true, len(data))
		parts[c.Index] = data
	}

	payload, err := partition.Reassemble(parts)
	if errors.Is(err, partition.ErrIncomplete) {
		return nil, fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
	if err != nil {
		return nil, err
	}

	if m.Encrypted {
		payload, err = e.encryptor.Decrypt(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
		}
	}
	if m.Compressed {
		payload, err = e.compressor.Decompress(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecompression, err)
		}
	}

	if hashing.Bytes(payload) != m.FileHash {
		return nil, fmt.Errorf("file hash mismatch: %w", ErrIntegrity)
	}
	return payload, nil
}
