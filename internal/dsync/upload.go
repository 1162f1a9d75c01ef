package dsync

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"dsync-go/internal/hashing"
	"dsync-go/internal/partition"
)

// UploadResult reports the manifest stored for an uploaded path. Skipped is
// true when the path was already tracked and nothing was transferred.
type UploadResult struct {
	Manifest *FileManifest
	Skipped  bool
}

// ChunkName is the blob name of chunk i of the file with the given hash.
func ChunkName(fileHash string, i int) string {
	return fmt.Sprintf("%s_chunk_%d.bin", fileHash, i)
}

// UploadFile runs the upload pipeline for one file under the sync root:
// read, compress when large enough, encrypt, partition, upload every chunk
// and commit the manifest. Any chunk failure aborts the file; chunks already
// uploaded are left in place and no manifest is recorded.
func (e *Engine) UploadFile(ctx context.Context, absPath string) (*UploadResult, error) {
	relPath, err := e.RelPath(absPath)
	if err != nil {
		return nil, err
	}

	// Tracked manifests are immutable, deleted ones included.
	if m, ok := e.Lookup(relPath); ok {
		e.logger.Debug("file already tracked", "path", relPath)
		return &UploadResult{Manifest: m, Skipped: true}, nil
	}

	m, err := e.buildManifest(ctx, absPath, relPath)
	if err != nil {
		e.metrics.FileProcessed("upload", false)
		return nil, fmt.Errorf("uploading %s: %w", relPath, err)
	}

	committed, added, err := e.commit(m)
	if err != nil {
		e.metrics.FileProcessed("upload", false)
		return nil, fmt.Errorf("uploading %s: %w", relPath, err)
	}
	e.metrics.FileProcessed("upload", true)
	if !added {
		e.logger.Info("file committed concurrently, keeping existing manifest", "path", relPath)
		return &UploadResult{Manifest: committed, Skipped: true}, nil
	}

	e.logger.Info("file uploaded",
		"path", relPath,
		"size", m.FileSize,
		"chunks", len(m.Chunks),
		"compressed", m.Compressed,
	)
	e.syncMirror(ctx)
	return &UploadResult{Manifest: committed}, nil
}

func (e *Engine) buildManifest(ctx context.Context, absPath, relPath string) (*FileManifest, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	fileHash := hashing.Bytes(data)
	size := int64(len(data))

	payload := data
	compressed := false
	if e.compressor.ShouldCompress(size) {
		payload, err = e.compressor.Compress(payload)
		if err != nil {
			return nil, fmt.Errorf("compressing: %w", err)
		}
		compressed = true
	}

	payload, err = e.encryptor.Encrypt(payload)
	if err != nil {
		return nil, fmt.Errorf("encrypting: %w", err)
	}

	chunks, err := partition.Split(payload, e.maxChunkSize)
	if err != nil {
		return nil, fmt.Errorf("partitioning: %w", err)
	}

	refs, err := e.uploadChunks(ctx, fileHash, chunks)
	if err != nil {
		return nil, err
	}

	return &FileManifest{
		FilePath:    relPath,
		FileHash:    fileHash,
		FileSize:    size,
		DateCreated: NewTimestamp(e.clock.Now()),
		FileType:    FileType(relPath),
		Compressed:  compressed,
		Encrypted:   true,
		Chunks:      refs,
	}, nil
}

// uploadChunks uploads up to e.concurrency chunks at a time. The first
// failure cancels the remaining uploads.
func (e *Engine) uploadChunks(ctx context.Context, fileHash string, chunks [][]byte) ([]ChunkRef, error) {
	refs := make([]ChunkRef, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ref, err := e.uploadChunk(gctx, fileHash, i, chunk)
			if err != nil {
				return err
			}
			refs[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}

func (e *Engine) uploadChunk(ctx context.Context, fileHash string, i int, chunk []byte) (ChunkRef, error) {
	endpoint, err := e.endpoints.Select()
	if err != nil {
		return ChunkRef{}, err
	}

	blob, err := e.transport.Upload(ctx, endpoint, chunk, ChunkName(fileHash, i))
	if err == nil && (blob == nil || blob.Locator == "") {
		err = ErrMissingLocator
	}
	if err != nil {
		e.metrics.ChunkUploaded(false, len(chunk))
		return ChunkRef{}, fmt.Errorf("chunk %d: %w", i, err)
	}
	e.metrics.ChunkUploaded(true, len(chunk))

	return ChunkRef{
		Index:    i,
		Hash:     hashing.Bytes(chunk),
		Endpoint: endpoint,
		Locator:  blob.Locator,
	}, nil
}
