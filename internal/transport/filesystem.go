package transport

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"dsync-go/internal/dsync"
	"dsync-go/internal/fs"
)

// FileSystemTransport treats each endpoint as a directory. Blobs are stored
// as:
//
//	<endpoint>/
//	  <id>/
//	    <name>
//
// The message id is "<id>/<name>" and the locator is a file:// URL.
type FileSystemTransport struct {
	ids    dsync.IDGenerator
	logger dsync.Logger
}

// NewFileSystemTransport creates a FileSystemTransport.
func NewFileSystemTransport(ids dsync.IDGenerator, logger dsync.Logger) *FileSystemTransport {
	if ids == nil {
		ids = dsync.UUIDGenerator{}
	}
	if logger == nil {
		logger = dsync.NewNopLogger()
	}
	return &FileSystemTransport{ids: ids, logger: logger}
}

func (t *FileSystemTransport) Upload(ctx context.Context, endpoint string, data []byte, name string) (*dsync.RemoteBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("upload: %w: %w", dsync.ErrTransport, err)
	}
	if strings.ContainsAny(name, `/\`) || name == "" || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid blob name %q: %w", name, dsync.ErrTransport)
	}
	messageID := t.ids.New() + "/" + name
	dest := filepath.Join(endpoint, filepath.FromSlash(messageID))
	if err := fs.WriteFileAtomic(dest, data, 0644); err != nil {
		return nil, fmt.Errorf("writing blob: %w: %w", dsync.ErrTransport, err)
	}
	return &dsync.RemoteBlob{MessageID: messageID, Locator: fileLocator(dest)}, nil
}

// Patch rewrites an existing blob in place.
func (t *FileSystemTransport) Patch(ctx context.Context, endpoint, messageID string, data []byte, name string) (*dsync.RemoteBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("patch: %w: %w", dsync.ErrTransport, err)
	}
	dest, err := blobPath(endpoint, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dest); err != nil {
		return nil, fmt.Errorf("blob %s: %w: %w", messageID, dsync.ErrTransport, err)
	}
	if err := fs.WriteFileAtomic(dest, data, 0644); err != nil {
		return nil, fmt.Errorf("rewriting blob: %w: %w", dsync.ErrTransport, err)
	}
	return &dsync.RemoteBlob{MessageID: messageID, Locator: fileLocator(dest)}, nil
}

func (t *FileSystemTransport) Delete(ctx context.Context, endpoint, messageID string) error {
	dest, err := blobPath(endpoint, messageID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Dir(dest)); err != nil {
		return fmt.Errorf("removing blob %s: %w: %w", messageID, dsync.ErrTransport, err)
	}
	t.logger.Debug("removed blob", "message_id", messageID)
	return nil
}

func (t *FileSystemTransport) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch: %w: %w", dsync.ErrTransport, err)
	}
	p, err := pathFromLocator(locator)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w: %w", dsync.ErrTransport, err)
	}
	return data, nil
}

func (t *FileSystemTransport) Probe(ctx context.Context, locator string) error {
	p, err := pathFromLocator(locator)
	if err != nil {
		return err
	}
	info, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("probing blob: %w: %w", dsync.ErrTransport, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("probing blob: not a regular file: %w", dsync.ErrTransport)
	}
	return nil
}

// blobPath resolves messageID below endpoint, refusing ids that would escape
// it.
func blobPath(endpoint, messageID string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(messageID)) || !strings.Contains(messageID, "/") {
		return "", fmt.Errorf("invalid message id %q: %w", messageID, dsync.ErrTransport)
	}
	return filepath.Join(endpoint, filepath.FromSlash(messageID)), nil
}

func fileLocator(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

func pathFromLocator(locator string) (string, error) {
	u, err := url.Parse(locator)
	if err != nil || u.Scheme != "file" {
		return "", fmt.Errorf("invalid file locator %q: %w", locator, dsync.ErrTransport)
	}
	return filepath.FromSlash(u.Path), nil
}

var _ dsync.Transport = (*FileSystemTransport)(nil)
