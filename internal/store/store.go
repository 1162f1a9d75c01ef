// Package store persists the local JSON documents: the files index, the
// folders index and the pointer to the live remote copy of the files index.
// Every save rewrites the whole document atomically.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"dsync-go/internal/dsync"
	"dsync-go/internal/fs"
)

const documentPerm = 0600

// IndexFile stores the files index at a path.
type IndexFile struct {
	path string
}

func NewIndexFile(path string) *IndexFile {
	return &IndexFile{path: path}
}

func (s *IndexFile) Path() string { return s.path }

// Load returns an empty index when the file does not exist.
func (s *IndexFile) Load() (*dsync.Index, error) {
	data, err := readDocument(s.path)
	if err != nil || data == nil {
		return dsync.NewIndex(), err
	}
	ix, err := dsync.DecodeIndex(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", s.path, err)
	}
	return ix, nil
}

func (s *IndexFile) Save(ix *dsync.Index) error {
	data, err := ix.Encode()
	if err != nil {
		return fmt.Errorf("encoding files index: %w", err)
	}
	return writeDocument(s.path, data)
}

// WriteRaw replaces the document with data after checking that it parses.
// Used when restoring the index from its remote copy.
func (s *IndexFile) WriteRaw(data []byte) error {
	if _, err := dsync.DecodeIndex(data); err != nil {
		return err
	}
	return writeDocument(s.path, data)
}

// Exists reports whether the document is present on disk.
func (s *IndexFile) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// FolderFile stores the folders index at a path.
type FolderFile struct {
	path string
}

func NewFolderFile(path string) *FolderFile {
	return &FolderFile{path: path}
}

func (s *FolderFile) Load() (*dsync.FolderIndex, error) {
	data, err := readDocument(s.path)
	if err != nil || data == nil {
		return dsync.NewFolderIndex(), err
	}
	fx, err := dsync.DecodeFolderIndex(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", s.path, err)
	}
	return fx, nil
}

func (s *FolderFile) Save(fx *dsync.FolderIndex) error {
	data, err := fx.Encode()
	if err != nil {
		return fmt.Errorf("encoding folders index: %w", err)
	}
	return writeDocument(s.path, data)
}

// PointerFile stores the mirror pointer record at a path.
type PointerFile struct {
	path string
}

func NewPointerFile(path string) *PointerFile {
	return &PointerFile{path: path}
}

// Load returns nil and no error when no record exists.
func (s *PointerFile) Load() (*dsync.MirrorPointer, error) {
	data, err := readDocument(s.path)
	if err != nil || data == nil {
		return nil, err
	}
	var p dsync.MirrorPointer
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("loading %s: %w: %w", s.path, dsync.ErrCorruptIndex, err)
	}
	return &p, nil
}

func (s *PointerFile) Save(p *dsync.MirrorPointer) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding mirror pointer: %w", err)
	}
	return writeDocument(s.path, data)
}

// readDocument returns nil data and no error for a missing file.
func readDocument(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func writeDocument(path string, data []byte) error {
	if err := fs.WriteFileAtomic(path, data, documentPerm); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

var (
	_ dsync.IndexStore   = (*IndexFile)(nil)
	_ dsync.FolderStore  = (*FolderFile)(nil)
	_ dsync.PointerStore = (*PointerFile)(nil)
)
