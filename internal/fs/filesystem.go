// Package fs discovers what to sync under the sync root, watches it for
// changes and provides the atomic write used for every local document.
package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Entry is one syncable item found by a scan.
type Entry struct {
	AbsPath string
	RelPath string // slash-separated, relative to the scan root
	IsDir   bool
}

// Scanner walks a sync root applying ignore rules.
type Scanner struct {
	patterns []string
}

// NewScanner creates a Scanner. patterns are added to BuiltinPatterns and to
// any patterns found in the root's IgnoreFileName.
func NewScanner(patterns []string) *Scanner {
	return &Scanner{patterns: patterns}
}

// Scan returns folders and regular files under root in walk order. The root
// itself, hidden entries, symlinks and ignored entries are skipped; ignored
// or hidden folders are not descended into.
func (s *Scanner) Scan(root string) ([]Entry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat sync root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sync root is not a directory: %s", root)
	}

	extra, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns := append(append(append([]string{}, BuiltinPatterns...), s.patterns...), extra...)
	matcher := NewIgnoreMatcher(patterns)

	var entries []Entry
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", p, err)
		}
		skip := strings.HasPrefix(d.Name(), ".") || matcher.Match(rel)

		if d.IsDir() {
			if skip {
				return filepath.SkipDir
			}
			entries = append(entries, Entry{AbsPath: p, RelPath: filepath.ToSlash(rel), IsDir: true})
			return nil
		}
		if skip || !d.Type().IsRegular() {
			return nil
		}
		entries = append(entries, Entry{AbsPath: p, RelPath: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking sync root: %w", err)
	}
	return entries, nil
}

// CountTree returns the number of files and folders below dir, recursively,
// not counting dir itself.
func CountTree(dir string) (files, folders int, err error) {
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		if d.IsDir() {
			folders++
		} else if d.Type().IsRegular() {
			files++
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("counting %s: %w", dir, err)
	}
	return files, folders, nil
}

// WriteFileAtomic writes data to path through a temp file in the same
// directory followed by a rename, creating parent directories as needed. A
// failed write never leaves a partial file at path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}
