package fs

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
}

func TestScanner_Scan(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":                   "a",
		"files.json":              "{}",
		".hidden":                 "h",
		"docs/b.md":               "b",
		"docs/partial.crdownload": "p",
		"docs/__pycache__/c.pyc":  "c",
		".git/config":             "g",
		"logs/app.log":            "l",
	})

	entries, err := NewScanner([]string{"*.log"}).Scan(root)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	var files, folders []string
	for _, e := range entries {
		if e.IsDir {
			folders = append(folders, e.RelPath)
		} else {
			files = append(files, e.RelPath)
		}
	}

	wantFiles := []string{"a.txt", "docs/b.md"}
	if !reflect.DeepEqual(files, wantFiles) {
		t.Errorf("files = %v, want %v", files, wantFiles)
	}
	wantFolders := []string{"docs", "logs"}
	if !reflect.DeepEqual(folders, wantFolders) {
		t.Errorf("folders = %v, want %v", folders, wantFolders)
	}
}

func TestScanner_Scan_IgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		IgnoreFileName: "*.tmp\n",
		"keep.txt":     "k",
		"drop.tmp":     "d",
	})

	entries, err := NewScanner(nil).Scan(root)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(entries) != 1 || entries[0].RelPath != "keep.txt" {
		t.Errorf("entries = %+v, want only keep.txt", entries)
	}
}

func TestScanner_Scan_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := NewScanner(nil).Scan(path); err == nil {
		t.Error("Scan() expected error for a file root, got nil")
	}
}

func TestCountTree(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":         "a",
		"sub/b.txt":     "b",
		"sub/deep/c.md": "c",
	})

	files, folders, err := CountTree(root)
	if err != nil {
		t.Fatalf("CountTree() error = %v", err)
	}
	if files != 3 {
		t.Errorf("files = %d, want 3", files)
	}
	if folders != 2 {
		t.Errorf("folders = %d, want 2", folders)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	t.Run("creates parents and sets permissions", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "a", "b", "out.bin")

		if err := WriteFileAtomic(path, []byte("payload"), 0600); err != nil {
			t.Fatalf("WriteFileAtomic() error = %v", err)
		}

		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if string(got) != "payload" {
			t.Errorf("content = %q, want %q", got, "payload")
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("perm = %o, want 600", info.Mode().Perm())
		}
	})

	t.Run("replaces existing file without leftovers", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := filepath.Join(dir, "out.txt")

		for _, content := range []string{"first", "second"} {
			if err := WriteFileAtomic(path, []byte(content), 0644); err != nil {
				t.Fatalf("WriteFileAtomic() error = %v", err)
			}
		}

		got, _ := os.ReadFile(path)
		if string(got) != "second" {
			t.Errorf("content = %q, want %q", got, "second")
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 1 {
			t.Errorf("directory has %d entries, want 1", len(entries))
		}
	})
}
