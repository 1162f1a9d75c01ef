package dsync

import (
	"path"
	"sort"
	"strings"
)

// ChunkRef locates one transformed chunk of a file. Hash is the SHA-256 of
// the bytes as stored remotely, not of the original content.
type ChunkRef struct {
	Index    int    `json:"chunk_index"`
	Hash     string `json:"chunk_hash"`
	Endpoint string `json:"webhook_url"`
	Locator  string `json:"cdn_url"`
}

// FileManifest is the complete record for one tracked file. It is immutable
// once committed except for Deleted.
type FileManifest struct {
	FilePath    string     `json:"file_path"`
	FileHash    string     `json:"file_hash"`
	FileSize    int64      `json:"file_size"`
	DateCreated Timestamp  `json:"date_created"`
	FileType    string     `json:"file_type"`
	Compressed  bool       `json:"compressed"`
	Encrypted   bool       `json:"encrypted"`
	Chunks      []ChunkRef `json:"chunks"`
	Deleted     bool       `json:"deleted"`
}

// Clone returns a deep copy so callers outside the engine lock cannot
// mutate the index.
func (m *FileManifest) Clone() *FileManifest {
	c := *m
	c.Chunks = append([]ChunkRef(nil), m.Chunks...)
	return &c
}

// SortedChunks returns the chunk list ordered by index.
func (m *FileManifest) SortedChunks() []ChunkRef {
	chunks := append([]ChunkRef(nil), m.Chunks...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks
}

// FolderManifest records a folder under the sync root with recursive counts.
// Locator is set when the snapshot upload succeeded.
type FolderManifest struct {
	FolderPath  string    `json:"folder_path"`
	DateCreated Timestamp `json:"date_created"`
	FileCount   int       `json:"file_count"`
	FolderCount int       `json:"folder_count"`
	Locator     *string   `json:"cdn_url"`
}

func (m *FolderManifest) Clone() *FolderManifest {
	c := *m
	if m.Locator != nil {
		loc := *m.Locator
		c.Locator = &loc
	}
	return &c
}

// MirrorPointer records which remote copy of the files index is live.
type MirrorPointer struct {
	Endpoint    string    `json:"webhook_url"`
	MessageID   string    `json:"message_id"`
	Locator     string    `json:"cdn_url"`
	LastUpdated Timestamp `json:"last_updated"`
}

// FileType returns the extension of a relative path the way manifests
// record it, e.g. ".txt". Files without an extension get "".
func FileType(relPath string) string {
	return path.Ext(relPath)
}

// ValidRelPath reports whether relPath is a clean, forward-slash path that
// stays inside the sync root.
func ValidRelPath(relPath string) bool {
	if relPath == "" || relPath == "." || strings.HasPrefix(relPath, "/") {
		return false
	}
	if path.Clean(relPath) != relPath {
		return false
	}
	return relPath != ".." && !strings.HasPrefix(relPath, "../")
}
