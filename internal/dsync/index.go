package dsync

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Index maps relative file paths to manifests. Iteration follows insertion
// order, which survives an encode/decode round trip.
type Index struct {
	LastUpdated Timestamp
	order       []string
	files       map[string]*FileManifest
}

func NewIndex() *Index {
	return &Index{files: make(map[string]*FileManifest)}
}

// Get returns the manifest stored under relPath. The pointer is owned by the
// index; callers outside the engine should Clone it.
func (ix *Index) Get(relPath string) (*FileManifest, bool) {
	m, ok := ix.files[relPath]
	return m, ok
}

// Put inserts or replaces the manifest under m.FilePath. New keys are
// appended to the iteration order.
func (ix *Index) Put(m *FileManifest) {
	if _, ok := ix.files[m.FilePath]; !ok {
		ix.order = append(ix.order, m.FilePath)
	}
	ix.files[m.FilePath] = m
}

// Remove drops relPath. Only used to undo an insert whose persist failed.
func (ix *Index) Remove(relPath string) {
	if _, ok := ix.files[relPath]; !ok {
		return
	}
	delete(ix.files, relPath)
	for i, p := range ix.order {
		if p == relPath {
			ix.order = append(ix.order[:i], ix.order[i+1:]...)
			break
		}
	}
}

// Paths returns every key in insertion order, deleted entries included.
func (ix *Index) Paths() []string {
	return append([]string(nil), ix.order...)
}

func (ix *Index) Len() int { return len(ix.order) }

// Encode renders the document the way it is written to disk and mirrored.
func (ix *Index) Encode() ([]byte, error) {
	return json.MarshalIndent(ix, "", "  ")
}

func (ix *Index) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"last_updated":`)
	ts, err := json.Marshal(ix.LastUpdated)
	if err != nil {
		return nil, err
	}
	buf.Write(ts)
	buf.WriteString(`,"files":`)
	err = writeOrderedObject(&buf, ix.order, func(key string) any { return ix.files[key] })
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (ix *Index) UnmarshalJSON(data []byte) error {
	fresh := NewIndex()
	err := readDocument(data, func(key string, dec *json.Decoder) error {
		switch key {
		case "last_updated":
			return dec.Decode(&fresh.LastUpdated)
		case "files":
			return readOrderedObject(dec, func(relPath string, dec *json.Decoder) error {
				if !ValidRelPath(relPath) {
					return fmt.Errorf("invalid file path %q", relPath)
				}
				var m FileManifest
				if err := dec.Decode(&m); err != nil {
					return fmt.Errorf("decoding manifest %q: %w", relPath, err)
				}
				m.FilePath = relPath
				fresh.Put(&m)
				return nil
			})
		default:
			var skip json.RawMessage
			return dec.Decode(&skip)
		}
	})
	if err != nil {
		return err
	}
	*ix = *fresh
	return nil
}

// DecodeIndex parses a files index document.
func DecodeIndex(data []byte) (*Index, error) {
	ix := NewIndex()
	if err := json.Unmarshal(data, ix); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}
	return ix, nil
}

// FolderIndex maps relative folder paths to folder manifests, in insertion
// order.
type FolderIndex struct {
	LastUpdated Timestamp
	order       []string
	folders     map[string]*FolderManifest
}

func NewFolderIndex() *FolderIndex {
	return &FolderIndex{folders: make(map[string]*FolderManifest)}
}

func (fx *FolderIndex) Get(relPath string) (*FolderManifest, bool) {
	m, ok := fx.folders[relPath]
	return m, ok
}

func (fx *FolderIndex) Put(m *FolderManifest) {
	if _, ok := fx.folders[m.FolderPath]; !ok {
		fx.order = append(fx.order, m.FolderPath)
	}
	fx.folders[m.FolderPath] = m
}

func (fx *FolderIndex) Remove(relPath string) {
	if _, ok := fx.folders[relPath]; !ok {
		return
	}
	delete(fx.folders, relPath)
	for i, p := range fx.order {
		if p == relPath {
			fx.order = append(fx.order[:i], fx.order[i+1:]...)
			break
		}
	}
}

func (fx *FolderIndex) Paths() []string {
	return append([]string(nil), fx.order...)
}

func (fx *FolderIndex) Encode() ([]byte, error) {
	return json.MarshalIndent(fx, "", "  ")
}

func (fx *FolderIndex) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"last_updated":`)
	ts, err := json.Marshal(fx.LastUpdated)
	if err != nil {
		return nil, err
	}
	buf.Write(ts)
	buf.WriteString(`,"folders":`)
	err = writeOrderedObject(&buf, fx.order, func(key string) any { return fx.folders[key] })
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (fx *FolderIndex) UnmarshalJSON(data []byte) error {
	fresh := NewFolderIndex()
	err := readDocument(data, func(key string, dec *json.Decoder) error {
		switch key {
		case "last_updated":
			return dec.Decode(&fresh.LastUpdated)
		case "folders":
			return readOrderedObject(dec, func(relPath string, dec *json.Decoder) error {
				if !ValidRelPath(relPath) {
					return fmt.Errorf("invalid folder path %q", relPath)
				}
				var m FolderManifest
				if err := dec.Decode(&m); err != nil {
					return fmt.Errorf("decoding folder %q: %w", relPath, err)
				}
				m.FolderPath = relPath
				fresh.Put(&m)
				return nil
			})
		default:
			var skip json.RawMessage
			return dec.Decode(&skip)
		}
	})
	if err != nil {
		return err
	}
	*fx = *fresh
	return nil
}

// DecodeFolderIndex parses a folders index document.
func DecodeFolderIndex(data []byte) (*FolderIndex, error) {
	fx := NewFolderIndex()
	if err := json.Unmarshal(data, fx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}
	return fx, nil
}

func writeOrderedObject(buf *bytes.Buffer, keys []string, value func(string) any) error {
	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		v, err := json.Marshal(value(key))
		if err != nil {
			return fmt.Errorf("encoding %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return nil
}

// readDocument walks the members of a top-level JSON object.
func readDocument(data []byte, member func(key string, dec *json.Decoder) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	return readOrderedObject(dec, member)
}

// readOrderedObject consumes one JSON object from dec, calling member for
// each key in document order. member must consume exactly the value. A null
// object is treated as empty.
func readOrderedObject(dec *json.Decoder, member func(key string, dec *json.Decoder) error) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		if err := member(key, dec); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
