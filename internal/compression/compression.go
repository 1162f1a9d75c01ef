// Package compression is the reversible zlib transform applied to large
// files before encryption.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"dsync-go/internal/config"
	"dsync-go/internal/dsync"
)

const (
	DefaultLevel = 6
	// DefaultThreshold is the original size a file must exceed before it is
	// compressed.
	DefaultThreshold = 100 * 1024
)

// Manager compresses with zlib at a fixed level.
type Manager struct {
	level     int
	threshold int64
}

var _ dsync.Compressor = (*Manager)(nil)

// New creates a Manager. level follows zlib: -2 (Huffman only) through 9.
func New(level int, threshold int64) (*Manager, error) {
	if level < zlib.HuffmanOnly || level > zlib.BestCompression {
		return nil, fmt.Errorf("invalid compression level %d", level)
	}
	if threshold < 0 {
		return nil, fmt.Errorf("invalid compression threshold %d", threshold)
	}
	return &Manager{level: level, threshold: threshold}, nil
}

// NewFromConfig applies defaults for unset fields.
func NewFromConfig(cfg config.CompressionConfig) (*Manager, error) {
	level := DefaultLevel
	if cfg.Level != nil {
		level = *cfg.Level
	}
	threshold := int64(DefaultThreshold)
	if cfg.Threshold > 0 {
		threshold = cfg.Threshold
	}
	return New(level, threshold)
}

func (m *Manager) ShouldCompress(size int64) bool {
	return size > m.threshold
}

func (m *Manager) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, m.level)
	if err != nil {
		return nil, fmt.Errorf("creating zlib writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("compressing: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing compression: %w", err)
	}
	return buf.Bytes(), nil
}

func (m *Manager) Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening zlib stream: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	return out, nil
}
