// Package partition splits a transformed byte buffer into fixed-size chunks
// and joins them back by index.
package partition

import (
	"errors"
	"fmt"
)

// DefaultMaxChunkSize keeps each chunk just under a 10 MiB per-upload limit.
const DefaultMaxChunkSize = 10475274

var (
	ErrInvalidSize = errors.New("chunk size must be positive")
	// ErrIncomplete means the supplied indices are not exactly 0..N-1.
	ErrIncomplete = errors.New("chunk set is not contiguous from zero")
)

// Split returns data cut into consecutive slices of at most maxSize bytes.
// Slice i covers data[i*maxSize : min((i+1)*maxSize, len(data))]. Empty
// input yields no chunks. The slices share data's backing array.
func Split(data []byte, maxSize int) ([][]byte, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, maxSize)
	}
	chunks := make([][]byte, 0, Count(len(data), maxSize))
	for start := 0; start < len(data); start += maxSize {
		end := min(start+maxSize, len(data))
		chunks = append(chunks, data[start:end:end])
	}
	return chunks, nil
}

// Count is the number of chunks Split produces for n bytes.
func Count(n, maxSize int) int {
	if n <= 0 || maxSize <= 0 {
		return 0
	}
	return (n + maxSize - 1) / maxSize
}

// Reassemble concatenates parts in index order. The keys must be exactly
// 0..len(parts)-1.
func Reassemble(parts map[int][]byte) ([]byte, error) {
	total := 0
	for i := 0; i < len(parts); i++ {
		p, ok := parts[i]
		if !ok {
			return nil, fmt.Errorf("%w: missing index %d of %d", ErrIncomplete, i, len(parts))
		}
		total += len(p)
	}

	out := make([]byte, 0, total)
	for i := 0; i < len(parts); i++ {
		out = append(out, parts[i]...)
	}
	return out, nil
}
