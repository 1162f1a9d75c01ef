// Package hashing computes the content digests used to address and verify
// files and chunks: SHA-256, rendered as lowercase hex.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// WindowSize is the read size used when streaming a file.
const WindowSize = 1 << 20

// Bytes returns the digest of data.
func Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Reader returns the digest of everything read from r, reading in
// WindowSize blocks so memory use does not grow with input size.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, WindowSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File returns the digest of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	sum, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return sum, nil
}
