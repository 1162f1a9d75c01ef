package dsync

import (
	"errors"
	"fmt"
)

// Error taxonomy for the sync pipeline. Operations wrap these with %w so
// callers can branch with errors.Is.
var (
	// ErrTransport covers network failures, timeouts and non-2xx responses
	// from a remote endpoint. Never retried automatically.
	ErrTransport = errors.New("transport error")

	// ErrIntegrity is a hash mismatch at chunk or whole-file level, or a
	// chunk set that is not exactly 0..N-1.
	ErrIntegrity = errors.New("integrity check failed")

	ErrDecryption    = errors.New("decryption failed")
	ErrDecompression = errors.New("decompression failed")

	// ErrNotFound means the path is not present in the index.
	ErrNotFound = errors.New("not found")

	// ErrGone means the path is present but soft-deleted.
	ErrGone = errors.New("gone")

	// ErrConfiguration is returned when no endpoints are configured.
	ErrConfiguration = errors.New("configuration error")

	// ErrChunkUnavailable is a failed chunk fetch during download.
	ErrChunkUnavailable = fmt.Errorf("chunk unavailable: %w", ErrTransport)

	// ErrMissingLocator is an upload or patch response that carried an
	// identifier but no attachment URL.
	ErrMissingLocator = fmt.Errorf("response carried no locator: %w", ErrTransport)

	// ErrCorruptIndex is returned by stores whose document cannot be parsed.
	ErrCorruptIndex = errors.New("corrupt index document")
)
