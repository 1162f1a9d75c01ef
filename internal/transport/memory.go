package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"dsync-go/internal/dsync"
)

const memoryScheme = "mem://"

type memoryBlob struct {
	endpoint string
	name     string
	data     []byte
}

// MemoryTransport keeps blobs in memory. It is useful for tests and dry
// runs, and its hooks let tests inject failures per call. This
// implementation is safe for concurrent use.
type MemoryTransport struct {
	mu      sync.RWMutex
	blobs   map[string]*memoryBlob // message id -> blob
	ids     dsync.IDGenerator
	deleted []string

	uploadHook  func(endpoint, name string) error
	patchHook   func(messageID string) error
	fetchHook   func(locator string) error
	omitLocator bool
}

// NewMemoryTransport creates an empty MemoryTransport.
func NewMemoryTransport(ids dsync.IDGenerator) *MemoryTransport {
	if ids == nil {
		ids = dsync.UUIDGenerator{}
	}
	return &MemoryTransport{blobs: make(map[string]*memoryBlob), ids: ids}
}

// FailUploads makes Upload return the hook's error whenever it is non-nil.
func (m *MemoryTransport) FailUploads(hook func(endpoint, name string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadHook = hook
}

// FailPatches makes Patch return the hook's error whenever it is non-nil.
func (m *MemoryTransport) FailPatches(hook func(messageID string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patchHook = hook
}

// FailFetches makes Fetch and Probe return the hook's error whenever it is
// non-nil.
func (m *MemoryTransport) FailFetches(hook func(locator string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchHook = hook
}

// OmitLocators makes uploads succeed with an empty locator, like a webhook
// response without attachments.
func (m *MemoryTransport) OmitLocators(omit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.omitLocator = omit
}

func (m *MemoryTransport) Upload(ctx context.Context, endpoint string, data []byte, name string) (*dsync.RemoteBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("upload: %w: %w", dsync.ErrTransport, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.uploadHook != nil {
		if err := m.uploadHook(endpoint, name); err != nil {
			return nil, fmt.Errorf("upload %s: %w: %w", name, dsync.ErrTransport, err)
		}
	}
	messageID := m.ids.New()
	m.blobs[messageID] = &memoryBlob{endpoint: endpoint, name: name, data: append([]byte(nil), data...)}
	if m.omitLocator {
		return &dsync.RemoteBlob{MessageID: messageID}, nil
	}
	return &dsync.RemoteBlob{MessageID: messageID, Locator: memoryScheme + messageID}, nil
}

func (m *MemoryTransport) Patch(ctx context.Context, endpoint, messageID string, data []byte, name string) (*dsync.RemoteBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("patch: %w: %w", dsync.ErrTransport, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.patchHook != nil {
		if err := m.patchHook(messageID); err != nil {
			return nil, fmt.Errorf("patch %s: %w: %w", messageID, dsync.ErrTransport, err)
		}
	}
	blob, ok := m.blobs[messageID]
	if !ok || blob.endpoint != endpoint {
		return nil, fmt.Errorf("patch %s: unknown message: %w", messageID, dsync.ErrTransport)
	}
	blob.name = name
	blob.data = append([]byte(nil), data...)
	if m.omitLocator {
		return &dsync.RemoteBlob{MessageID: messageID}, nil
	}
	return &dsync.RemoteBlob{MessageID: messageID, Locator: memoryScheme + messageID}, nil
}

func (m *MemoryTransport) Delete(ctx context.Context, endpoint, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	blob, ok := m.blobs[messageID]
	if !ok || blob.endpoint != endpoint {
		return fmt.Errorf("delete %s: unknown message: %w", messageID, dsync.ErrTransport)
	}
	delete(m.blobs, messageID)
	m.deleted = append(m.deleted, messageID)
	return nil
}

func (m *MemoryTransport) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch: %w: %w", dsync.ErrTransport, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, err := m.lookup(locator)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), blob.data...), nil
}

func (m *MemoryTransport) Probe(ctx context.Context, locator string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, err := m.lookup(locator)
	return err
}

// lookup must be called with m.mu held.
func (m *MemoryTransport) lookup(locator string) (*memoryBlob, error) {
	if m.fetchHook != nil {
		if err := m.fetchHook(locator); err != nil {
			return nil, fmt.Errorf("fetch: %w: %w", dsync.ErrTransport, err)
		}
	}
	messageID, ok := strings.CutPrefix(locator, memoryScheme)
	if !ok {
		return nil, fmt.Errorf("invalid memory locator %q: %w", locator, dsync.ErrTransport)
	}
	blob, ok := m.blobs[messageID]
	if !ok {
		return nil, fmt.Errorf("blob %s not found: %w", messageID, dsync.ErrTransport)
	}
	return blob, nil
}

// Replace overwrites the stored bytes behind locator, simulating remote
// corruption.
func (m *MemoryTransport) Replace(locator string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	messageID, _ := strings.CutPrefix(locator, memoryScheme)
	blob, ok := m.blobs[messageID]
	if !ok {
		return fmt.Errorf("blob %s not found", messageID)
	}
	blob.data = append([]byte(nil), data...)
	return nil
}

// Names returns the names of every stored blob.
func (m *MemoryTransport) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.blobs))
	for _, b := range m.blobs {
		names = append(names, b.name)
	}
	return names
}

// Len returns the number of stored blobs.
func (m *MemoryTransport) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// Deleted returns the message ids removed through Delete, in call order.
func (m *MemoryTransport) Deleted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.deleted...)
}

var _ dsync.Transport = (*MemoryTransport)(nil)
