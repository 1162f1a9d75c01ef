package transport

import (
	"context"
	"time"

	"dsync-go/internal/dsync"
)

// RequestObserver records the duration and outcome of each transport call.
type RequestObserver interface {
	ObserveRequest(backend, operation string, elapsed time.Duration, err error)
}

// Instrumented reports every call of the wrapped Transport to an observer.
type Instrumented struct {
	next     dsync.Transport
	backend  string
	observer RequestObserver
}

// Instrument wraps next. A nil observer returns next unchanged.
func Instrument(next dsync.Transport, backend string, observer RequestObserver) dsync.Transport {
	if observer == nil {
		return next
	}
	return &Instrumented{next: next, backend: backend, observer: observer}
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	i.observer.ObserveRequest(i.backend, op, time.Since(start), err)
}

func (i *Instrumented) Upload(ctx context.Context, endpoint string, data []byte, name string) (*dsync.RemoteBlob, error) {
	start := time.Now()
	blob, err := i.next.Upload(ctx, endpoint, data, name)
	i.observe("upload", start, err)
	return blob, err
}

func (i *Instrumented) Patch(ctx context.Context, endpoint, messageID string, data []byte, name string) (*dsync.RemoteBlob, error) {
	start := time.Now()
	blob, err := i.next.Patch(ctx, endpoint, messageID, data, name)
	i.observe("patch", start, err)
	return blob, err
}

func (i *Instrumented) Delete(ctx context.Context, endpoint, messageID string) error {
	start := time.Now()
	err := i.next.Delete(ctx, endpoint, messageID)
	i.observe("delete", start, err)
	return err
}

func (i *Instrumented) Fetch(ctx context.Context, locator string) ([]byte, error) {
	start := time.Now()
	data, err := i.next.Fetch(ctx, locator)
	i.observe("fetch", start, err)
	return data, err
}

func (i *Instrumented) Probe(ctx context.Context, locator string) error {
	start := time.Now()
	err := i.next.Probe(ctx, locator)
	i.observe("probe", start, err)
	return err
}

var _ dsync.Transport = (*Instrumented)(nil)
