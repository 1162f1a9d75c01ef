package transport

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dsync-go/internal/dsync"
)

func TestProbeCache(t *testing.T) {
	t.Parallel()
	mem := NewMemoryTransport(nil)
	ctx := context.Background()

	var probes atomic.Int32
	mem.FailFetches(func(string) error {
		probes.Add(1)
		return nil
	})

	blob, err := mem.Upload(ctx, "ep", []byte("x"), "x")
	require.NoError(t, err)

	pc := NewProbeCache(mem, time.Minute)
	require.NoError(t, pc.Probe(ctx, blob.Locator))
	require.NoError(t, pc.Probe(ctx, blob.Locator))
	require.EqualValues(t, 1, probes.Load(), "second probe should be served from cache")
	require.Equal(t, 1, pc.Len())

	_, err = pc.Patch(ctx, "ep", blob.MessageID, []byte("y"), "x")
	require.NoError(t, err)
	require.Zero(t, pc.Len())
}

func TestProbeCache_DoesNotCacheFailures(t *testing.T) {
	t.Parallel()
	mem := NewMemoryTransport(nil)
	ctx := context.Background()

	blob, err := mem.Upload(ctx, "ep", []byte("x"), "x")
	require.NoError(t, err)

	fail := true
	mem.FailFetches(func(string) error {
		if fail {
			return errors.New("down")
		}
		return nil
	})

	pc := NewProbeCache(mem, time.Minute)
	require.Error(t, pc.Probe(ctx, blob.Locator))
	require.Zero(t, pc.Len())

	fail = false
	require.NoError(t, pc.Probe(ctx, blob.Locator))
}

// relocatingTransport hands out a new locator on every patch, the way
// webhook attachments get a fresh URL when a message is edited.
type relocatingTransport struct {
	*MemoryTransport
	patches int
}

func (r *relocatingTransport) Patch(ctx context.Context, endpoint, messageID string, data []byte, name string) (*dsync.RemoteBlob, error) {
	blob, err := r.MemoryTransport.Patch(ctx, endpoint, messageID, data, name)
	if err != nil {
		return nil, err
	}
	r.patches++
	blob.Locator = fmt.Sprintf("%s?v=%d", blob.Locator, r.patches)
	return blob, nil
}

func TestProbeCache_PatchDropsPreviousLocator(t *testing.T) {
	t.Parallel()
	mem := NewMemoryTransport(nil)
	ctx := context.Background()

	var probes atomic.Int32
	mem.FailFetches(func(string) error {
		probes.Add(1)
		return nil
	})

	pc := NewProbeCache(&relocatingTransport{MemoryTransport: mem}, time.Minute)
	blob, err := pc.Upload(ctx, "ep", []byte("x"), "x")
	require.NoError(t, err)
	require.NoError(t, pc.Probe(ctx, blob.Locator))
	require.Equal(t, 1, pc.Len())

	patched, err := pc.Patch(ctx, "ep", blob.MessageID, []byte("y"), "x")
	require.NoError(t, err)
	require.NotEqual(t, blob.Locator, patched.Locator)
	require.Zero(t, pc.Len(), "probe of the pre-edit locator must not survive the patch")

	require.NoError(t, pc.Probe(ctx, blob.Locator))
	require.EqualValues(t, 2, probes.Load())
}

func TestProbeCache_DeleteDropsLocator(t *testing.T) {
	t.Parallel()
	mem := NewMemoryTransport(nil)
	ctx := context.Background()

	pc := NewProbeCache(mem, time.Minute)
	blob, err := pc.Upload(ctx, "ep", []byte("x"), "x")
	require.NoError(t, err)
	require.NoError(t, pc.Probe(ctx, blob.Locator))
	require.Equal(t, 1, pc.Len())

	require.NoError(t, pc.Delete(ctx, "ep", blob.MessageID))
	require.Zero(t, pc.Len())
	require.ErrorIs(t, pc.Probe(ctx, blob.Locator), dsync.ErrTransport)
}

type recordingObserver struct {
	ops []string
}

func (r *recordingObserver) ObserveRequest(backend, operation string, _ time.Duration, err error) {
	r.ops = append(r.ops, backend+"/"+operation)
}

func TestInstrument(t *testing.T) {
	t.Parallel()
	mem := NewMemoryTransport(nil)
	obs := &recordingObserver{}
	tr := Instrument(mem, "memory", obs)
	ctx := context.Background()

	blob, err := tr.Upload(ctx, "ep", []byte("x"), "x")
	require.NoError(t, err)
	_, err = tr.Fetch(ctx, blob.Locator)
	require.NoError(t, err)
	require.NoError(t, tr.Probe(ctx, blob.Locator))
	require.NoError(t, tr.Delete(ctx, "ep", blob.MessageID))

	require.Equal(t, []string{"memory/upload", "memory/fetch", "memory/probe", "memory/delete"}, obs.ops)
	require.Same(t, mem, Instrument(mem, "memory", nil))
}
