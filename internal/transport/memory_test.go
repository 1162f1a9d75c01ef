package transport

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"dsync-go/internal/dsync"
)

func TestMemoryTransport_RoundTrip(t *testing.T) {
	t.Parallel()
	tr := NewMemoryTransport(nil)
	ctx := context.Background()

	blob, err := tr.Upload(ctx, "ep", []byte("data"), "a.bin")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(blob.Locator, "mem://"))

	data, err := tr.Fetch(ctx, blob.Locator)
	require.NoError(t, err)
	require.Equal(t, []byte("data"), data)

	data[0] = 'X'
	again, err := tr.Fetch(ctx, blob.Locator)
	require.NoError(t, err)
	require.Equal(t, []byte("data"), again, "fetched bytes must be a copy")

	_, err = tr.Patch(ctx, "other-ep", blob.MessageID, []byte("v2"), "a.bin")
	require.ErrorIs(t, err, dsync.ErrTransport)

	require.NoError(t, tr.Delete(ctx, "ep", blob.MessageID))
	require.Equal(t, []string{blob.MessageID}, tr.Deleted())
	require.Zero(t, tr.Len())
}

func TestMemoryTransport_FailureHooks(t *testing.T) {
	t.Parallel()
	tr := NewMemoryTransport(nil)
	ctx := context.Background()
	boom := errors.New("boom")

	tr.FailUploads(func(_, name string) error {
		if name == "bad" {
			return boom
		}
		return nil
	})
	_, err := tr.Upload(ctx, "ep", []byte("x"), "bad")
	require.ErrorIs(t, err, dsync.ErrTransport)
	require.ErrorIs(t, err, boom)

	blob, err := tr.Upload(ctx, "ep", []byte("x"), "good")
	require.NoError(t, err)

	tr.FailPatches(func(string) error { return boom })
	_, err = tr.Patch(ctx, "ep", blob.MessageID, []byte("y"), "good")
	require.ErrorIs(t, err, dsync.ErrTransport)

	tr.FailFetches(func(string) error { return boom })
	_, err = tr.Fetch(ctx, blob.Locator)
	require.ErrorIs(t, err, dsync.ErrTransport)
	require.ErrorIs(t, tr.Probe(ctx, blob.Locator), dsync.ErrTransport)

	tr.OmitLocators(true)
	tr.FailUploads(nil)
	noLoc, err := tr.Upload(ctx, "ep", []byte("z"), "z")
	require.NoError(t, err)
	require.Empty(t, noLoc.Locator)
}

func TestMemoryTransport_CancelledContext(t *testing.T) {
	t.Parallel()
	tr := NewMemoryTransport(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Upload(ctx, "ep", []byte("x"), "x")
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, tr.Len())
}
