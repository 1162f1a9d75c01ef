package transport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dsync-go/internal/dsync"
)

func TestLoadEndpoints(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "webhooks.txt")
	content := "# comment\n\nhttps://example.com/a\n  https://example.com/b  \n#https://example.com/c\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	got, err := LoadEndpoints(path)
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, got)
}

func TestLoadEndpoints_MissingFile(t *testing.T) {
	t.Parallel()

	got, err := LoadEndpoints(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestEndpointPool_Select(t *testing.T) {
	t.Parallel()

	t.Run("empty pool is a configuration error", func(t *testing.T) {
		_, err := NewEndpointPool(nil).Select()
		require.ErrorIs(t, err, dsync.ErrConfiguration)
	})

	t.Run("selects only configured endpoints", func(t *testing.T) {
		endpoints := []string{"a", "b", "c"}
		pool := NewEndpointPool(endpoints)
		seen := make(map[string]bool)
		for i := 0; i < 300; i++ {
			ep, err := pool.Select()
			require.NoError(t, err)
			require.Contains(t, endpoints, ep)
			seen[ep] = true
		}
		require.Len(t, seen, 3, "uniform selection should reach every endpoint")
	})
}

func TestWriteTemplate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "conf", "webhooks.txt")
	require.NoError(t, WriteTemplate(path))

	got, err := LoadEndpoints(path)
	require.NoError(t, err)
	require.Empty(t, got, "template must contain only comments")

	require.NoError(t, os.WriteFile(path, []byte("https://example.com/x\n"), 0600))
	require.NoError(t, WriteTemplate(path))
	got, err = LoadEndpoints(path)
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.com/x"}, got)
}
