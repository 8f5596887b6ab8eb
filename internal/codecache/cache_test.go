package codecache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bwkimmel/jdcp-go/pkg/types"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "cache.wal"), filepath.Join(dir, "cache.snapshot"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPutThenGetRoundTrips(t *testing.T) {
	c := openTestCache(t)

	digest, err := c.Put("Widget", []byte("class bytes v1"))
	require.NoError(t, err)

	def, ok := c.Get("Widget", digest)
	require.True(t, ok)
	require.Equal(t, []byte("class bytes v1"), def)
}

func TestPutIsIdempotentByDigest(t *testing.T) {
	c := openTestCache(t)

	d1, err := c.Put("Widget", []byte("same"))
	require.NoError(t, err)
	d2, err := c.Put("Widget", []byte("same"))
	require.NoError(t, err)
	require.Equal(t, d1, d2)
}

func TestDistinctDefinitionsGetDistinctDigests(t *testing.T) {
	c := openTestCache(t)

	d1, err := c.Put("Widget", []byte("v1"))
	require.NoError(t, err)
	d2, err := c.Put("Widget", []byte("v2"))
	require.NoError(t, err)
	require.NotEqual(t, d1, d2)

	def1, ok := c.Get("Widget", d1)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), def1)
}

func TestEvictRemovesEntry(t *testing.T) {
	c := openTestCache(t)
	digest, err := c.Put("Widget", []byte("v1"))
	require.NoError(t, err)

	require.NoError(t, c.Evict("Widget", digest))
	_, ok := c.Get("Widget", digest)
	require.False(t, ok)
}

func TestReplayRestoresStateAfterReopen(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, "cache.wal")
	snapPath := filepath.Join(dir, "cache.snapshot")

	c1, err := Open(walPath, snapPath)
	require.NoError(t, err)
	digest, err := c1.Put("Widget", []byte("v1"))
	require.NoError(t, err)
	require.NoError(t, c1.Close())

	c2, err := Open(walPath, snapPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c2.Close() })

	def, ok := c2.Get("Widget", digest)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), def)
}

func TestHasDoesNotReturnBytes(t *testing.T) {
	c := openTestCache(t)
	digest := types.DigestOf([]byte("nope"))
	require.False(t, c.Has("Widget", digest))
}
