package classmanager

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bwkimmel/jdcp-go/internal/codecache"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	cache, err := codecache.Open(filepath.Join(dir, "c.wal"), filepath.Join(dir, "c.snap"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return New(cache)
}

func TestSnapshotSeesCurrentUntilOverridden(t *testing.T) {
	m := newTestManager(t)

	_, err := m.SetCurrent("Widget", []byte("v1"))
	require.NoError(t, err)

	snap := m.CreateSnapshot()
	digest, ok := m.GetForSnapshot(snap, "Widget")
	require.True(t, ok)
	def, ok := m.GetDefinition(snap, "Widget")
	require.True(t, ok)
	require.Equal(t, []byte("v1"), def)

	currentDigest, ok := m.CurrentDigest("Widget")
	require.True(t, ok)
	require.Equal(t, currentDigest, digest)
}

func TestSnapshotOverrideIsolatedFromLaterPublish(t *testing.T) {
	m := newTestManager(t)

	_, err := m.SetCurrent("Widget", []byte("v1"))
	require.NoError(t, err)

	snap := m.CreateSnapshot()
	pinned, err := m.SetForSnapshot(snap, "Widget", []byte("v1"))
	require.NoError(t, err)

	// A later publish must not affect the pinned snapshot's view.
	_, err = m.SetCurrent("Widget", []byte("v2"))
	require.NoError(t, err)

	def, ok := m.GetDefinition(snap, "Widget")
	require.True(t, ok)
	require.Equal(t, []byte("v1"), def)

	resolved, ok := m.GetForSnapshot(snap, "Widget")
	require.True(t, ok)
	require.Equal(t, pinned, resolved)
}

func TestReleaseSnapshotEvictsUnreferencedDigest(t *testing.T) {
	m := newTestManager(t)

	snap := m.CreateSnapshot()
	digest, err := m.SetForSnapshot(snap, "Widget", []byte("only-here"))
	require.NoError(t, err)

	require.NoError(t, m.ReleaseSnapshot(snap))

	_, ok := m.cache.Get("Widget", digest)
	require.False(t, ok, "digest referenced only by the released snapshot should be evicted")
}

func TestDigestSurvivesWhileAnotherSnapshotStillReferencesIt(t *testing.T) {
	m := newTestManager(t)

	snapA := m.CreateSnapshot()
	snapB := m.CreateSnapshot()

	digest, err := m.SetForSnapshot(snapA, "Widget", []byte("shared"))
	require.NoError(t, err)
	digestB, err := m.SetForSnapshot(snapB, "Widget", []byte("shared"))
	require.NoError(t, err)
	require.Equal(t, digest, digestB)

	require.NoError(t, m.ReleaseSnapshot(snapA))

	def, ok := m.GetDefinition(snapB, "Widget")
	require.True(t, ok)
	require.Equal(t, []byte("shared"), def)
}

func TestReleaseUnknownSnapshotErrors(t *testing.T) {
	m := newTestManager(t)
	err := m.ReleaseSnapshot(SnapshotID(999))
	require.Error(t, err)
}
