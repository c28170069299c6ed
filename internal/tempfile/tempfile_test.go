package tempfile

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/stretchr/testify/require"
)

func TestPurgeAllRemovesTrackedFiles(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir)

	f1, err := tr.Create("src-*.jpg")
	require.NoError(t, err)
	require.NoError(t, f1.Close())

	manual := filepath.Join(dir, "manual.png")
	require.NoError(t, os.WriteFile(manual, []byte("x"), 0o600))
	tr.Track(manual)
	tr.Track(manual)

	require.Len(t, tr.Paths(), 2)

	warnings := tr.PurgeAll()
	require.Empty(t, warnings)
	require.Empty(t, tr.Paths())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestPurgeAllIgnoresMissingFiles(t *testing.T) {
	tr := New(t.TempDir())
	tr.Track(filepath.Join(t.TempDir(), "never-created"))

	require.Empty(t, tr.PurgeAll())
	require.Empty(t, tr.PurgeAll())
}

func TestPurgeAllReportsWarnings(t *testing.T) {
	dir := t.TempDir()
	// непустую директорию os.Remove удалить не может
	busy := filepath.Join(dir, "busy")
	require.NoError(t, os.Mkdir(busy, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(busy, "f"), []byte("x"), 0o600))

	tr := New(dir)
	tr.Track(busy)

	warnings := tr.PurgeAll()
	require.Len(t, warnings, 1)
	require.ErrorIs(t, warnings[0], model.ErrCleanupWarning)
	require.Empty(t, tr.Paths())
}

func TestTrackerIsReusable(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir)

	for range 3 {
		f, err := tr.Create("job-*")
		require.NoError(t, err)
		require.NoError(t, f.Close())
		require.Empty(t, tr.PurgeAll())
	}
}

func TestConcurrentTrack(t *testing.T) {
	tr := New(t.TempDir())
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Track(filepath.Join("/nonexistent", string(rune('a'+i%26)), "f"))
		}()
	}
	wg.Wait()
	require.Len(t, tr.Paths(), 26)
}
