package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waybackscraper/pkg/logger"
	"waybackscraper/pkg/wayback"
)

func TestCreateMarkAndLoad(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(dir, logger.NewNopLogger())
	assert.False(t, mgr.Exists())

	cp, err := mgr.Create("nasa", "run-1")
	require.NoError(t, err)
	assert.True(t, mgr.Exists())
	assert.Equal(t, filepath.Join(dir, FileName), mgr.Path())

	first := wayback.Snapshot{Timestamp: "20200101000000", Original: "https://twitter.com/nasa"}
	second := wayback.Snapshot{Timestamp: "20200101000000", Original: "https://twitter.com/nasa/media"}
	require.NoError(t, mgr.MarkSnapshot(cp, first, 3))

	loaded, err := mgr.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "nasa", loaded.Account)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, 3, loaded.TotalDownloaded)
	assert.True(t, loaded.IsProcessed(first))
	assert.False(t, loaded.IsProcessed(second))
	assert.NoFileExists(t, mgr.Path()+".tmp")
}

func TestLoadMissing(t *testing.T) {
	cp, err := NewManager(t.TempDir(), logger.NewNopLogger()).Load()
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0644))

	_, err := NewManager(dir, logger.NewNopLogger()).Load()
	assert.Error(t, err)
}

func TestLoadRejectsOtherVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{"account":"nasa","version":99}`), 0644))

	_, err := NewManager(dir, logger.NewNopLogger()).Load()
	assert.ErrorContains(t, err, "version")
}

func TestResume(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(dir, logger.NewNopLogger())
	s := wayback.Snapshot{Timestamp: "20200101000000", Original: "https://twitter.com/nasa"}

	cp, err := mgr.Resume("nasa", "run-1")
	require.NoError(t, err)
	require.NoError(t, mgr.MarkSnapshot(cp, s, 0))

	again, err := mgr.Resume("nasa", "run-2")
	require.NoError(t, err)
	assert.Equal(t, "run-1", again.RunID)
	assert.True(t, again.IsProcessed(s))

	// a checkpoint of another account in the same directory is replaced
	other, err := mgr.Resume("esa", "run-3")
	require.NoError(t, err)
	assert.Equal(t, "esa", other.Account)
	assert.False(t, other.IsProcessed(s))
}

func TestDelete(t *testing.T) {
	mgr := NewManager(t.TempDir(), logger.NewNopLogger())
	_, err := mgr.Create("nasa", "run-1")
	require.NoError(t, err)

	require.NoError(t, mgr.Delete())
	assert.False(t, mgr.Exists())
	require.NoError(t, mgr.Delete())
}
