package datastore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func open(t *testing.T, path string) *DataStore {
	t.Helper()
	cfg := DefaultConfig(path)
	cfg.AutoSaveInterval = 0
	ds, err := NewWithConfig(cfg)
	require.NoError(t, err)
	return ds
}

func TestPutGetDelete(t *testing.T) {
	ds := open(t, filepath.Join(t.TempDir(), "store.json"))
	defer ds.Close()

	require.NoError(t, ds.Put("a", item{Name: "x", Count: 2}))

	var got item
	ok, err := ds.Get("a", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, item{Name: "x", Count: 2}, got)

	ok, err = ds.Get("missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ds.Delete("a"))
	require.NoError(t, ds.Delete("a"))
	ok, _ = ds.Get("a", &got)
	assert.False(t, ok)
}

func TestSyncSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")
	ds := open(t, path)
	require.NoError(t, ds.Put("guild:1", item{Name: "one"}))
	require.NoError(t, ds.Put("guild:2", item{Name: "two"}))
	require.NoError(t, ds.Put("other", item{Name: "x"}))
	require.NoError(t, ds.Sync())

	// simulate a crash: no Close
	reopened := open(t, path)
	defer reopened.Close()

	assert.Equal(t, []string{"guild:1", "guild:2"}, reopened.Keys("guild:"))
	var got item
	ok, err := reopened.Get("guild:2", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", got.Name)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestMemoryLimit(t *testing.T) {
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "store.json"))
	cfg.AutoSaveInterval = 0
	cfg.MaxMemorySize = 32
	ds, err := NewWithConfig(cfg)
	require.NoError(t, err)
	defer ds.Close()

	require.NoError(t, ds.Put("k", "short"))
	err = ds.Put("big", "this value is far too large to fit in the limit")
	assert.ErrorIs(t, err, ErrMemoryLimit)
}

func TestBackupsAreBounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	cfg := DefaultConfig(path)
	cfg.AutoSaveInterval = 0
	cfg.BackupCount = 2
	ds, err := NewWithConfig(cfg)
	require.NoError(t, err)
	defer ds.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, ds.Put("n", i))
		require.NoError(t, ds.Sync())
	}

	backups, err := filepath.Glob(path + ".backup.*")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(backups), 2)
}

func TestClosed(t *testing.T) {
	ds := open(t, filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, ds.Close())
	require.NoError(t, ds.Close())

	assert.ErrorIs(t, ds.Put("a", 1), ErrClosed)
	assert.ErrorIs(t, ds.Sync(), ErrClosed)
	_, err := ds.Get("a", new(int))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCorruptFileIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := New(path)
	assert.Error(t, err)
}
