package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trakline/trakline/internal/config"
)

func newDiskStore(t *testing.T) (*DiskStore, string) {
	t.Helper()
	dir := t.TempDir()
	store := NewDiskStore(config.MediaConfig{Dir: dir, BaseURL: "http://media.local/"})
	return store, dir
}

func TestDiskStoreUploadDelete(t *testing.T) {
	ctx := context.Background()
	store, dir := newDiskStore(t)

	asset, err := store.Upload(ctx, []byte("payload"), "statuses")
	require.NoError(t, err)
	assert.Equal(t, "http://media.local/"+asset.DeleteKey, asset.URL)

	onDisk := filepath.Join(dir, filepath.FromSlash(asset.DeleteKey))
	data, err := os.ReadFile(onDisk)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	require.NoError(t, store.Delete(ctx, asset.DeleteKey))
	_, err = os.Stat(onDisk)
	assert.True(t, os.IsNotExist(err))
}

func TestDiskStoreDeleteMissingKey(t *testing.T) {
	store, _ := newDiskStore(t)
	assert.NoError(t, store.Delete(context.Background(), "statuses/never-existed"))
}

func TestDiskStoreDeleteRejectsEscapes(t *testing.T) {
	store, _ := newDiskStore(t)
	for _, key := range []string{"", ".", "../etc/passwd", "/etc/passwd", "statuses/../../x"} {
		assert.Error(t, store.Delete(context.Background(), key), "key %q", key)
	}
}

func TestDiskStoreFolderFallback(t *testing.T) {
	store, dir := newDiskStore(t)
	asset, err := store.Upload(context.Background(), []byte("x"), "../..")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "misc"))
	assert.NoError(t, err)
	assert.NotContains(t, asset.DeleteKey, "..")
}
