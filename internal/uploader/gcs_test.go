package uploader

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  map[string]error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, putErr: map[string]error{}}
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStore) Put(_ context.Context, key, _ string, r io.Reader) error {
	if err := m.putErr[key]; err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func writeImages(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("jpeg "+name), 0o644))
	}
	return dir
}

func TestUploadDirUploadsEverything(t *testing.T) {
	store := newMemStore()
	up := newWithStore(store, "product_images", false, zap.NewNop())

	dir := writeImages(t, "ERP-1.jpg", "ERP-2.jpg")
	stats, err := up.UploadDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, Stats{Uploaded: 2}, stats)
	assert.Equal(t, []byte("jpeg ERP-1.jpg"), store.objects["product_images/ERP-1.jpg"])
	assert.Equal(t, []byte("jpeg ERP-2.jpg"), store.objects["product_images/ERP-2.jpg"])
}

func TestUploadDirSkipsExistingObjects(t *testing.T) {
	store := newMemStore()
	store.objects["product_images/ERP-1.jpg"] = []byte("already there")
	up := newWithStore(store, "product_images", false, zap.NewNop())

	dir := writeImages(t, "ERP-1.jpg", "ERP-2.jpg")
	stats, err := up.UploadDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, Stats{Uploaded: 1, Skipped: 1}, stats)
	assert.Equal(t, []byte("already there"), store.objects["product_images/ERP-1.jpg"])
}

func TestUploadDirOverwriteReplacesObjects(t *testing.T) {
	store := newMemStore()
	store.objects["product_images/ERP-1.jpg"] = []byte("stale")
	up := newWithStore(store, "product_images", true, zap.NewNop())

	dir := writeImages(t, "ERP-1.jpg")
	stats, err := up.UploadDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, Stats{Uploaded: 1}, stats)
	assert.Equal(t, []byte("jpeg ERP-1.jpg"), store.objects["product_images/ERP-1.jpg"])
}

func TestUploadDirCountsFailures(t *testing.T) {
	store := newMemStore()
	store.putErr["product_images/ERP-1.jpg"] = errors.New("backend unavailable")
	up := newWithStore(store, "product_images", false, zap.NewNop())

	dir := writeImages(t, "ERP-1.jpg", "ERP-2.jpg")
	stats, err := up.UploadDir(context.Background(), dir)
	require.NoError(t, err, "per-file failures never fail the bulk call")

	assert.Equal(t, Stats{Uploaded: 1, Failed: 1}, stats)
}

func TestUploadDirMissingDirectory(t *testing.T) {
	up := newWithStore(newMemStore(), "", false, zap.NewNop())
	_, err := up.UploadDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestObjectKeyWithoutPrefix(t *testing.T) {
	up := newWithStore(newMemStore(), "", false, zap.NewNop())
	assert.Equal(t, "ERP-1.jpg", up.objectKey("ERP-1.jpg"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/jpeg", contentType("a/b/ERP-1.jpg"))
	assert.Equal(t, "image/png", contentType("x.PNG"))
	assert.Equal(t, "application/octet-stream", contentType("x.bin"))
}
