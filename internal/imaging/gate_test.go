package imaging_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartx/imagesync/internal/imaging"
)

func TestNewGate(t *testing.T) {
	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "images")
		gate, err := imaging.NewGate(dir)
		require.NoError(t, err)
		assert.NotNil(t, gate)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("EmptyDir", func(t *testing.T) {
		_, err := imaging.NewGate("  ")
		assert.Error(t, err)
	})

	t.Run("PathIsFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		_, err := imaging.NewGate(path)
		assert.Error(t, err)
	})
}

func TestGateWriteAndExists(t *testing.T) {
	gate, err := imaging.NewGate(t.TempDir())
	require.NoError(t, err)

	assert.False(t, gate.Exists("ERP-1"))

	require.NoError(t, gate.Write("ERP-1", []byte("jpegbytes")))
	assert.True(t, gate.Exists("ERP-1"))

	data, err := os.ReadFile(gate.Path("ERP-1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpegbytes"), data)
}

func TestGateWriteRejectsEmpty(t *testing.T) {
	gate, err := imaging.NewGate(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, gate.Write("ERP-1", nil))
}

func TestGateLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	gate, err := imaging.NewGate(dir)
	require.NoError(t, err)
	require.NoError(t, gate.Write("ERP-1", []byte("jpegbytes")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ERP-1.jpg", entries[0].Name())
}

func TestGateExistingFileUntouched(t *testing.T) {
	dir := t.TempDir()
	gate, err := imaging.NewGate(dir)
	require.NoError(t, err)
	require.NoError(t, gate.Write("ERP-1", []byte("original")))

	before, err := os.Stat(gate.Path("ERP-1"))
	require.NoError(t, err)

	// Callers consult Exists before Write; an existing key is skipped.
	assert.True(t, gate.Exists("ERP-1"))

	after, err := os.Stat(gate.Path("ERP-1"))
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
	data, err := os.ReadFile(gate.Path("ERP-1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)
}
