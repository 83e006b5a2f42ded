package progress

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanPath_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 1234), 0o600))

	bytes, files, err := ScanPath(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), bytes)
	assert.Equal(t, uint32(1), files)
}

func TestScanPath_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 200), 0o600))

	bytes, files, err := ScanPath(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), bytes)
	assert.Equal(t, uint32(2), files)
}

func TestScanPath_Missing(t *testing.T) {
	_, _, err := ScanPath(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
