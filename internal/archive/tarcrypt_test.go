package archive

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timelocker/internal/progress"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestTarArchiver_RoundTripSingleFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "note.txt")
	writeFile(t, src, []byte("the quick brown fox"))

	a := NewTarArchiver()
	var sealed bytes.Buffer
	require.NoError(t, a.Seal(context.Background(), &sealed, []string{src}, "hunter2", nil))

	dest := filepath.Join(dir, "out")
	require.NoError(t, a.Unseal(context.Background(), &sealed, "hunter2", dest, nil))

	got, err := os.ReadFile(filepath.Join(dest, "note.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("the quick brown fox"), got)
}

func TestTarArchiver_RoundTripDirectory(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "project")
	writeFile(t, filepath.Join(src, "a.txt"), []byte("alpha"))
	writeFile(t, filepath.Join(src, "sub", "b.txt"), bytes.Repeat([]byte("beta"), 50_000))

	a := NewTarArchiver()
	var sealed bytes.Buffer
	require.NoError(t, a.Seal(context.Background(), &sealed, []string{src}, "pw", nil))

	dest := filepath.Join(dir, "out")
	require.NoError(t, a.Unseal(context.Background(), &sealed, "pw", dest, nil))

	got, err := os.ReadFile(filepath.Join(dest, "project", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha"), got)

	got, err = os.ReadFile(filepath.Join(dest, "project", "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("beta"), 50_000), got)
}

func TestTarArchiver_WrongPassword(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "secret.txt")
	writeFile(t, src, []byte("data"))

	a := NewTarArchiver()
	var sealed bytes.Buffer
	require.NoError(t, a.Seal(context.Background(), &sealed, []string{src}, "correct", nil))

	err := a.Unseal(context.Background(), &sealed, "incorrect", filepath.Join(dir, "out"), nil)
	assert.ErrorIs(t, err, ErrBadPassword)
}

func TestTarArchiver_CorruptedPayload(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "secret.txt")
	writeFile(t, src, []byte("data worth protecting"))

	a := NewTarArchiver()
	var sealed bytes.Buffer
	require.NoError(t, a.Seal(context.Background(), &sealed, []string{src}, "pw", nil))

	// Flip a ciphertext byte past the salt, verifier and chunk length.
	raw := sealed.Bytes()
	raw[saltSize+verifierSize+10] ^= 0xff

	err := a.Unseal(context.Background(), bytes.NewReader(raw), "pw", filepath.Join(dir, "out"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupted)
	assert.NotErrorIs(t, err, ErrBadPassword)
}

func TestTarArchiver_TruncatedPayload(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "secret.txt")
	writeFile(t, src, []byte("data"))

	a := NewTarArchiver()
	var sealed bytes.Buffer
	require.NoError(t, a.Seal(context.Background(), &sealed, []string{src}, "pw", nil))

	// Drop the terminator chunk and part of the last real one.
	raw := sealed.Bytes()[:sealed.Len()-40]

	err := a.Unseal(context.Background(), bytes.NewReader(raw), "pw", filepath.Join(dir, "out"), nil)
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestTarArchiver_TooShortStream(t *testing.T) {
	a := NewTarArchiver()
	err := a.Unseal(context.Background(), bytes.NewReader([]byte("tiny")), "pw", t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestTarArchiver_SealCancelled(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "secret.txt")
	writeFile(t, src, []byte("data"))

	tr := progress.NewTracker()
	tr.Cancel()
	em := progress.NewEmitter(tr, nil, time.Hour)

	a := NewTarArchiver()
	var sealed bytes.Buffer
	err := a.Seal(context.Background(), &sealed, []string{src}, "pw", em)
	assert.ErrorIs(t, err, progress.ErrCancelled)
}

func TestTarArchiver_SealContextCancelled(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "secret.txt")
	writeFile(t, src, []byte("data"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewTarArchiver()
	var sealed bytes.Buffer
	err := a.Seal(ctx, &sealed, []string{src}, "pw", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTarArchiver_ProgressCounts(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "files")
	writeFile(t, filepath.Join(src, "a"), make([]byte, 300))
	writeFile(t, filepath.Join(src, "b"), make([]byte, 700))

	tr := progress.NewTrackerWithTotal(1000, 2)
	em := progress.NewEmitter(tr, nil, time.Hour)

	a := NewTarArchiver()
	var sealed bytes.Buffer
	require.NoError(t, a.Seal(context.Background(), &sealed, []string{src}, "pw", em))

	assert.Equal(t, uint64(1000), tr.BytesDone())
	assert.Equal(t, uint32(2), tr.FilesDone())
}

func TestTarArchiver_SkipsSymlinks(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tree")
	writeFile(t, filepath.Join(src, "real.txt"), []byte("real"))
	require.NoError(t, os.Symlink(filepath.Join(src, "real.txt"), filepath.Join(src, "link.txt")))

	a := NewTarArchiver()
	var sealed bytes.Buffer
	require.NoError(t, a.Seal(context.Background(), &sealed, []string{src}, "pw", nil))

	dest := filepath.Join(dir, "out")
	require.NoError(t, a.Unseal(context.Background(), &sealed, "pw", dest, nil))

	_, err := os.Lstat(filepath.Join(dest, "tree", "real.txt"))
	assert.NoError(t, err)
	_, err = os.Lstat(filepath.Join(dest, "tree", "link.txt"))
	assert.True(t, os.IsNotExist(err))
}
