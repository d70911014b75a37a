package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dist", "events.ics")
	w := NewWriter(path)

	require.NoError(t, w.Write("BEGIN:VCALENDAR\r\nEND:VCALENDAR"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "BEGIN:VCALENDAR\r\nEND:VCALENDAR", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	// Overwrite leaves no temp files behind.
	require.NoError(t, w.Write("second"))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriter_EmptyPath(t *testing.T) {
	assert.Error(t, NewWriter("").Write("x"))
}

func TestCopyPublicAssets(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out")

	require.NoError(t, os.WriteFile(filepath.Join(src, "index.html"), []byte("<html></html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "style.css"), []byte("body{}"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(src, "nested"), 0o755))

	require.NoError(t, CopyPublicAssets(src, dst))

	got, err := os.ReadFile(filepath.Join(dst, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(got))
	assert.FileExists(t, filepath.Join(dst, "style.css"))
	assert.NoDirExists(t, filepath.Join(dst, "nested"))
}

func TestCopyPublicAssets_NoSource(t *testing.T) {
	assert.NoError(t, CopyPublicAssets("", t.TempDir()))
	assert.Error(t, CopyPublicAssets(filepath.Join(t.TempDir(), "missing"), t.TempDir()))
}
