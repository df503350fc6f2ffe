package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/Skryldev/ivr-studio/pkg/errors"
)

func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	out := make(map[string]string)
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = string(data)
	}
	return out
}

func TestWriteArchive(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "acme")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "extra"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "welcome.mp3"), []byte("welcome audio"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "transcript.txt"), []byte("[welcome]\nhello\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "extra", "menu.mp3"), []byte("menu audio"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, ".welcome.1234.part.mp3"), []byte("half"), 0o644))

	dst := filepath.Join(root, "acme.zip")
	require.NoError(t, NewZipWriter().WriteArchive(context.Background(), src, dst))

	files := readArchive(t, dst)
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"extra/menu.mp3", "transcript.txt", "welcome.mp3"}, names)
	assert.Equal(t, "welcome audio", files["welcome.mp3"])

	// only the archive itself remains next to the source dir
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestWriteArchiveSkipsItselfInsideSource(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.mp3"), []byte("a"), 0o644))
	dst := filepath.Join(src, "out.zip")

	w := NewZipWriter()
	require.NoError(t, w.WriteArchive(context.Background(), src, dst))
	require.NoError(t, w.WriteArchive(context.Background(), src, dst))

	files := readArchive(t, dst)
	assert.Len(t, files, 1)
	assert.Contains(t, files, "a.mp3")
}

func TestWriteArchiveMissingSource(t *testing.T) {
	root := t.TempDir()
	dst := filepath.Join(root, "out.zip")

	err := NewZipWriter().WriteArchive(context.Background(), filepath.Join(root, "nope"), dst)
	assert.Equal(t, pkgerrors.ErrCodeArchive, pkgerrors.CodeOf(err))

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
	entries, _ := os.ReadDir(root)
	assert.Empty(t, entries)
}
