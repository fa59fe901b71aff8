package loader

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	names []string
	err   error
}

func (f *fakeExtractor) ExtractText(_ context.Context, r io.Reader, name string) (string, error) {
	f.names = append(f.names, name)
	if f.err != nil {
		return "", f.err
	}
	b, _ := io.ReadAll(r)
	return "tika:" + string(b), nil
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadReadsMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "second")
	writeFile(t, dir, "a.md", "# first")
	writeFile(t, dir, "nested/c.html", "<html><body><p>third</p></body></html>")
	writeFile(t, dir, "nested/d.docx", "binary")
	writeFile(t, dir, "empty.txt", "   ")

	ex := &fakeExtractor{}
	docs, err := NewDirectoryLoader(ex).Load(context.Background(), dir, "")
	require.NoError(t, err)
	require.Len(t, docs, 4)

	assert.Equal(t, "# first", docs[0].PageContent)
	assert.Equal(t, "second", docs[1].PageContent)
	assert.Equal(t, "third", docs[2].PageContent)
	assert.Equal(t, "tika:binary", docs[3].PageContent)
	assert.Equal(t, filepath.Join(dir, "a.md"), docs[0].Metadata["source"])
	assert.Equal(t, "c.html", docs[2].Metadata["file_name"])
	assert.Equal(t, []string{"d.docx"}, ex.names)
}

func TestLoadHonoursGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep/a.txt", "a")
	writeFile(t, dir, "skip/b.txt", "b")
	writeFile(t, dir, "keep/c.md", "c")

	docs, err := NewDirectoryLoader(nil).Load(context.Background(), dir, "keep/*.txt")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].PageContent)
}

func TestLoadEmptyDirectory(t *testing.T) {
	docs, err := NewDirectoryLoader(nil).Load(context.Background(), t.TempDir(), "**/*")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLoadMissingDirectory(t *testing.T) {
	_, err := NewDirectoryLoader(nil).Load(context.Background(), filepath.Join(t.TempDir(), "missing"), "")
	assert.Error(t, err)
}

func TestLoadSkipsFilesThatCannotBeParsed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.txt", "fine")
	writeFile(t, dir, "broken.pdf", "not a pdf")
	writeFile(t, dir, "slides.pptx", "x")

	docs, err := NewDirectoryLoader(&fakeExtractor{err: errors.New("tika down")}).Load(context.Background(), dir, "")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "fine", docs[0].PageContent)
}
