package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/promptpipe/core"
)

func TestNameFor(t *testing.T) {
	assert.Equal(t, "clipboard", NameFor("-"))
	assert.Equal(t, "example_com_docs_intro", NameFor("https://example.com/docs/intro"))
	assert.Equal(t, "my_page", NameFor("/tmp/in/my-page.html"))
}

func TestWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w, err := New(dir)
	require.NoError(t, err)

	t.Run("Should write the rendered document", func(t *testing.T) {
		path, err := w.Write("doc", []byte("# hi\n"), ".md")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "doc.md"), path)
		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "# hi\n", string(b))
	})

	t.Run("Should write attachments prefixed with their index", func(t *testing.T) {
		paths, err := w.WriteAttachments("doc", []core.Attachment{
			core.NewAttachment("chart one.jpg", "image/jpeg", []byte("jpg")),
			core.NewAttachment("README", "text/markdown", []byte("md")),
		})
		require.NoError(t, err)
		require.Len(t, paths, 2)
		assert.Equal(t, filepath.Join(dir, "doc_attachments", "0-chart_one.jpg"), paths[0])
		assert.Equal(t, filepath.Join(dir, "doc_attachments", "1-README"), paths[1])
		b, err := os.ReadFile(paths[0])
		require.NoError(t, err)
		assert.Equal(t, "jpg", string(b))
	})

	t.Run("Should skip the directory when there is nothing to write", func(t *testing.T) {
		paths, err := w.WriteAttachments("empty", nil)
		require.NoError(t, err)
		assert.Nil(t, paths)
		assert.NoDirExists(t, filepath.Join(dir, "empty_attachments"))
	})
}
