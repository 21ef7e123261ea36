package writer

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/C0sCube/selenium-scrape/api/schemas"
)

var _ schemas.DocumentWriter = (*FileWriter)(nil)

func TestFileWriter_WriteAndRead(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := New(fs, zaptest.NewLogger(t))

	path := filepath.Join("output", "data", "SBI", "save_html", "table.html")
	require.NoError(t, w.WriteText(path, "<table></table>"))

	data, err := w.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<table></table>", string(data))

	exists, err := afero.Exists(fs, path+".tmp")
	require.NoError(t, err)
	assert.False(t, exists, "temporary file must not remain")
}

func TestFileWriter_WriteBinaryOverwrites(t *testing.T) {
	w := New(afero.NewMemMapFs(), nil)

	require.NoError(t, w.WriteBinary("a/b.pdf", []byte{1, 2, 3}))
	require.NoError(t, w.WriteBinary("a/b.pdf", []byte{4}))

	data, err := w.ReadFile("a/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, data)
}

func TestFileWriter_EnsureDirs(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := New(fs, nil)

	path, err := w.EnsureDirs("output", "data", "HDFC")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("output", "data", "HDFC"), path)

	isDir, err := afero.IsDir(fs, path)
	require.NoError(t, err)
	assert.True(t, isDir)
}

func TestFileWriter_List(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := New(fs, nil)

	names, err := w.List("downloads")
	require.NoError(t, err)
	assert.Empty(t, names, "missing directory lists as empty")

	require.NoError(t, w.WriteText("downloads/b.csv", "x"))
	require.NoError(t, w.WriteText("downloads/a.pdf", "y"))
	require.NoError(t, fs.MkdirAll("downloads/nested", 0o755))

	names, err = w.List("downloads")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.csv"}, names)
}

func TestFileWriter_ReadMissing(t *testing.T) {
	w := New(afero.NewMemMapFs(), nil)
	_, err := w.ReadFile("nope.txt")
	assert.Error(t, err)
}
