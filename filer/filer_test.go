package filer_test

import (
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimetree/go-mimetree/filer"
	"github.com/mimetree/go-mimetree/header"
)

func attachmentHead(filename string) *header.Head {
	h := header.New()
	h.Set(header.ContentType, "application/octet-stream")
	if filename != "" {
		h.Set(header.ContentDisposition, `attachment; filename="`+filename+`"`)
	}
	return h
}

func TestFiler_Output(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	f := filer.New(fs, "out")

	body, err := f.Output(attachmentHead("cat.gif"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", "cat.gif"), body.Path())

	_, err = io.WriteString(body, "gif bytes")
	require.NoError(t, err)
	assert.Equal(t, int64(9), body.Len())

	rc, err := body.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "gif bytes", string(data))
}

func TestFiler_GeneratedNames(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	f := filer.New(fs, "out")

	// no filename at all
	anon, err := f.Output(attachmentHead(""))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(anon.Path()), "part-001-"))

	// dotfiles and path games never reach the filesystem as declared
	for _, evil := range []string{".bashrc", "..", "evil\nname"} {
		body, err := f.Output(attachmentHead(evil))
		require.NoError(t, err)
		base := filepath.Base(body.Path())
		assert.True(t, strings.HasPrefix(base, "part-"), "name for %q was %q", evil, base)
	}
}

func TestFiler_TraversalStripped(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	f := filer.New(fs, "out")

	body, err := f.Output(attachmentHead("../../etc/passwd"))
	require.NoError(t, err)

	// only the base name survives, inside the output directory
	assert.Equal(t, filepath.Join("out", "passwd"), body.Path())
}

func TestFiler_Purge(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	f := filer.New(fs, "out")

	a, err := f.Output(attachmentHead("a.txt"))
	require.NoError(t, err)
	b, err := f.Output(attachmentHead("b.txt"))
	require.NoError(t, err)

	for _, body := range []interface{ Path() string }{a, b} {
		exists, err := afero.Exists(fs, body.Path())
		require.NoError(t, err)
		assert.True(t, exists)
	}

	// one path already gone must not break the purge
	require.NoError(t, fs.Remove(a.Path()))

	require.NoError(t, f.Purge())
	for _, body := range []interface{ Path() string }{a, b} {
		exists, err := afero.Exists(fs, body.Path())
		require.NoError(t, err)
		assert.False(t, exists)
	}

	// purging twice is fine
	require.NoError(t, f.Purge())
}
