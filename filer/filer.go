// Package filer decides where disk-backed entity bodies land. It maps a
// header to an output path, rejecting names that could escape the output
// directory or collide with dotfiles, and tracks everything it creates so
// one Purge call can clean up after an abandoned parse.
package filer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/mimetree/go-mimetree/entity"
	"github.com/mimetree/go-mimetree/header"
)

// Filer writes entity bodies into a directory on an afero filesystem. Use
// afero.NewMemMapFs to keep output in memory with the same path semantics.
// Filer satisfies the engine's sink-factory seam.
type Filer struct {
	fs     afero.Fs
	dir    string
	marked []string
	serial int
}

var _ entity.Filer = (*Filer)(nil)

// New returns a Filer writing under dir on fs.
func New(fs afero.Fs, dir string) *Filer {
	return &Filer{fs: fs, dir: dir}
}

// Output creates the Body sink for one entity, deriving the file name from
// the header when it offers a usable one and generating a name otherwise.
func (f *Filer) Output(h *header.Head) (entity.Body, error) {
	if err := f.fs.MkdirAll(f.dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating output directory")
	}

	name := f.evilFreeName(h)
	path := filepath.Join(f.dir, name)

	file, err := f.fs.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating output file %q", path)
	}

	f.Purgeable(path)
	return &fileBody{fs: f.fs, file: file, path: path}, nil
}

// Purgeable marks a path for removal by Purge.
func (f *Filer) Purgeable(path string) {
	for _, m := range f.marked {
		if m == path {
			return
		}
	}
	f.marked = append(f.marked, path)
}

// Purge removes everything marked purgeable. Already-gone paths are not an
// error; Purge may be called repeatedly.
func (f *Filer) Purge() error {
	var firstErr error
	for _, path := range f.marked {
		err := f.fs.RemoveAll(path)
		if err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = errors.Wrapf(err, "purging %q", path)
		}
	}
	f.marked = nil
	return firstErr
}

// evilFreeName returns a safe file name for the entity: the header's
// declared filename when it is free of path tricks, a generated name
// otherwise.
func (f *Filer) evilFreeName(h *header.Head) string {
	name := h.Filename()
	if name != "" {
		name = filepath.Base(name)
		switch {
		case name == "." || name == "..",
			strings.HasPrefix(name, "."),
			strings.ContainsAny(name, "\x00\r\n"):
			name = ""
		}
	}
	if name == "" {
		f.serial++
		return fmt.Sprintf("part-%03d-%s", f.serial, uuid.NewString())
	}
	return name
}

// fileBody is a disk-backed Body on an afero filesystem.
type fileBody struct {
	fs   afero.Fs
	file afero.File
	path string
	n    int64
}

func (b *fileBody) Write(p []byte) (int, error) {
	n, err := b.file.Write(p)
	b.n += int64(n)
	return n, errors.Wrapf(err, "writing body %q", b.path)
}

// Open returns a fresh reader over the written content. The write handle
// is closed on first open.
func (b *fileBody) Open() (io.ReadCloser, error) {
	if b.file != nil {
		if err := b.file.Close(); err != nil {
			return nil, errors.Wrapf(err, "closing body %q", b.path)
		}
		b.file = nil
	}
	rc, err := b.fs.Open(b.path)
	return rc, errors.Wrapf(err, "opening body %q", b.path)
}

func (b *fileBody) Len() int64 {
	return b.n
}

func (b *fileBody) Path() string {
	return b.path
}
