package entity

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/mimetree/go-mimetree/header"
)

// Body is an abstract writable byte sink holding one entity's decoded
// content. The engine writes decoded bytes into it and never inspects the
// storage strategy.
type Body interface {
	io.Writer

	// Open returns a fresh reader over the finished content. It may be
	// called more than once.
	Open() (io.ReadCloser, error)

	// Len returns the number of bytes written.
	Len() int64

	// Path returns the on-disk location of the content, or empty when the
	// body is memory-backed.
	Path() string
}

// Filer is the external factory that produces Body sinks and tracks what
// it has created for later cleanup. Purge must be idempotent: purging a
// path that is already gone is not an error.
type Filer interface {
	Output(h *header.Head) (Body, error)
	Purgeable(path string)
	Purge() error
}

// CoreBody is a memory-backed Body.
type CoreBody struct {
	buf bytes.Buffer
}

// NewCoreBody returns an empty memory-backed Body.
func NewCoreBody() *CoreBody {
	return &CoreBody{}
}

func (b *CoreBody) Write(p []byte) (int, error) {
	return b.buf.Write(p)
}

// Open returns a reader over the accumulated bytes.
func (b *CoreBody) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.buf.Bytes())), nil
}

// Len returns the number of bytes written.
func (b *CoreBody) Len() int64 {
	return int64(b.buf.Len())
}

// Path returns the empty string; a CoreBody has no on-disk location.
func (b *CoreBody) Path() string {
	return ""
}

// Bytes exposes the accumulated content.
func (b *CoreBody) Bytes() []byte {
	return b.buf.Bytes()
}

// coreFiler hands out memory-backed bodies and has nothing to purge. It is
// the default when output is not directed to disk.
type coreFiler struct{}

func (coreFiler) Output(*header.Head) (Body, error) { return NewCoreBody(), nil }
func (coreFiler) Purgeable(string)                  {}
func (coreFiler) Purge() error                      { return nil }

// scratch is a reusable buffer for encoded bytes awaiting decode. One
// scratch may be recycled across sequential singlepart extractions within
// a parser instance; parsing is strictly sequential, so it is never held
// by two in-flight extractions. Memory-backed unless given a filesystem.
type scratch struct {
	fs   afero.Fs
	dir  string
	file afero.File
	buf  bytes.Buffer
}

func newScratch(fs afero.Fs, dir string) *scratch {
	return &scratch{fs: fs, dir: dir}
}

// reset rewinds and truncates the scratch for reuse.
func (s *scratch) reset() error {
	if s.file != nil {
		if err := s.file.Truncate(0); err != nil {
			return errors.Wrap(err, "truncating scratch file")
		}
		if _, err := s.file.Seek(0, io.SeekStart); err != nil {
			return errors.Wrap(err, "rewinding scratch file")
		}
	}
	s.buf.Reset()
	return nil
}

func (s *scratch) Write(p []byte) (int, error) {
	if s.fs == nil {
		return s.buf.Write(p)
	}
	if s.file == nil {
		name := filepath.Join(s.dir, "mimetree-scratch-"+uuid.NewString())
		f, err := s.fs.Create(name)
		if err != nil {
			return 0, errors.Wrap(err, "creating scratch file")
		}
		s.file = f
	}
	return s.file.Write(p)
}

// open returns a reader over the scratch content from the start. The
// returned reader is valid until the next reset.
func (s *scratch) open() (io.Reader, error) {
	if s.file != nil {
		if _, err := s.file.Seek(0, io.SeekStart); err != nil {
			return nil, errors.Wrap(err, "rewinding scratch file")
		}
		return s.file, nil
	}
	return bytes.NewReader(s.buf.Bytes()), nil
}

// release deletes any on-disk scratch storage. Safe to call repeatedly.
func (s *scratch) release() error {
	if s.file == nil {
		return nil
	}
	name := s.file.Name()
	_ = s.file.Close()
	s.file = nil
	err := s.fs.Remove(name)
	if err != nil && !os.IsNotExist(err) && !errors.Is(err, afero.ErrFileNotFound) {
		return errors.Wrap(err, "removing scratch file")
	}
	return nil
}
