package entity

import (
	"bytes"
	"io"

	"github.com/mimetree/go-mimetree/internal/scanner"
)

const sourceChunkSize = 16_384

// Source is a line-oriented view over a byte stream. It hands out one raw
// line at a time (terminator attached), tracks the absolute byte offset
// consumed, and can surrender its unread remainder for fast-path body
// extraction. When the underlying stream is also an io.ReaderAt, already
// consumed regions may be re-read as zero-copy windows.
type Source struct {
	r    io.Reader
	ra   io.ReaderAt
	buf  []byte
	off  int // unread index into buf
	pos  int64
	eof  bool
	err  error
	done bool
}

// NewSource wraps a reader. If r also implements io.ReaderAt, zero-copy
// windows over consumed regions become available.
func NewSource(r io.Reader) *Source {
	ra, _ := r.(io.ReaderAt)
	return &Source{r: r, ra: ra}
}

// Next returns the next raw line with its terminator attached, or false at
// end of input or on a read error (see Err).
func (s *Source) Next() ([]byte, bool) {
	for {
		adv, tok, _ := scanner.ScanMessageLines(s.buf[s.off:], s.eof)
		if tok != nil {
			s.off += adv
			s.pos += int64(len(tok))
			return tok, true
		}

		if s.eof || s.err != nil {
			s.done = true
			return nil, false
		}

		s.fill()
	}
}

// fill compacts the buffer and reads another chunk.
func (s *Source) fill() {
	if s.off > 0 {
		s.buf = append(s.buf[:0], s.buf[s.off:]...)
		s.off = 0
	}

	chunk := make([]byte, sourceChunkSize)
	n, err := s.r.Read(chunk)
	s.buf = append(s.buf, chunk[:n]...)
	if err == io.EOF {
		s.eof = true
	} else if err != nil {
		s.err = err
	}
}

// Rest returns a reader over everything not yet consumed. The Source must
// not be used afterward.
func (s *Source) Rest() io.Reader {
	buffered := bytes.NewReader(s.buf[s.off:])
	s.off = len(s.buf)
	if s.eof || s.done {
		return buffered
	}
	return io.MultiReader(buffered, s.r)
}

// Pos returns the absolute byte offset consumed so far.
func (s *Source) Pos() int64 {
	return s.pos
}

// ReaderAt returns the underlying io.ReaderAt, or nil when the stream does
// not support random access.
func (s *Source) ReaderAt() io.ReaderAt {
	return s.ra
}

// Err returns the first read error other than io.EOF.
func (s *Source) Err() error {
	return s.err
}
