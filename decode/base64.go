package decode

import (
	"encoding/base64"
	"io"
)

const base64LineLength = 76

var base64LineBreak = []byte{'\n'}

// lineWriter inserts a line break every fixed number of bytes written, as
// RFC 2045 requires of encoded output. The break after a completed line is
// held until more data arrives (or Close), so acc is never left at zero
// with a break owed; acc == every means exactly that.
type lineWriter struct {
	every int
	acc   int
	lbr   []byte
	w     io.Writer
}

func (lw *lineWriter) Write(b []byte) (int, error) {
	n := 0
	for n < len(b) {
		if lw.acc == lw.every {
			if _, err := lw.w.Write(lw.lbr); err != nil {
				return n, err
			}
			lw.acc = 0
		}

		chunk := len(b) - n
		if room := lw.every - lw.acc; chunk > room {
			chunk = room
		}

		wn, err := lw.w.Write(b[n : n+chunk])
		n += wn
		lw.acc += wn
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (lw *lineWriter) Close() error {
	if lw.acc == 0 {
		return nil
	}
	_, err := lw.w.Write(lw.lbr)
	return err
}

// base64Closer closes the base64 stream, then flushes the line writer.
type base64Closer struct {
	io.WriteCloser
	lw *lineWriter
}

func (c *base64Closer) Close() error {
	if err := c.WriteCloser.Close(); err != nil {
		return err
	}
	return c.lw.Close()
}

// NewBase64Encoder returns an io.WriteCloser that base64-encodes written
// bytes onto w, wrapped at the standard line length.
func NewBase64Encoder(w io.Writer) io.WriteCloser {
	lw := &lineWriter{
		every: base64LineLength,
		lbr:   base64LineBreak,
		w:     w,
	}
	return &base64Closer{base64.NewEncoder(base64.StdEncoding, lw), lw}
}

// spaceStripper drops linear and vertical whitespace on the way through, so
// that line-wrapped or sloppily reflowed base64 decodes cleanly.
type spaceStripper struct {
	r io.Reader
}

func (s *spaceStripper) Read(p []byte) (int, error) {
	for {
		n, err := s.r.Read(p)
		kept := 0
		for _, c := range p[:n] {
			switch c {
			case ' ', '\t', '\r', '\n':
			default:
				p[kept] = c
				kept++
			}
		}
		if kept > 0 || err != nil {
			return kept, err
		}
		if n == 0 {
			return 0, nil
		}
	}
}

// NewBase64Decoder returns an io.Reader that decodes base64 read from r,
// tolerating embedded whitespace.
func NewBase64Decoder(r io.Reader) io.Reader {
	return base64.NewDecoder(base64.StdEncoding, &spaceStripper{r})
}
