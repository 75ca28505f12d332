package decode

import (
	"io"
	"mime/quotedprintable"
)

// qpCloser adapts the quotedprintable writer, which must be closed to flush
// but must not close the underlying sink.
type qpCloser struct {
	*quotedprintable.Writer
}

func (c qpCloser) Close() error {
	return c.Writer.Close()
}

// NewQuotedPrintableEncoder returns an io.WriteCloser that encodes written
// bytes as quoted-printable onto w.
func NewQuotedPrintableEncoder(w io.Writer) io.WriteCloser {
	return qpCloser{quotedprintable.NewWriter(w)}
}

// NewQuotedPrintableDecoder returns an io.Reader that decodes
// quoted-printable read from r.
func NewQuotedPrintableDecoder(r io.Reader) io.Reader {
	return quotedprintable.NewReader(r)
}
