package decode

import "io"

// nopCloser adapts an io.Writer into an io.WriteCloser that never closes
// the underlying writer. The engine owns the sink's lifetime, not the codec.
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// NewAsIsEncoder returns a pass-through encoder for the as-is encodings
// (7bit, 8bit, binary, and unset).
func NewAsIsEncoder(w io.Writer) io.WriteCloser {
	return nopCloser{w}
}

// NewAsIsDecoder returns a pass-through decoder.
func NewAsIsDecoder(r io.Reader) io.Reader {
	return r
}
