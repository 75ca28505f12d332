// Package decode maps Content-Transfer-Encoding names to codecs. The
// registry always resolves: an unrecognized name falls back to the binary
// (as-is) codec, because undecodable data must never be silently dropped.
package decode

import (
	"io"

	"github.com/pkg/errors"
)

// Recognized transfer encoding names.
const (
	None            = ""                 // bytes are left as-is
	Bit7            = "7bit"             // bytes are left as-is
	Bit8            = "8bit"             // bytes are left as-is
	Binary          = "binary"           // bytes are left as-is
	QuotedPrintable = "quoted-printable" // RFC 2045 quoted-printable
	Base64          = "base64"           // RFC 2045 base64
)

// Transcoding is a pair of stream transformers for one transfer encoding.
type Transcoding struct {
	// Encoder wraps an io.Writer so that binary data written to the
	// returned io.WriteCloser comes out encoded. Close must be called to
	// flush.
	Encoder func(io.Writer) io.WriteCloser

	// Decoder wraps an io.Reader so that encoded data read through the
	// returned io.Reader comes out decoded.
	Decoder func(io.Reader) io.Reader
}

// AsIsTranscoding passes bytes through untouched.
var AsIsTranscoding = Transcoding{NewAsIsEncoder, NewAsIsDecoder}

// Registry holds the supported transfer encodings. It may be extended to
// add handling for nonstandard encodings.
var Registry = map[string]Transcoding{
	None:            AsIsTranscoding,
	Bit7:            AsIsTranscoding,
	Bit8:            AsIsTranscoding,
	Binary:          AsIsTranscoding,
	QuotedPrintable: {NewQuotedPrintableEncoder, NewQuotedPrintableDecoder},
	Base64:          {NewBase64Encoder, NewBase64Decoder},
}

// Lookup resolves a transfer encoding name to its Transcoding. The second
// value is false when the name was unrecognized and the binary fallback was
// returned instead.
func Lookup(name string) (Transcoding, bool) {
	if tc, ok := Registry[name]; ok {
		return tc, true
	}
	return AsIsTranscoding, false
}

// Decode copies src to dst through the decoder.
func (tc Transcoding) Decode(dst io.Writer, src io.Reader) error {
	if _, err := io.Copy(dst, tc.Decoder(src)); err != nil {
		return errors.Wrap(err, "decoding transfer encoding")
	}
	return nil
}

// Encode copies src to dst through the encoder.
func (tc Transcoding) Encode(dst io.Writer, src io.Reader) error {
	w := tc.Encoder(dst)
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "encoding transfer encoding")
	}
	return errors.Wrap(w.Close(), "flushing transfer encoding")
}
