package header_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mimetree/go-mimetree/header"
)

func TestHead_Ingest(t *testing.T) {
	t.Parallel()

	h := header.New()
	assert.True(t, h.Ingest("Subject: Hello\n"))
	assert.True(t, h.Ingest("Content-Type: text/plain;\n"))
	assert.True(t, h.Ingest("  charset=us-ascii\n"))

	assert.Equal(t, "Hello", h.Get("subject"))
	assert.Equal(t, "text/plain; charset=us-ascii", h.Get("Content-Type"))
	assert.Len(t, h.Fields(), 2)
	assert.Zero(t, h.Junk())
}

func TestHead_IngestJunk(t *testing.T) {
	t.Parallel()

	h := header.New()
	assert.False(t, h.Ingest("this is not a header line\n"))
	assert.True(t, h.Ingest("Subject: ok\n"))
	assert.Equal(t, 1, h.Junk())
	assert.Len(t, h.Lines(), 2)
}

func TestHead_MIMEType(t *testing.T) {
	t.Parallel()

	h := header.New()
	assert.Equal(t, "text/plain", h.MIMEType())

	h.Ingest("Content-Type: MULTIPART/Mixed; boundary=x\n")
	assert.Equal(t, "multipart/mixed", h.MIMEType())

	d := header.New()
	d.SetDefaultType("message/rfc822")
	assert.Equal(t, "message/rfc822", d.MIMEType())
}

func TestHead_TransferEncoding(t *testing.T) {
	t.Parallel()

	h := header.New()
	assert.Equal(t, "7bit", h.TransferEncoding())

	h.Ingest("Content-Transfer-Encoding: BASE64\n")
	assert.Equal(t, "base64", h.TransferEncoding())
}

func TestHead_Boundary(t *testing.T) {
	t.Parallel()

	h := header.New()
	h.Ingest("Content-Type: multipart/mixed; boundary=\"gc0p4Jq0M2Yt08j\"\n")
	b, ok := h.Boundary()
	assert.True(t, ok)
	assert.Equal(t, "gc0p4Jq0M2Yt08j", b)

	none := header.New()
	none.Ingest("Content-Type: multipart/mixed\n")
	_, ok = none.Boundary()
	assert.False(t, ok)
}

func TestHead_BoundarySalvage(t *testing.T) {
	t.Parallel()

	// malformed enough that mime.ParseMediaType gives up
	h := header.New()
	h.Ingest("Content-Type: multipart/mixed;; boundary=frontier\n")
	b, ok := h.Boundary()
	assert.True(t, ok)
	assert.Equal(t, "frontier", b)
}

func TestHead_Filename(t *testing.T) {
	t.Parallel()

	h := header.New()
	h.Ingest("Content-Disposition: attachment; filename=\"cat.gif\"\n")
	assert.Equal(t, "cat.gif", h.Filename())

	n := header.New()
	n.Ingest("Content-Type: image/gif; name=dog.gif\n")
	assert.Equal(t, "dog.gif", n.Filename())

	assert.Empty(t, header.New().Filename())
}

func TestHead_WriteTo(t *testing.T) {
	t.Parallel()

	h := header.New()
	h.Ingest("Subject: round trip\r\n")
	h.Ingest("To: someone\r\n")
	h.Break = "\r\n"

	buf := &bytes.Buffer{}
	n, err := h.WriteTo(buf)
	assert.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, "Subject: round trip\r\nTo: someone\r\n\r\n", buf.String())
}
