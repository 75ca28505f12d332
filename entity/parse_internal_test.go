package entity

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimetree/go-mimetree/header"
)

func TestParseMultipart_BoundaryWithLineBreak(t *testing.T) {
	t.Parallel()

	// wire input cannot carry a line break into a boundary (folding joins
	// with a space), but a synthesized header can; the guard demotes it
	p := NewParser(ScratchToCore(), FailFast())
	p.results = newResults(p.opt.logger)

	h := header.New()
	h.Set(header.ContentType, "multipart/mixed; boundary=\"a\rb\"")
	ent := &Entity{Head: h}

	err := p.parseMultipart(ent, NewSource(strings.NewReader("body\n")), NewReader(), 0)
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, BadBound, perr.Kind)
}
