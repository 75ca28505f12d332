// Package entity implements the streaming MIME parsing engine: a
// boundary-aware line reader, a recursive multipart/message dispatch state
// machine, and a deferred task queue that re-parses encoded containers
// breadth-first. Malformed input produces a best-effort entity tree plus
// diagnostics rather than a failure, unless fail-fast mode is selected.
package entity

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mimetree/go-mimetree/decode"
	"github.com/mimetree/go-mimetree/header"
)

// Entity is one parsed node: a header plus either an opaque body or an
// ordered list of child entities, never both. An Entity is addressed by
// pointer so that a queued task can swap its entire content in place
// without invalidating the parent's reference to it.
type Entity struct {
	// Head is this entity's header.
	Head *header.Head

	// Body is the opaque content of a leaf entity, nil on a branch.
	Body Body

	// Parts are the child entities of a branch, nil on a leaf.
	Parts []*Entity

	// Preamble and Epilogue hold the verbatim lines before the first
	// boundary and after the close boundary of a multipart body.
	Preamble []string
	Epilogue []string

	// effType, when set, overrides the header-declared MIME type. The
	// engine assigns it when demoting unparseable multiparts or falling
	// back from an unsupported transfer encoding.
	effType string

	// decoded is true when Body holds transfer-decoded bytes, so that
	// WriteTo knows to re-encode.
	decoded bool
}

// IsMultipart reports whether this entity is a branch with child parts.
func (e *Entity) IsMultipart() bool {
	return e.Parts != nil
}

// EffectiveType returns the MIME type the parse settled on: the assigned
// override when one exists, the header-declared type otherwise.
func (e *Entity) EffectiveType() string {
	if e.effType != "" {
		return e.effType
	}
	if e.Head == nil {
		return header.DefaultType
	}
	return e.Head.MIMEType()
}

// SetEffectiveType overrides the header-declared MIME type.
func (e *Entity) SetEffectiveType(t string) {
	e.effType = t
}

// ReplaceWith atomically swaps this entity's entire content for another's.
// The identity of e as seen by an already-linked parent is unchanged;
// ownership of the old content is dropped.
func (e *Entity) ReplaceWith(o *Entity) {
	*e = *o
}

// Walk visits e and all entities below it depth-first, passing each
// entity's nesting depth relative to e. A non-nil error from the visitor
// stops the walk and is returned.
func (e *Entity) Walk(visit func(ent *Entity, depth int) error) error {
	return e.walk(visit, 0)
}

func (e *Entity) walk(visit func(ent *Entity, depth int) error, depth int) error {
	if err := visit(e, depth); err != nil {
		return err
	}
	for _, part := range e.Parts {
		if err := part.walk(visit, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// WriteTo re-serializes the entity. Decoded leaf bodies are re-encoded
// using the declared transfer encoding. The output reproduces the parsed
// input modulo the pre-boundary line-ending normalization. Bodies are
// consumed, so this may only be called once per parse.
func (e *Entity) WriteTo(w io.Writer) (int64, error) {
	var total int64

	if e.Head != nil {
		n, err := e.Head.WriteTo(w)
		total += n
		if err != nil {
			return total, err
		}
	}

	if !e.IsMultipart() {
		n, err := e.writeBody(w)
		total += n
		return total, err
	}

	n, err := e.writeParts(w)
	total += n
	return total, err
}

func (e *Entity) writeBody(w io.Writer) (int64, error) {
	if e.Body == nil {
		return 0, nil
	}

	rc, err := e.Body.Open()
	if err != nil {
		return 0, errors.Wrap(err, "opening body for writing")
	}
	defer func() { _ = rc.Close() }()

	cw := &countWriter{w: w}
	if e.decoded && e.effType == "" {
		tc, _ := decode.Lookup(e.Head.TransferEncoding())
		err = tc.Encode(cw, rc)
	} else {
		_, err = io.Copy(cw, rc)
	}
	return cw.n, err
}

func (e *Entity) writeParts(w io.Writer) (int64, error) {
	cw := &countWriter{w: w}

	for _, line := range e.Preamble {
		if _, err := io.WriteString(cw, line); err != nil {
			return cw.n, err
		}
	}

	boundary, hasBoundary := "", false
	if e.Head != nil {
		boundary, hasBoundary = e.Head.Boundary()
	}
	if !hasBoundary {
		// a nested message container holds its sole child inline
		for _, part := range e.Parts {
			if _, err := part.WriteTo(cw); err != nil {
				return cw.n, err
			}
		}
		return cw.n, nil
	}

	br := "\n"
	if e.Head != nil && e.Head.Break != "" {
		br = e.Head.Break
	}

	// the preamble's final line ending was claimed by the first delimiter
	// during parsing and must be restored here, as with each part below
	if len(e.Preamble) > 0 {
		if _, err := io.WriteString(cw, br); err != nil {
			return cw.n, err
		}
	}

	for _, part := range e.Parts {
		if _, err := fmt.Fprintf(cw, "--%s%s", boundary, br); err != nil {
			return cw.n, err
		}
		if _, err := part.WriteTo(cw); err != nil {
			return cw.n, err
		}
		if _, err := io.WriteString(cw, br); err != nil {
			return cw.n, err
		}
	}

	if _, err := fmt.Fprintf(cw, "--%s--%s", boundary, br); err != nil {
		return cw.n, err
	}

	for _, line := range e.Epilogue {
		if _, err := io.WriteString(cw, line); err != nil {
			return cw.n, err
		}
	}

	return cw.n, nil
}

// countWriter counts bytes on the way through.
type countWriter struct {
	w io.Writer
	n int64
}

func (cw *countWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// GenerateBoundary returns a boundary string safe to use when composing a
// synthetic multipart entity.
func GenerateBoundary() string {
	return "----=_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
