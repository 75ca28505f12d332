package entity

import (
	"bytes"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/mimetree/go-mimetree/internal/scanner"
)

// StopKind says why a read stopped, or how a recorded stop relates to a
// particular reader's innermost boundary.
type StopKind int

const (
	// StopNone means no stop has been recorded yet.
	StopNone StopKind = iota

	// StopDelim means a boundary delimiter line ("--boundary") was seen.
	StopDelim

	// StopClose means a boundary close line ("--boundary--") was seen.
	StopClose

	// StopDone means an ad hoc terminator line was seen.
	StopDone

	// StopEOF means the source ran out.
	StopEOF

	// StopExternal is produced only by Classify: the recorded boundary
	// belongs to an enclosing multipart, not to the classifying reader, so
	// the nested parse must end early and defer to its parent.
	StopExternal
)

func (k StopKind) String() string {
	switch k {
	case StopNone:
		return "NONE"
	case StopDelim:
		return "DELIM"
	case StopClose:
		return "CLOSE"
	case StopDone:
		return "DONE"
	case StopEOF:
		return "EOF"
	case StopExternal:
		return "EXT"
	}
	return "UNKNOWN"
}

// Stop records one stop condition: its kind, the boundary that triggered it
// (for DELIM/CLOSE), the terminator content (for DONE), and the raw line
// terminator of the stopping line.
type Stop struct {
	Kind     StopKind
	Boundary string
	Line     string
	Ending   string
}

// stopCell is the single shared "last stop reason" slot. Every reader
// spawned from a common ancestor writes and reads the same cell, so a
// boundary detected deep in a recursive parse is visible to every enclosing
// level without explicit propagation.
type stopCell struct {
	last Stop
}

// Reader consumes a Source line by line and stops exactly when one of its
// active stop conditions is met, writing all other lines to a sink. The
// boundary table is a stable snapshot at Spawn time; additions to a parent
// after spawning do not affect already-spawned children.
type Reader struct {
	boundaries  []string // innermost first
	terminators map[string]struct{}
	cell        *stopCell
}

// NewReader returns a Reader with no boundaries, no terminators, and a
// fresh stop cell.
func NewReader() *Reader {
	return &Reader{
		terminators: map[string]struct{}{},
		cell:        &stopCell{},
	}
}

// Spawn returns a new Reader with deep copies of the boundary and
// terminator tables that shares this reader's stop cell.
func (r *Reader) Spawn() *Reader {
	boundaries := make([]string, len(r.boundaries))
	copy(boundaries, r.boundaries)

	terminators := make(map[string]struct{}, len(r.terminators))
	for t := range r.terminators {
		terminators[t] = struct{}{}
	}

	return &Reader{
		boundaries:  boundaries,
		terminators: terminators,
		cell:        r.cell,
	}
}

// AddBoundary makes b this reader's new innermost encapsulation boundary.
func (r *Reader) AddBoundary(b string) {
	r.boundaries = append([]string{b}, r.boundaries...)
}

// AddTerminator registers a line as an immediate stop condition,
// independent of the boundary stack. The line is normalized across the
// accepted line-ending variants before registration.
func (r *Reader) AddTerminator(line string) {
	content, _ := scanner.SplitLine([]byte(line))
	r.terminators[string(content)] = struct{}{}
}

// HasStops reports whether any boundary or terminator is active. When
// false, a body read can stream to end of input without line inspection.
func (r *Reader) HasStops() bool {
	return len(r.boundaries) > 0 || len(r.terminators) > 0
}

// Last returns the most recently recorded stop, shared across all readers
// spawned from a common ancestor.
func (r *Reader) Last() Stop {
	return r.cell.last
}

// Classify interprets a stop relative to this reader's innermost boundary.
// A DELIM or CLOSE for any other boundary is classified StopExternal.
func (r *Reader) Classify(s Stop) StopKind {
	switch s.Kind {
	case StopDelim, StopClose:
		if len(r.boundaries) > 0 && s.Boundary == r.boundaries[0] {
			return s.Kind
		}
		return StopExternal
	default:
		return s.Kind
	}
}

// matchBoundary reports whether a line's content is a delimiter or close
// line for any active boundary. Trailing linear whitespace after the
// boundary is tolerated; it is malformed but common. The two-byte prefix
// check keeps the non-boundary path cheap on large payloads.
func (r *Reader) matchBoundary(content []byte) (StopKind, string) {
	if len(content) < 2 || content[0] != '-' || content[1] != '-' {
		return StopNone, ""
	}

	trimmed := strings.TrimRight(string(content), " \t")
	for _, b := range r.boundaries {
		switch trimmed {
		case "--" + b:
			return StopDelim, b
		case "--" + b + "--":
			return StopClose, b
		}
	}
	return StopNone, ""
}

// ReadChunk copies lines from src to w until a registered boundary or
// terminator line is recognized or src is exhausted, recording the stop in
// the shared cell. The line terminator immediately preceding a recognized
// boundary belongs to the boundary, not the content, and is not written;
// terminator-triggered stops strip nothing.
func (r *Reader) ReadChunk(src *Source, w io.Writer) error {
	var pending []byte
	for {
		line, ok := src.Next()
		if !ok {
			if err := src.Err(); err != nil {
				return errors.Wrap(err, "reading message line")
			}
			if _, err := w.Write(pending); err != nil {
				return errors.Wrap(err, "writing final line ending")
			}
			r.cell.last = Stop{Kind: StopEOF}
			return nil
		}

		content, ending := scanner.SplitLine(line)

		if kind, b := r.matchBoundary(content); kind != StopNone {
			r.cell.last = Stop{
				Kind:     kind,
				Boundary: b,
				Ending:   string(ending),
			}
			return nil
		}

		if _, isTerm := r.terminators[string(content)]; isTerm {
			if _, err := w.Write(pending); err != nil {
				return errors.Wrap(err, "writing line ending")
			}
			r.cell.last = Stop{
				Kind:   StopDone,
				Line:   string(content),
				Ending: string(ending),
			}
			return nil
		}

		if _, err := w.Write(pending); err != nil {
			return errors.Wrap(err, "writing line ending")
		}
		if _, err := w.Write(content); err != nil {
			return errors.Wrap(err, "writing line")
		}
		pending = append(pending[:0], ending...)
	}
}

// ReadLines is a convenience wrapper over ReadChunk that collects whole
// lines, terminators included. One leading empty line, a by-product of
// header/body separation, is discarded, as is a trailing line emptied by
// the pre-boundary terminator strip.
func (r *Reader) ReadLines(src *Source, lines *[]string) error {
	buf := &bytes.Buffer{}
	if err := r.ReadChunk(src, buf); err != nil {
		return err
	}

	first := true
	data := buf.Bytes()
	for len(data) > 0 {
		adv, tok, _ := scanner.ScanMessageLines(data, true)
		if tok == nil {
			break
		}
		data = data[adv:]

		content, _ := scanner.SplitLine(tok)
		if first && len(content) == 0 {
			first = false
			continue
		}
		first = false

		*lines = append(*lines, string(tok))
	}
	return nil
}
