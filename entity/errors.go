package entity

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies the recoverable parse failures. Every kind has a
// defined fallback in tolerant mode and is fatal in fail-fast mode.
type ErrorKind int

const (
	// SeveredHead: a header was truncated by an encapsulation boundary
	// before its terminating blank line. Fallback: empty-body leaf.
	SeveredHead ErrorKind = iota

	// BadHead: header lines remained unparsed. Fallback: best-effort header.
	BadHead

	// BadBound: a multipart boundary was missing or invalid. Fallback:
	// demote the entity to an opaque singlepart.
	BadBound

	// SeveredPreamble: a multipart ended before its first delimiter.
	// Fallback: multipart entity with no parts.
	SeveredPreamble

	// SeveredParts: a multipart ended unexpectedly between parts.
	// Fallback: multipart entity with the parts collected so far.
	SeveredParts

	// UnexpectedBound: a singlepart body was cut by a boundary that was
	// not its own. Logged only; the body is kept as read.
	UnexpectedBound

	// DecoderFailed: transfer decoding failed. Fallback: keep the
	// partial or empty body already written.
	DecoderFailed

	// RedoerFailed: a redoer errored. Fallback: skip it, try the next.
	RedoerFailed
)

func (k ErrorKind) String() string {
	switch k {
	case SeveredHead:
		return "severed header"
	case BadHead:
		return "bad header"
	case BadBound:
		return "bad boundary"
	case SeveredPreamble:
		return "severed preamble"
	case SeveredParts:
		return "severed parts"
	case UnexpectedBound:
		return "unexpected boundary"
	case DecoderFailed:
		return "decoder failed"
	case RedoerFailed:
		return "redoer failed"
	}
	return "unknown"
}

// ParseError is the failure returned in fail-fast mode, carrying its
// taxonomy kind and any underlying cause.
type ParseError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ErrInternal marks defects in the engine itself: missing required call
// parameters and unreachable classification states. These are fatal
// regardless of tolerance and must never be swallowed.
var ErrInternal = errors.New("internal parser defect")
