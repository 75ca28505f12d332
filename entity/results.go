package entity

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mimetree/go-mimetree/header"
)

// Results accumulates the diagnostics of one top-level parse: every logged
// entry in order, the warning and error subsets, and the first successfully
// parsed top-level header. The header is kept even if parsing fails later,
// so a failed parse still yields post-mortem context.
type Results struct {
	logger   zerolog.Logger
	messages []string
	warnings []string
	errs     []string
	topHead  *header.Head
}

func newResults(logger zerolog.Logger) *Results {
	return &Results{logger: logger}
}

// Debugf records a debug-level entry.
func (r *Results) Debugf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.messages = append(r.messages, "debug: "+msg)
	r.logger.Debug().Msg(msg)
}

// Warnf records a warning.
func (r *Results) Warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.messages = append(r.messages, "warning: "+msg)
	r.warnings = append(r.warnings, msg)
	r.logger.Warn().Msg(msg)
}

// Errorf records an error-level entry.
func (r *Results) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.messages = append(r.messages, "error: "+msg)
	r.errs = append(r.errs, msg)
	r.logger.Error().Msg(msg)
}

// Messages returns every logged entry in order, level-prefixed.
func (r *Results) Messages() []string {
	return r.messages
}

// Warnings returns the warning entries in order.
func (r *Results) Warnings() []string {
	return r.warnings
}

// Errors returns the error entries in order.
func (r *Results) Errors() []string {
	return r.errs
}

// TopHead returns the first successfully parsed top-level header, or nil
// when parsing failed before one was produced.
func (r *Results) TopHead() *header.Head {
	return r.topHead
}

func (r *Results) setTopHead(h *header.Head) {
	if r.topHead == nil {
		r.topHead = h
	}
}
