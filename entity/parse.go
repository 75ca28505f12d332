package entity

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/mimetree/go-mimetree/decode"
	"github.com/mimetree/go-mimetree/header"
	"github.com/mimetree/go-mimetree/internal/scanner"
)

// Effective types the engine assigns when demoting content it could not
// parse as declared.
const (
	// TypeUnparseableMultipart marks a multipart whose boundary was
	// missing or invalid and whose body was kept opaque instead.
	TypeUnparseableMultipart = "application/x-unparseable-multipart"

	// TypeOctetStream marks a body whose declared transfer encoding was
	// unsupported and was decoded with the binary fallback.
	TypeOctetStream = "application/octet-stream"

	// TypeMessage is the nested-message type every parser recognizes.
	TypeMessage = "message/rfc822"
)

// NestedPolicy selects how a parsed nested message relates to its
// message/rfc822 container entity.
type NestedPolicy int

const (
	// NestedIgnore leaves nested messages as opaque singlepart bodies.
	NestedIgnore NestedPolicy = iota

	// NestedNest makes the inner message the sole child of the container.
	// This is the default.
	NestedNest

	// NestedReplace atomically replaces the container entity's entire
	// content with the inner message, discarding the container's header.
	NestedReplace
)

// Redoer is a pluggable content sniffer run against finished singlepart
// bodies. Returning a non-nil replacement entity ends the chain and the
// replacement's content is swapped into the parsed entity in place.
// Returning nil, nil passes.
type Redoer interface {
	Name() string
	Try(body io.Reader, ent *Entity, p *Parser) (*Entity, error)
}

type options struct {
	ignoreErrors   bool
	nested         NestedPolicy
	reextract      bool
	innerFiles     bool
	scratchToCore  bool
	scratchRecycle bool
	maxDepth       int
	parseable      map[string]bool
	logger         zerolog.Logger
}

// Option configures a Parser at construction time.
type Option func(p *Parser)

// FailFast makes every classified parse error fatal instead of logged and
// recovered. The default is tolerant: errors are logged and parsing
// continues with a defined fallback.
func FailFast() Option {
	return func(p *Parser) { p.opt.ignoreErrors = false }
}

// KeepOnError selects the default tolerant policy explicitly: classified
// errors are logged and parsing continues with each kind's fallback.
func KeepOnError() Option {
	return func(p *Parser) { p.opt.ignoreErrors = true }
}

// ExtractNested sets the nested-message policy. The default is NestedNest.
func ExtractNested(policy NestedPolicy) Option {
	return func(p *Parser) { p.opt.nested = policy }
}

// WithoutReextract disables the decode-then-reparse pass for multipart and
// message bodies that arrive transfer-encoded. Such bodies stay opaque.
func WithoutReextract() Option {
	return func(p *Parser) { p.opt.reextract = false }
}

// UseInnerFiles makes singlepart extraction use zero-copy windows over the
// source instead of a scratch buffer, whenever the source supports random
// access.
func UseInnerFiles() Option {
	return func(p *Parser) { p.opt.innerFiles = true }
}

// ScratchToCore keeps scratch buffers for encoded bytes in memory rather
// than in temporary files.
func ScratchToCore() Option {
	return func(p *Parser) { p.opt.scratchToCore = true }
}

// ScratchRecycling reuses one scratch buffer across sequential singlepart
// extractions, rewinding and truncating it between uses, instead of
// creating a fresh one each time.
func ScratchRecycling() Option {
	return func(p *Parser) { p.opt.scratchRecycle = true }
}

// WithScratchFs sets the filesystem used for disk-backed scratch buffers.
func WithScratchFs(fs afero.Fs) Option {
	return func(p *Parser) { p.scratchFs = fs }
}

// WithMaxDepth caps how deep multipart recursion may go; parts below the
// cap stay opaque. Negative means unlimited, which is the default: the
// engine's stack use is bounded by the literal nesting of the input, with
// encoded layers handled through the task queue.
func WithMaxDepth(n int) Option {
	return func(p *Parser) { p.opt.maxDepth = n }
}

// WithFiler sets the Body sink factory. The default keeps all bodies in
// memory.
func WithFiler(f Filer) Option {
	return func(p *Parser) { p.filer = f }
}

// OutputToCore selects the default in-memory body sinks explicitly.
func OutputToCore() Option {
	return func(p *Parser) { p.filer = coreFiler{} }
}

// WithRedoers appends content sniffers to the redoer chain, tried in order
// against every finished singlepart body.
func WithRedoers(rs ...Redoer) Option {
	return func(p *Parser) { p.redoers = append(p.redoers, rs...) }
}

// WithParseableTypes registers additional full MIME types to treat as
// parseable nested messages, beyond message/rfc822.
func WithParseableTypes(types ...string) Option {
	return func(p *Parser) {
		for _, t := range types {
			p.opt.parseable[strings.ToLower(t)] = true
		}
	}
}

// WithLogger sets the logger diagnostics are echoed to as they are
// accumulated. The default discards them; the Results object keeps them
// either way.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Parser) { p.opt.logger = logger }
}

// Parser turns byte streams into entity trees. A Parser is single-use at a
// time (parsing is strictly sequential) but may be reused for consecutive
// messages; scratch resources are recycled across parses when enabled and
// released by Close.
type Parser struct {
	opt       options
	filer     Filer
	redoers   []Redoer
	scratchFs afero.Fs
	scr       *scratch
	results   *Results
	tasks     queue
}

// NewParser constructs a Parser. With no options the parser is tolerant,
// nests extracted messages, re-extracts encoded containers, and keeps all
// bodies and scratch space in memory-backed sinks from the default filer.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		opt: options{
			ignoreErrors: true,
			nested:       NestedNest,
			reextract:    true,
			maxDepth:     -1,
			parseable:    map[string]bool{TypeMessage: true},
			logger:       zerolog.Nop(),
		},
		filer:     coreFiler{},
		scratchFs: afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Results returns the diagnostics of the most recent Parse.
func (p *Parser) Results() *Results {
	return p.results
}

// Close releases any scratch resources held for recycling. Releasing
// already-removed scratch space is not an error.
func (p *Parser) Close() error {
	if p.scr == nil {
		return nil
	}
	scr := p.scr
	p.scr = nil
	return scr.release()
}

// Parse consumes the reader and returns the parsed entity tree. In
// tolerant mode (the default) the error is nil and the tree is best-effort;
// consult Results for what was imperfect. In fail-fast mode the first
// classified error is returned along with whatever partial tree exists.
//
// Parse drives an explicit FIFO task queue: one initial task parses the
// top-level part, and deferred work (redoer sniffing, re-extraction of
// decoded containers) runs strictly in enqueue order afterward, so nested
// encoded payloads are processed breadth-first.
func (p *Parser) Parse(r io.Reader) (*Entity, error) {
	if r == nil {
		return nil, errors.Wrap(ErrInternal, "Parse requires a reader")
	}

	p.results = newResults(p.opt.logger)
	p.tasks = queue{}

	root := &Entity{}
	p.tasks.push(&parseTask{
		ent: root,
		src: NewSource(r),
		rdr: NewReader(),
	})

	for {
		t, ok := p.tasks.pop()
		if !ok {
			break
		}
		if err := t.run(p); err != nil {
			return root, err
		}
	}

	if !p.opt.scratchRecycle && p.scr != nil {
		err := p.Close()
		return root, err
	}
	return root, nil
}

// fail is the single error primitive: always log the classified error;
// in tolerant mode signal the caller to use its fallback by returning nil;
// in fail-fast mode return the fatal error.
func (p *Parser) fail(kind ErrorKind, cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		p.results.Errorf("%s: %s: %v", kind, msg, cause)
	} else {
		p.results.Errorf("%s: %s", kind, msg)
	}
	if p.opt.ignoreErrors {
		return nil
	}
	return &ParseError{Kind: kind, Msg: msg, Err: cause}
}

// classKind is the body classification.
type classKind int

const (
	classSingle classKind = iota
	classMultipart
	classMessage
)

// classification carries the immediate processing kind plus, for
// transfer-encoded containers, the kind to rerun after decoding.
type classification struct {
	kind      classKind
	deferKind classKind
	deferred  bool
}

func (p *Parser) classify(head *header.Head, depth int) classification {
	if p.opt.maxDepth >= 0 && depth >= p.opt.maxDepth {
		return classification{kind: classSingle}
	}

	mt := head.MIMEType()
	want := classSingle
	switch {
	case strings.HasPrefix(mt, "multipart/"):
		want = classMultipart
	case p.opt.nested != NestedIgnore && p.opt.parseable[mt]:
		want = classMessage
	}
	if want == classSingle {
		return classification{kind: classSingle}
	}

	switch head.TransferEncoding() {
	case decode.None, decode.Bit7, decode.Bit8, decode.Binary:
		return classification{kind: want}
	}

	// The container arrived transfer-encoded; its body must be decoded as
	// an opaque singlepart first and reparsed from the decoded bytes.
	if p.opt.reextract {
		return classification{kind: classSingle, deferKind: want, deferred: true}
	}
	return classification{kind: classSingle}
}

// parsePart parses one part: header, classification, then the matching
// body processing. This is the recursion point for literal nesting.
func (p *Parser) parsePart(ent *Entity, src *Source, rdr *Reader, depth int, defaultType string) error {
	if ent == nil || src == nil || rdr == nil {
		return errors.Wrap(ErrInternal, "parsePart requires an entity, source, and reader")
	}

	head, err := p.parseHead(src, rdr, defaultType)
	if err != nil {
		return err
	}
	ent.Head = head
	if depth == 0 {
		p.results.setTopHead(head)
	}

	if head.Junk() > 0 {
		if err := p.fail(BadHead, nil, "%d header line(s) could not be parsed", head.Junk()); err != nil {
			return err
		}
	}

	if head.Severed {
		if err := p.fail(SeveredHead, nil, "header truncated by boundary %q", rdr.Last().Boundary); err != nil {
			return err
		}
		ent.Body = NewCoreBody()
		return nil
	}

	cl := p.classify(head, depth)
	switch cl.kind {
	case classMultipart:
		return p.parseMultipart(ent, src, rdr, depth)
	case classMessage:
		return p.parseMessage(ent, src, rdr, depth)
	case classSingle:
		return p.parseSingle(ent, src, rdr, cl)
	}
	return errors.Wrap(ErrInternal, "unreachable classification state")
}

// parseHead reads header lines up to the terminating blank line, severing
// cleanly if a recognized boundary interrupts. A leading mailbox "From "
// or POP3 "+OK" line is discarded.
func (p *Parser) parseHead(src *Source, rdr *Reader, defaultType string) (*header.Head, error) {
	hr := rdr.Spawn()
	hr.AddTerminator("")

	var lines []string
	if err := hr.ReadLines(src, &lines); err != nil {
		return nil, err
	}

	head := header.New()
	if defaultType != "" {
		head.SetDefaultType(defaultType)
	}

	for i, line := range lines {
		content, _ := scanner.SplitLine([]byte(line))
		c := string(content)
		if i == 0 && (strings.HasPrefix(c, "From ") || strings.HasPrefix(c, "+OK")) {
			p.results.Debugf("discarding mailbox delivery line %q", c)
			continue
		}
		head.Ingest(line)
	}

	stop := hr.Last()
	switch hr.Classify(stop) {
	case StopDone:
		head.Break = stop.Ending
	case StopEOF:
		// header ran to end of input; the part simply has no body
	default:
		head.Severed = true
	}
	return head, nil
}

// parseMultipart consumes the preamble, loops over child parts delimited
// by this entity's boundary, and consumes the epilogue with the parent's
// reader once the close line is seen.
func (p *Parser) parseMultipart(ent *Entity, src *Source, rdr *Reader, depth int) error {
	head := ent.Head

	boundary, ok := head.Boundary()
	if !ok || boundary == "" || strings.ContainsAny(boundary, "\r\n") {
		if err := p.fail(BadBound, nil, "missing or invalid boundary in %q", head.Get(header.ContentType)); err != nil {
			return err
		}
		ent.SetEffectiveType(TypeUnparseableMultipart)
		return p.parseSingle(ent, src, rdr, classification{kind: classSingle})
	}

	mrdr := rdr.Spawn()
	mrdr.AddBoundary(boundary)

	ent.Parts = []*Entity{}
	if err := mrdr.ReadLines(src, &ent.Preamble); err != nil {
		return err
	}

	switch mrdr.Classify(mrdr.Last()) {
	case StopDelim:
		// parts follow
	case StopClose:
		return rdr.ReadLines(src, &ent.Epilogue)
	default:
		return p.fail(SeveredPreamble, nil,
			"multipart %q ended during preamble (%s)", boundary, mrdr.Last().Kind)
	}

	childDefault := ""
	if head.MIMEType() == "multipart/digest" {
		childDefault = TypeMessage
	}

	for {
		child := &Entity{}
		if err := p.parsePart(child, src, mrdr, depth+1, childDefault); err != nil {
			return err
		}
		ent.Parts = append(ent.Parts, child)

		switch mrdr.Classify(mrdr.Last()) {
		case StopDelim:
			continue
		case StopClose:
			return rdr.ReadLines(src, &ent.Epilogue)
		default:
			return p.fail(SeveredParts, nil,
				"multipart %q ended unexpectedly after %d part(s) (%s)",
				boundary, len(ent.Parts), mrdr.Last().Kind)
		}
	}
}

// parseMessage parses a nested message as an ordinary part and applies the
// nesting policy.
func (p *Parser) parseMessage(ent *Entity, src *Source, rdr *Reader, depth int) error {
	inner := &Entity{}
	if err := p.parsePart(inner, src, rdr, depth+1, ""); err != nil {
		return err
	}
	p.adoptMessage(ent, inner)
	return nil
}

func (p *Parser) adoptMessage(ent, inner *Entity) {
	if p.opt.nested == NestedReplace {
		ent.ReplaceWith(inner)
		return
	}
	ent.Parts = []*Entity{inner}
}

// parseSingle materializes an opaque body: pick an encoded byte source
// (fast path, zero-copy window, or scratch buffer), decode it into a sink
// from the filer, and enqueue any deferred work.
func (p *Parser) parseSingle(ent *Entity, src *Source, rdr *Reader, cl classification) error {
	head := ent.Head

	enc := head.TransferEncoding()
	tc, known := decode.Lookup(enc)
	if !known {
		p.results.Warnf("unsupported transfer encoding %q, decoding as binary", enc)
		ent.SetEffectiveType(TypeOctetStream)
	}

	body, err := p.filer.Output(head)
	if err != nil {
		return errors.Wrap(err, "creating body sink")
	}
	if path := body.Path(); path != "" {
		p.filer.Purgeable(path)
	}

	var encSrc io.Reader
	switch {
	case !rdr.HasStops():
		// the entire remaining source belongs to this part
		encSrc = src.Rest()
		rdr.cell.last = Stop{Kind: StopEOF}
	case p.opt.innerFiles && src.ReaderAt() != nil:
		start := src.Pos()
		cw := &countWriter{w: io.Discard}
		if err := rdr.ReadChunk(src, cw); err != nil {
			return err
		}
		encSrc = io.NewSectionReader(src.ReaderAt(), start, cw.n)
	default:
		scr, err := p.scratchFor()
		if err != nil {
			return err
		}
		if err := rdr.ReadChunk(src, scr); err != nil {
			return err
		}
		encSrc, err = scr.open()
		if err != nil {
			return err
		}
	}

	if err := tc.Decode(body, encSrc); err != nil {
		if ferr := p.fail(DecoderFailed, err, "decoding %q body", enc); ferr != nil {
			return ferr
		}
	}
	ent.Body = body
	ent.decoded = true

	if rdr.Classify(rdr.Last()) == StopExternal {
		// logged only; the body is kept as read
		p.results.Warnf("%s: part cut by enclosing boundary %q",
			UnexpectedBound, rdr.Last().Boundary)
	}

	if cl.deferred {
		p.tasks.push(&reparseTask{ent: ent, kind: cl.deferKind})
	} else if len(p.redoers) > 0 {
		p.tasks.push(&redoTask{ent: ent})
	}
	return nil
}

// scratchFor returns the scratch buffer for the next extraction, recycling
// the previous one when enabled.
func (p *Parser) scratchFor() (*scratch, error) {
	if p.scr != nil {
		if p.opt.scratchRecycle {
			if err := p.scr.reset(); err != nil {
				return nil, err
			}
			return p.scr, nil
		}
		if err := p.scr.release(); err != nil {
			return nil, err
		}
	}

	if p.opt.scratchToCore {
		p.scr = newScratch(nil, "")
	} else {
		p.scr = newScratch(p.scratchFs, os.TempDir())
	}
	return p.scr, nil
}

// runRedoers tries each registered redoer against the finished body; the
// first one to return a replacement wins.
func (p *Parser) runRedoers(ent *Entity) error {
	if ent.Body == nil {
		return nil
	}

	for _, rd := range p.redoers {
		rc, err := ent.Body.Open()
		if err != nil {
			return errors.Wrap(err, "opening body for redoer")
		}
		res, tryErr := rd.Try(rc, ent, p)
		_ = rc.Close()

		if tryErr != nil {
			if ferr := p.fail(RedoerFailed, tryErr, "redoer %q", rd.Name()); ferr != nil {
				return ferr
			}
			continue
		}
		if res != nil {
			p.results.Debugf("redoer %q replaced entity content", rd.Name())
			ent.ReplaceWith(res)
			return nil
		}
	}
	return nil
}

// reparse re-opens a decoded container body and reruns multipart or
// message processing against it, replacing the entity's content in place.
func (p *Parser) reparse(ent *Entity, kind classKind) error {
	if ent.Body == nil {
		return errors.Wrap(ErrInternal, "reparse task without a body")
	}

	rc, err := ent.Body.Open()
	if err != nil {
		return errors.Wrap(err, "reopening decoded body")
	}
	defer func() { _ = rc.Close() }()

	src := NewSource(rc)
	rdr := NewReader()
	ent.Body = nil
	ent.decoded = false

	// an unknown-encoding demotion no longer applies once the decoded
	// bytes parse as structure; reprocessing restamps if it fails again
	ent.effType = ""

	switch kind {
	case classMultipart:
		return p.parseMultipart(ent, src, rdr, 0)
	case classMessage:
		inner := &Entity{}
		if err := p.parsePart(inner, src, rdr, 1, ""); err != nil {
			return err
		}
		p.adoptMessage(ent, inner)
		return nil
	}
	return errors.Wrap(ErrInternal, "unreachable reparse classification")
}
