package entity

// A task is one deferred unit of parsing work, carrying only the data it
// needs (an entity handle, a source, a reader snapshot) and never the
// engine itself. Tasks execute strictly in enqueue order, and executing a
// task may enqueue further tasks, which run after all currently queued
// ones: breadth-first, so a message with many layers of encoded nesting
// processes one full layer across the whole tree before descending
// further.
type task interface {
	run(p *Parser) error
}

// queue is the FIFO of deferred tasks for one top-level parse.
type queue struct {
	items []task
}

func (q *queue) push(t task) {
	q.items = append(q.items, t)
}

func (q *queue) pop() (task, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, true
}

// parseTask parses one part from a live source position into an entity
// slot. The initial top-level parse is a parseTask at depth zero.
type parseTask struct {
	ent         *Entity
	src         *Source
	rdr         *Reader
	depth       int
	defaultType string
}

func (t *parseTask) run(p *Parser) error {
	return p.parsePart(t.ent, t.src, t.rdr, t.depth, t.defaultType)
}

// redoTask runs the registered redoer chain against a finished body. The
// first redoer returning a replacement wins; its result replaces the
// entity's content in place.
type redoTask struct {
	ent *Entity
}

func (t *redoTask) run(p *Parser) error {
	return p.runRedoers(t.ent)
}

// reparseTask re-opens a decoded body and reruns multipart or message
// processing against it. This is the path that lets indefinitely nested
// encoded containers parse without the reader ever seeing encoded bytes.
type reparseTask struct {
	ent  *Entity
	kind classKind
}

func (t *reparseTask) run(p *Parser) error {
	return p.reparse(t.ent, t.kind)
}
