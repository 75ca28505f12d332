// Package redo provides content-sniffing redoers: strategies the engine
// runs against finished singlepart bodies to re-extract content hidden in
// formats MIME headers do not declare.
package redo

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/mimetree/go-mimetree/entity"
	"github.com/mimetree/go-mimetree/header"
)

// TypeUU is the effective type given to the synthetic container an
// extracted uuencode body is replaced with.
const TypeUU = "multipart/x-uuencode"

var beginLine = regexp.MustCompile(`^begin\s+[0-7]{3,4}\s+(\S.*)$`)

// UU detects uuencoded files embedded in plain text bodies. When at least
// one complete begin/end block is found, the entity is replaced by a
// synthetic multipart whose children are the surrounding text (when any is
// non-blank) followed by one octet-stream part per embedded file.
type UU struct{}

// NewUU returns the uuencode redoer.
func NewUU() *UU {
	return &UU{}
}

// Name identifies this redoer in diagnostics.
func (*UU) Name() string {
	return "uuencode"
}

type uuFile struct {
	name string
	data []byte
}

// Try scans a text body for uuencode blocks. It passes (nil, nil) on
// non-text entities and on bodies without any block.
func (u *UU) Try(body io.Reader, ent *entity.Entity, _ *entity.Parser) (*entity.Entity, error) {
	if !strings.HasPrefix(ent.EffectiveType(), "text/") {
		return nil, nil
	}

	var (
		text   []string
		files  []uuFile
		cur    *uuFile
		inside bool
	)

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")

		if !inside {
			if m := beginLine.FindStringSubmatch(line); m != nil {
				inside = true
				cur = &uuFile{name: m[1]}
				continue
			}
			text = append(text, line)
			continue
		}

		if line == "end" {
			files = append(files, *cur)
			cur, inside = nil, false
			continue
		}
		cur.data = append(cur.data, decodeUULine(line)...)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scanning body for uuencode")
	}

	if len(files) == 0 {
		return nil, nil
	}
	if inside {
		return nil, errors.Errorf("unterminated uuencode block %q", cur.name)
	}

	return buildContainer(text, files), nil
}

// buildContainer assembles the synthetic replacement entity.
func buildContainer(text []string, files []uuFile) *entity.Entity {
	head := header.New()
	head.Set(header.ContentType,
		fmt.Sprintf("%s; boundary=%q", TypeUU, entity.GenerateBoundary()))

	container := &entity.Entity{
		Head:  head,
		Parts: []*entity.Entity{},
	}
	container.SetEffectiveType(TypeUU)

	if joined := strings.TrimSpace(strings.Join(text, "\n")); joined != "" {
		th := header.New()
		th.Set(header.ContentType, "text/plain")
		tb := entity.NewCoreBody()
		_, _ = io.WriteString(tb, strings.Join(text, "\n")+"\n")
		container.Parts = append(container.Parts, &entity.Entity{Head: th, Body: tb})
	}

	for _, f := range files {
		fh := header.New()
		fh.Set(header.ContentType, "application/octet-stream")
		fh.Set(header.ContentDisposition, fmt.Sprintf("attachment; filename=%q", f.name))
		fb := entity.NewCoreBody()
		_, _ = fb.Write(f.data)
		container.Parts = append(container.Parts, &entity.Entity{Head: fh, Body: fb})
	}

	return container
}

// decodeUULine decodes one uuencoded data line: the first character gives
// the decoded byte count, the rest carry six bits each, offset from space,
// with backquote standing in for zero.
func decodeUULine(line string) []byte {
	if line == "" {
		return nil
	}

	sixbits := func(b byte) uint32 { return uint32(b-' ') & 63 }

	n := int(sixbits(line[0]))
	if n == 0 {
		return nil
	}

	out := make([]byte, 0, n)
	data := line[1:]
	for i := 0; i+4 <= len(data) && len(out) < n; i += 4 {
		v := sixbits(data[i])<<18 | sixbits(data[i+1])<<12 |
			sixbits(data[i+2])<<6 | sixbits(data[i+3])
		out = append(out, byte(v>>16), byte(v>>8), byte(v))
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}
