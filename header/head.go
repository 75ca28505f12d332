// Package header implements the narrow header surface the parsing engine
// consumes: raw line ingestion and a handful of accessors for the MIME
// type, the transfer encoding, the multipart boundary, and a suggested
// filename. Structured field grammar beyond mime.ParseMediaType is
// deliberately out of scope.
package header

import (
	"io"
	"mime"
	"strings"

	"github.com/mimetree/go-mimetree/internal/scanner"
)

// Standard field names the engine and filer care about.
const (
	ContentType             = "Content-Type"
	ContentTransferEncoding = "Content-Transfer-Encoding"
	ContentDisposition      = "Content-Disposition"
)

// DefaultType is the MIME type assumed when a header carries no usable
// Content-Type field.
const DefaultType = "text/plain"

// Field is a single parsed header field. Value has folding whitespace
// collapsed; Name keeps its original spelling.
type Field struct {
	Name  string
	Value string
}

// Head holds one entity's header. It is built by feeding raw lines (with
// their original line terminators attached) to Ingest, which folds
// continuation lines and splits fields tolerantly. Lines that do not parse
// as fields are kept for round-tripping but counted as junk.
type Head struct {
	fields []Field
	lines  []string

	// Break is the line terminator of the blank line that ended this
	// header, or empty if the header was severed or hit end of input.
	Break string

	// Severed is set when the header was cut short by an encapsulation
	// boundary before its terminating blank line.
	Severed bool

	defaultType string
	junk        int
}

// New returns an empty Head.
func New() *Head {
	return &Head{}
}

// Ingest adds one raw header line, terminator included. Continuation lines
// (starting with space or tab) are folded into the preceding field. Returns
// false for a line that could not be attached to any field.
func (h *Head) Ingest(raw string) bool {
	h.lines = append(h.lines, raw)

	content, _ := scanner.SplitLine([]byte(raw))
	line := string(content)

	if line == "" {
		return true
	}

	if line[0] == ' ' || line[0] == '\t' {
		if len(h.fields) == 0 {
			h.junk++
			return false
		}
		f := &h.fields[len(h.fields)-1]
		f.Value += " " + strings.TrimSpace(line)
		return true
	}

	name, value, found := strings.Cut(line, ":")
	if !found || strings.ContainsAny(name, " \t") {
		h.junk++
		return false
	}

	h.fields = append(h.fields, Field{
		Name:  name,
		Value: strings.TrimSpace(value),
	})
	return true
}

// Set adds a field without going through raw line ingestion. Used when
// synthesizing entities (uuencode extraction, composed messages).
func (h *Head) Set(name, value string) {
	for i := range h.fields {
		if strings.EqualFold(h.fields[i].Name, name) {
			h.fields[i].Value = value
			return
		}
	}
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Get returns the value of the first field with the given name, or the
// empty string. Name matching is case-insensitive.
func (h *Head) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Fields returns the parsed fields in ingestion order.
func (h *Head) Fields() []Field {
	return h.fields
}

// Lines returns the raw ingested lines, terminators included.
func (h *Head) Lines() []string {
	return h.lines
}

// Junk reports how many ingested lines failed to parse as header fields.
func (h *Head) Junk() int {
	return h.junk
}

// SetDefaultType overrides the type assumed when no Content-Type field is
// present. The engine uses this to default multipart/digest children to
// message/rfc822.
func (h *Head) SetDefaultType(t string) {
	h.defaultType = t
}

// MIMEType returns the lowercased type/subtype declared by the
// Content-Type field, or the default type when the field is missing or
// unparseable.
func (h *Head) MIMEType() string {
	fallback := h.defaultType
	if fallback == "" {
		fallback = DefaultType
	}

	ct := h.Get(ContentType)
	if ct == "" {
		return fallback
	}

	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		// keep the type even when the parameter section is malformed
		mt = strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	}
	if !strings.Contains(mt, "/") {
		return fallback
	}
	return mt
}

// TransferEncoding returns the lowercased declared transfer encoding, or
// "7bit" when none is declared.
func (h *Head) TransferEncoding() string {
	cte := strings.ToLower(strings.TrimSpace(h.Get(ContentTransferEncoding)))
	if cte == "" {
		return "7bit"
	}
	return cte
}

// Boundary returns the multipart boundary parameter of the Content-Type
// field. The second value is false when no boundary is declared.
func (h *Head) Boundary() (string, bool) {
	ct := h.Get(ContentType)
	if ct == "" {
		return "", false
	}
	_, params, err := mime.ParseMediaType(ct)
	if err != nil {
		// salvage a boundary from an otherwise bad Content-Type
		params = salvageParams(ct)
	}
	b, ok := params["boundary"]
	return b, ok
}

// Filename returns a name for this entity's content, preferring the
// Content-Disposition filename parameter, then the Content-Type name
// parameter. Empty when neither is present.
func (h *Head) Filename() string {
	if cd := h.Get(ContentDisposition); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if fn := params["filename"]; fn != "" {
				return fn
			}
		}
	}
	if ct := h.Get(ContentType); ct != "" {
		if _, params, err := mime.ParseMediaType(ct); err == nil {
			if n := params["name"]; n != "" {
				return n
			}
		}
	}
	return ""
}

// WriteTo writes the raw header lines followed by the terminating blank
// line, reproducing the original bytes.
func (h *Head) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, line := range h.lines {
		n, err := io.WriteString(w, line)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	n, err := io.WriteString(w, h.Break)
	total += int64(n)
	return total, err
}

// salvageParams pulls parameters out of a Content-Type value that
// mime.ParseMediaType rejected. Real mail declares boundaries on headers
// that are malformed in unrelated ways, and losing the boundary means
// losing the whole part structure.
func salvageParams(ct string) map[string]string {
	params := map[string]string{}
	for _, piece := range strings.Split(ct, ";")[1:] {
		name, value, found := strings.Cut(piece, "=")
		if !found {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"`)
		if name != "" && value != "" {
			params[name] = value
		}
	}
	return params
}
