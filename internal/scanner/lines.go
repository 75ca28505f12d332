package scanner

import "bytes"

// Mail in the wild terminates lines five different ways: LF, CRLF, CR, the
// rare LFCR, and not at all (the final line of a truncated message). The
// standard bufio.ScanLines only understands the first two and silently eats
// the terminator, which loses the information the boundary reader needs to
// decide whether a line break belongs to content or to the boundary that
// follows it.

// ScanMessageLines is a bufio.SplitFunc that tokenizes input into lines with
// their original terminator still attached. Use SplitLine to separate the
// content from the terminator afterward.
func ScanMessageLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	ix := bytes.IndexAny(data, "\r\n")
	if ix < 0 {
		if atEOF && len(data) > 0 {
			// final unterminated line
			return len(data), data, nil
		}
		return 0, nil, nil
	}

	if ix == len(data)-1 && !atEOF {
		// the terminator might be a two-byte pair split across reads
		return 0, nil, nil
	}

	tlen := 1
	if ix+1 < len(data) {
		a, b := data[ix], data[ix+1]
		if (a == '\r' && b == '\n') || (a == '\n' && b == '\r') {
			tlen = 2
		}
	}

	return ix + tlen, data[:ix+tlen], nil
}

// SplitLine separates a token produced by ScanMessageLines into its content
// and its line terminator. The terminator is empty for a final unterminated
// line.
func SplitLine(line []byte) (content, ending []byte) {
	n := len(line)
	if n > 0 && (line[n-1] == '\n' || line[n-1] == '\r') {
		n--
		if n > 0 && (line[n-1] == '\n' || line[n-1] == '\r') && line[n-1] != line[n] {
			n--
		}
	}
	return line[:n], line[n:]
}
