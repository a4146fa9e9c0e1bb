// Package frontmatter locates and rewrites fields inside the leading
// "---" delimited header block of a Markdown document.
//
// Two views of the header are provided. The line editor (Locate, Value,
// SetValue) works directly on an Editor and never touches lines outside the
// header region it has bounded. The structured view (Header, Process) decodes
// the block with yaml.v3 and re-encodes it after a mutation.
package frontmatter

import "strings"

// Marker is the line that opens and closes a header block.
const Marker = "---"

// Editor is the line-level document access the line editor needs.
type Editor interface {
	// Line returns the text of line n without its trailing newline.
	Line(n int) string
	// SetLine replaces line n. text may contain "\n", in which case the
	// single line is replaced by several.
	SetLine(n int, text string)
	// LastLine returns the index of the last line.
	LastLine() int
}

// Lines is an in-memory Editor over a document split on "\n". A trailing
// "\r" is kept in storage but hidden from Line, so CRLF documents read the
// same as LF ones and are written back with their original endings.
type Lines struct {
	lines []string
	crlf  bool
}

// ParseLines splits data into lines. Joining them back with Bytes yields the
// original data unchanged. The line ending of the first line decides the
// ending given to lines inserted later.
func ParseLines(data []byte) *Lines {
	lines := strings.Split(string(data), "\n")
	return &Lines{lines: lines, crlf: len(lines) > 1 && strings.HasSuffix(lines[0], "\r")}
}

// NewLines returns an Editor over a copy of lines.
func NewLines(lines ...string) *Lines {
	if len(lines) == 0 {
		return &Lines{lines: []string{""}}
	}
	return &Lines{lines: append([]string(nil), lines...)}
}

// CRLF reports whether inserted lines end in "\r\n".
func (l *Lines) CRLF() bool {
	return l.crlf
}

// Line implements Editor. Out of range lines read as empty.
func (l *Lines) Line(n int) string {
	if n < 0 || n >= len(l.lines) {
		return ""
	}
	return strings.TrimSuffix(l.lines[n], "\r")
}

// SetLine implements Editor. Setting the line just past the end appends.
// A replaced line keeps its "\r"; lines added by a "\n" in text get the
// document's ending.
func (l *Lines) SetLine(n int, text string) {
	if n < 0 || n > len(l.lines) {
		return
	}
	repl := strings.Split(text, "\n")
	if l.crlf {
		for i := range repl[:len(repl)-1] {
			repl[i] += "\r"
		}
	}
	if n == len(l.lines) {
		if last := len(l.lines) - 1; l.crlf && !strings.HasSuffix(l.lines[last], "\r") {
			l.lines[last] += "\r"
		}
		l.lines = append(l.lines, repl...)
		return
	}
	if strings.HasSuffix(l.lines[n], "\r") {
		repl[len(repl)-1] += "\r"
	}
	out := make([]string, 0, len(l.lines)+len(repl)-1)
	out = append(out, l.lines[:n]...)
	out = append(out, repl...)
	out = append(out, l.lines[n+1:]...)
	l.lines = out
}

// LastLine implements Editor.
func (l *Lines) LastLine() int {
	return len(l.lines) - 1
}

// Len returns the number of lines.
func (l *Lines) Len() int {
	return len(l.lines)
}

// Strings returns a copy of the lines without their "\r".
func (l *Lines) Strings() []string {
	out := make([]string, len(l.lines))
	for i := range l.lines {
		out[i] = l.Line(i)
	}
	return out
}

// Bytes joins the lines back into document bytes.
func (l *Lines) Bytes() []byte {
	return []byte(strings.Join(l.lines, "\n"))
}

func (l *Lines) raw(from int) string {
	if from >= len(l.lines) {
		return ""
	}
	return strings.Join(l.lines[from:], "\n")
}
