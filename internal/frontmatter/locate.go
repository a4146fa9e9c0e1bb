package frontmatter

import (
	"fmt"
	"strings"

	"github.com/starford/timethings/internal/apperr"
)

// Bounds returns the index of the closing marker line. ok is false when
// line 0 is not a marker or no closing marker follows it.
func Bounds(ed Editor) (end int, ok bool) {
	if ed.Line(0) != Marker {
		return 0, false
	}
	last := ed.LastLine()
	for i := 1; i <= last; i++ {
		if ed.Line(i) == Marker {
			return i, true
		}
	}
	return 0, false
}

// Locate resolves a dotted key path to the line holding the field.
//
// Each segment is matched against the trimmed text before the first colon,
// scanning forward from the line after the previous match; the first match
// wins. A single-segment path must match an unindented line. Every later
// segment must be indented strictly deeper than the line matched for its
// parent. A match that breaks these rules fails the whole lookup rather than
// scanning on for another candidate.
func Locate(ed Editor, path string) (int, bool) {
	end, ok := Bounds(ed)
	if !ok {
		return 0, false
	}
	segments := splitPath(path)
	if segments == nil {
		return 0, false
	}

	cursor := 1
	parentIndent := -1
	for depth, seg := range segments {
		line, found := scan(ed, seg, cursor, end)
		if !found {
			return 0, false
		}
		indent := indentOf(ed.Line(line))
		switch {
		case depth == 0 && len(segments) == 1 && indent > 0:
			return 0, false
		case depth > 0 && indent <= parentIndent:
			return 0, false
		}
		if depth == len(segments)-1 {
			return line, true
		}
		parentIndent = indent
		cursor = line + 1
	}
	return 0, false
}

// Value returns the trimmed text after the first colon of the field at path.
func Value(ed Editor, path string) (string, bool) {
	line, ok := Locate(ed, path)
	if !ok {
		return "", false
	}
	_, value, _ := strings.Cut(ed.Line(line), ":")
	return strings.TrimSpace(value), true
}

// Scalar reports whether the field at path is absent or holds an inline
// value. A field with nothing after its colon whose next header line is
// indented deeper, or opens a block sequence, owns nested content.
func Scalar(ed Editor, path string) bool {
	line, ok := Locate(ed, path)
	if !ok {
		return true
	}
	text := ed.Line(line)
	if _, value, _ := strings.Cut(text, ":"); strings.TrimSpace(value) != "" {
		return true
	}
	end, _ := Bounds(ed)
	indent := indentOf(text)
	for i := line + 1; i < end; i++ {
		next := ed.Line(i)
		trimmed := strings.TrimSpace(next)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		switch {
		case indentOf(next) > indent:
			return false
		case indentOf(next) == indent && (trimmed == "-" || strings.HasPrefix(trimmed, "- ")):
			return false
		}
		return true
	}
	return true
}

// CheckField rejects keys and values that do not fit on one header line.
func CheckField(path, value string) error {
	if strings.ContainsAny(path, "\r\n") || strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("frontmatter: %w: key and value must be a single line", apperr.ErrInvalidValue)
	}
	return nil
}

// SetValue writes value to the field at path.
//
// A missing header block is created at the top of the document. An existing
// field keeps its key text and gets " value" after the first colon. A missing
// field is appended as "path: value" just before the closing marker; parents
// of nested paths are not created, so an unresolved "a.b" is written as the
// literal key "a.b". Keys or values failing CheckField are ignored.
func SetValue(ed Editor, path, value string) {
	if CheckField(path, value) != nil {
		return
	}
	if _, ok := Bounds(ed); !ok {
		ed.SetLine(0, Marker+"\n"+Marker+"\n"+ed.Line(0))
	}

	if line, ok := Locate(ed, path); ok {
		key, _, _ := strings.Cut(ed.Line(line), ":")
		ed.SetLine(line, key+": "+value)
		return
	}

	end, ok := Bounds(ed)
	if !ok {
		return
	}
	ed.SetLine(end, path+": "+value+"\n"+Marker)
}

func scan(ed Editor, seg string, from, to int) (int, bool) {
	for i := from; i < to; i++ {
		name, _, _ := strings.Cut(ed.Line(i), ":")
		if strings.TrimSpace(name) == seg {
			return i, true
		}
	}
	return 0, false
}

// splitPath returns nil for paths with empty segments.
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	segments := strings.Split(path, ".")
	for _, s := range segments {
		if s == "" {
			return nil
		}
	}
	return segments
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}
