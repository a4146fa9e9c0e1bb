package frontmatter

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/timethings/internal/apperr"
)

// Header is the structured view of a header block: a YAML mapping addressed
// by dotted paths.
type Header struct {
	root *yaml.Node
}

// NewHeader returns an empty header.
func NewHeader() *Header {
	return &Header{root: &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}}
}

// Get returns the raw scalar text at path. Non-scalar values are reported
// as present with an empty string.
func (h *Header) Get(path string) (string, bool) {
	node := h.lookup(splitPath(path))
	if node == nil {
		return "", false
	}
	if node.Kind != yaml.ScalarNode {
		return "", true
	}
	return node.Value, true
}

// Scalar reports whether path is absent or holds a scalar.
func (h *Header) Scalar(path string) bool {
	node := h.lookup(splitPath(path))
	return node == nil || node.Kind == yaml.ScalarNode
}

// Set stores value at path, creating intermediate mappings as needed. A
// non-mapping value in the way of a nested path is replaced.
func (h *Header) Set(path, value string) {
	segments := splitPath(path)
	if segments == nil {
		return
	}
	node := h.root
	for i, seg := range segments {
		child := mappingValue(node, seg)
		if i == len(segments)-1 {
			if child == nil {
				appendPair(node, seg, &yaml.Node{Kind: yaml.ScalarNode, Value: value})
				return
			}
			if child.Kind != yaml.ScalarNode {
				child.Style = 0
			}
			// Drop the old tag so the encoder re-resolves the new text.
			child.Kind = yaml.ScalarNode
			child.Tag = ""
			child.Value = value
			child.Content = nil
			child.Style &^= yaml.TaggedStyle
			return
		}
		if child == nil {
			child = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			appendPair(node, seg, child)
		} else if child.Kind != yaml.MappingNode {
			*child = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		}
		node = child
	}
}

// Len returns the number of top-level fields.
func (h *Header) Len() int {
	return len(h.root.Content) / 2
}

func (h *Header) lookup(segments []string) *yaml.Node {
	if segments == nil {
		return nil
	}
	node := h.root
	for _, seg := range segments {
		if node.Kind != yaml.MappingNode {
			return nil
		}
		node = mappingValue(node, seg)
		if node == nil {
			return nil
		}
	}
	return node
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func appendPair(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, value)
}

// Split separates a document into its header block and the remaining body.
// ok is false when the document has no well-formed header, in which case
// body is the whole document. The block has "\n" endings; the body keeps
// the document's own bytes.
func Split(data []byte) (block []byte, body []byte, ok bool) {
	block, body, ok, _ = split(data)
	return block, body, ok
}

func split(data []byte) (block []byte, body []byte, ok bool, crlf bool) {
	lines := ParseLines(data)
	end, found := Bounds(lines)
	if !found {
		return nil, data, false, lines.CRLF()
	}
	block = []byte(strings.Join(lines.Strings()[1:end], "\n"))
	return block, []byte(lines.raw(end + 1)), true, lines.CRLF()
}

// Decode parses a header block. An empty block yields an empty header.
func Decode(block []byte) (*Header, error) {
	if len(bytes.TrimSpace(block)) == 0 {
		return NewHeader(), nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(block, &doc); err != nil {
		return nil, fmt.Errorf("frontmatter: decode: %w: %v", apperr.ErrInvalidHeader, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return NewHeader(), nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("frontmatter: decode: %w: header is not a mapping", apperr.ErrInvalidHeader)
	}
	return &Header{root: root}, nil
}

// Encode renders the header as YAML without the marker lines.
func (h *Header) Encode() ([]byte, error) {
	if len(h.root.Content) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(h.root); err != nil {
		return nil, fmt.Errorf("frontmatter: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("frontmatter: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Process runs fn against the decoded header of data and returns the
// document with the re-encoded header. A document without a header gets one.
// The header is written with the document's line ending. If fn returns an
// error the document is left untouched and the error is returned.
func Process(data []byte, fn func(*Header) error) ([]byte, error) {
	block, body, ok, crlf := split(data)
	h := NewHeader()
	if ok {
		var err error
		if h, err = Decode(block); err != nil {
			return nil, err
		}
	}
	if err := fn(h); err != nil {
		return nil, err
	}
	encoded, err := h.Encode()
	if err != nil {
		return nil, err
	}

	eol := "\n"
	if crlf {
		eol = "\r\n"
		encoded = bytes.ReplaceAll(encoded, []byte("\n"), []byte(eol))
	}
	var out bytes.Buffer
	out.WriteString(Marker + eol)
	out.Write(encoded)
	out.WriteString(Marker + eol)
	out.Write(body)
	return out.Bytes(), nil
}
