package value

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Segment is one step of a variable path.
type Segment struct {
	Name     string
	Index    int
	HasIndex bool
}

// Path is a dotted, optionally indexed variable path.
type Path []Segment

// ParsePath parses the textual form produced by Path.String.
func ParsePath(s string) (Path, error) {
	p := &pathScanner{src: s}
	var path Path
	for {
		seg, err := p.segment()
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", s, err)
		}
		path = append(path, seg)
		if p.eof() {
			return path, nil
		}
		if p.peek() != '.' {
			return nil, fmt.Errorf("invalid path %q: expected '.' at offset %d", s, p.pos)
		}
		p.pos++
	}
}

// MustParsePath is like ParsePath but panics on error.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Prepend returns a new path with the given segment names in front of p.
func (p Path) Prepend(names ...string) Path {
	out := make(Path, 0, len(names)+len(p))
	for _, n := range names {
		out = append(out, Segment{Name: n})
	}
	return append(out, p.Clone()...)
}

// Clone returns a copy of p.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// String renders the path. Names that are not identifiers are written as ("name").
func (p Path) String() string {
	var sb strings.Builder
	for i, seg := range p {
		if i > 0 {
			sb.WriteByte('.')
		}
		if IsIdentifier(seg.Name) {
			sb.WriteString(seg.Name)
		} else {
			sb.WriteString("(")
			sb.WriteString(strconv.Quote(seg.Name))
			sb.WriteString(")")
		}
		if seg.HasIndex {
			fmt.Fprintf(&sb, "[%d]", seg.Index)
		}
	}
	return sb.String()
}

// IsIdentifier reports whether s can be written as a bare path segment.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

type pathScanner struct {
	src string
	pos int
}

func (p *pathScanner) eof() bool { return p.pos >= len(p.src) }

func (p *pathScanner) peek() byte { return p.src[p.pos] }

func (p *pathScanner) segment() (Segment, error) {
	var seg Segment
	if p.eof() {
		return seg, fmt.Errorf("unexpected end of path")
	}
	if p.peek() == '(' {
		p.pos++
		rest := p.src[p.pos:]
		quoted, err := strconv.QuotedPrefix(rest)
		if err != nil {
			return seg, fmt.Errorf("expected string at offset %d", p.pos)
		}
		name, err := strconv.Unquote(quoted)
		if err != nil {
			return seg, err
		}
		p.pos += len(quoted)
		if p.eof() || p.peek() != ')' {
			return seg, fmt.Errorf("expected ')' at offset %d", p.pos)
		}
		p.pos++
		seg.Name = name
	} else {
		start := p.pos
		for !p.eof() && p.peek() != '.' && p.peek() != '[' {
			p.pos++
		}
		seg.Name = p.src[start:p.pos]
		if !IsIdentifier(seg.Name) {
			return seg, fmt.Errorf("invalid segment %q", seg.Name)
		}
	}
	if !p.eof() && p.peek() == '[' {
		end := strings.IndexByte(p.src[p.pos:], ']')
		if end < 0 {
			return seg, fmt.Errorf("unterminated index at offset %d", p.pos)
		}
		idx, err := strconv.Atoi(p.src[p.pos+1 : p.pos+end])
		if err != nil || idx < 0 {
			return seg, fmt.Errorf("invalid index %q", p.src[p.pos+1:p.pos+end])
		}
		seg.Index = idx
		seg.HasIndex = true
		p.pos += end + 1
	}
	return seg, nil
}
