package col

import (
	"fmt"
	"strings"

	"github.com/openfroyo/extconf/pkg/engine"
)

// Scanner tokenizes configuration source text.
type Scanner struct {
	src  []byte
	file string
	pos  int
	line int
}

// NewScanner creates a scanner over src. The file name is used in positions.
func NewScanner(src []byte, file string) *Scanner {
	return &Scanner{src: src, file: file, line: 1}
}

// File returns the source identity of the scanner.
func (s *Scanner) File() string {
	return s.file
}

func (s *Scanner) position() engine.Position {
	return engine.Position{File: s.file, Line: s.line}
}

func (s *Scanner) errorf(format string, args ...interface{}) error {
	return engine.NewSyntaxError(fmt.Sprintf(format, args...), nil).
		WithSource(s.position()).
		WithCode(engine.ErrCodeUnexpectedToken)
}

func (s *Scanner) peekByte(offset int) byte {
	if s.pos+offset < len(s.src) {
		return s.src[s.pos+offset]
	}
	return 0
}

// skipSpace skips whitespace and comments.
func (s *Scanner) skipSpace() error {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\n':
			s.line++
			s.pos++
		case c == ' ' || c == '\t' || c == '\r':
			s.pos++
		case c == '/' && s.peekByte(1) == '/':
			for s.pos < len(s.src) && s.src[s.pos] != '\n' {
				s.pos++
			}
		case c == '/' && s.peekByte(1) == '*':
			start := s.position()
			s.pos += 2
			for {
				if s.pos >= len(s.src) {
					return engine.NewSyntaxError("unterminated comment", nil).
						WithSource(start).
						WithCode(engine.ErrCodeUnexpectedToken)
				}
				if s.src[s.pos] == '*' && s.peekByte(1) == '/' {
					s.pos += 2
					break
				}
				if s.src[s.pos] == '\n' {
					s.line++
				}
				s.pos++
			}
		default:
			return nil
		}
	}
	return nil
}

// Next returns the next token.
func (s *Scanner) Next() (Token, error) {
	if err := s.skipSpace(); err != nil {
		return Token{}, err
	}
	pos := s.position()
	if s.pos >= len(s.src) {
		return Token{Type: EOF, Pos: pos}, nil
	}

	c := s.src[s.pos]
	switch {
	case isLetter(c):
		start := s.pos
		for s.pos < len(s.src) && (isLetter(s.src[s.pos]) || isDigit(s.src[s.pos])) {
			s.pos++
		}
		text := string(s.src[start:s.pos])
		if kw, ok := keywords[text]; ok {
			return Token{Type: kw, Text: text, Pos: pos}, nil
		}
		return Token{Type: ID, Text: text, Pos: pos}, nil

	case isDigit(c) || (c == '-' && isDigit(s.peekByte(1))):
		return s.scanNumber(pos)

	case c == '"':
		return s.scanString(pos)
	}

	s.pos++
	var tt TokenType
	switch c {
	case '{':
		tt = LCURLY
	case '}':
		tt = RCURLY
	case '[':
		tt = LSQUARE
	case ']':
		tt = RSQUARE
	case '(':
		tt = LPAREN
	case ')':
		tt = RPAREN
	case ',':
		tt = COMMA
	case '.':
		tt = DOT
	case '=':
		tt = ASSIGN
	case ':':
		tt = COLON
	default:
		return Token{}, s.errorf("unexpected character %q", c)
	}
	return Token{Type: tt, Text: string(c), Pos: pos}, nil
}

func (s *Scanner) scanNumber(pos engine.Position) (Token, error) {
	start := s.pos
	if s.src[s.pos] == '-' {
		s.pos++
	}
	for s.pos < len(s.src) && isDigit(s.src[s.pos]) {
		s.pos++
	}

	tt := INT
	if s.pos < len(s.src) && s.src[s.pos] == '.' && isDigit(s.peekByte(1)) {
		tt = DOUBLE
		s.pos++
		for s.pos < len(s.src) && isDigit(s.src[s.pos]) {
			s.pos++
		}
	}
	if s.pos < len(s.src) && (s.src[s.pos] == 'e' || s.src[s.pos] == 'E') {
		next := s.peekByte(1)
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(s.peekByte(2))) {
			tt = DOUBLE
			s.pos += 2
			for s.pos < len(s.src) && isDigit(s.src[s.pos]) {
				s.pos++
			}
		}
	}
	text := string(s.src[start:s.pos])

	if tt == INT && s.pos < len(s.src) && (s.src[s.pos] == 'L' || s.src[s.pos] == 'l') {
		s.pos++
		return Token{Type: LONG, Text: text, Pos: pos}, nil
	}
	if s.pos < len(s.src) && isLetter(s.src[s.pos]) {
		return Token{}, s.errorf("malformed number %s%c", text, s.src[s.pos])
	}
	return Token{Type: tt, Text: text, Pos: pos}, nil
}

func (s *Scanner) scanString(pos engine.Position) (Token, error) {
	s.pos++ // opening quote
	var sb strings.Builder
	for {
		if s.pos >= len(s.src) || s.src[s.pos] == '\n' {
			return Token{}, engine.NewSyntaxError("unterminated string literal", nil).
				WithSource(pos).
				WithCode(engine.ErrCodeUnexpectedToken)
		}
		c := s.src[s.pos]
		if c == '"' {
			s.pos++
			return Token{Type: STRING, Text: sb.String(), Pos: pos}, nil
		}
		if c == '\\' {
			s.pos++
			if s.pos >= len(s.src) {
				continue
			}
			switch e := s.src[s.pos]; e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '"', '\\', '/':
				sb.WriteByte(e)
			default:
				return Token{}, s.errorf("invalid escape sequence \\%c", e)
			}
			s.pos++
			continue
		}
		sb.WriteByte(c)
		s.pos++
	}
}

func isLetter(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
