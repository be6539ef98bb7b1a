package col

import (
	"fmt"

	"github.com/openfroyo/extconf/pkg/engine"
)

// TokenType identifies a lexical token.
type TokenType int

const (
	EOF TokenType = iota
	ID
	STRING
	INT
	LONG
	DOUBLE
	TRUE
	FALSE

	// Keywords
	INCLUDE
	PROFILE
	CONFIGURES
	EXTENDS
	EMBEDS
	WITH
	FROM

	// Punctuation
	LCURLY
	RCURLY
	LSQUARE
	RSQUARE
	LPAREN
	RPAREN
	COMMA
	DOT
	ASSIGN
	COLON
)

var tokenNames = [...]string{
	EOF:        "end of file",
	ID:         "identifier",
	STRING:     "string",
	INT:        "int",
	LONG:       "long",
	DOUBLE:     "double",
	TRUE:       "true",
	FALSE:      "false",
	INCLUDE:    "include",
	PROFILE:    "profile",
	CONFIGURES: "configures",
	EXTENDS:    "extends",
	EMBEDS:     "embeds",
	WITH:       "with",
	FROM:       "from",
	LCURLY:     "{",
	RCURLY:     "}",
	LSQUARE:    "[",
	RSQUARE:    "]",
	LPAREN:     "(",
	RPAREN:     ")",
	COMMA:      ",",
	DOT:        ".",
	ASSIGN:     "=",
	COLON:      ":",
}

func (t TokenType) String() string {
	if int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("token(%d)", int(t))
}

var keywords = map[string]TokenType{
	"include":    INCLUDE,
	"profile":    PROFILE,
	"configures": CONFIGURES,
	"extends":    EXTENDS,
	"embeds":     EMBEDS,
	"with":       WITH,
	"from":       FROM,
	"true":       TRUE,
	"false":      FALSE,
}

// Contextual keywords are scanned as identifiers and matched by text.
const (
	kwInputPort  = "inputPort"
	kwOutputPort = "outputPort"
	kwInterface  = "interface"
	kwLocation   = "Location"
	kwProtocol   = "Protocol"
)

// Token is a lexical token with its source position.
type Token struct {
	Type TokenType
	Text string
	Pos  engine.Position
}

// Is reports whether the token is an identifier spelled kw.
func (t Token) Is(kw string) bool {
	return t.Type == ID && t.Text == kw
}

func (t Token) String() string {
	switch t.Type {
	case ID, INT, LONG, DOUBLE:
		return fmt.Sprintf("%s '%s'", t.Type, t.Text)
	case STRING:
		return fmt.Sprintf("string %q", t.Text)
	default:
		return fmt.Sprintf("'%s'", t.Type)
	}
}
