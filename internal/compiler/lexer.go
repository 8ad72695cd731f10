package compiler

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokLBrace
	tokRBrace
	tokComma
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokLBrace:
		return "'{'"
	case tokRBrace:
		return "'}'"
	case tokComma:
		return "','"
	default:
		return "token"
	}
}

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

// lexer produces the token stream for the DSL. Statements are call-shaped
// (`name(args)`) with optional `{ }` blocks; `//` and `#` start line
// comments; strings use double quotes.
type lexer struct {
	src  string
	pos  int
	line int
	col  int
	errs *ErrorList
}

func newLexer(src string, errs *ErrorList) *lexer {
	return &lexer{src: src, line: 1, col: 1, errs: errs}
}

func (l *lexer) tokens() []token {
	var out []token
	for {
		t := l.next()
		out = append(out, t)
		if t.kind == tokEOF {
			return out
		}
	}
}

func (l *lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.peekByte()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == ';':
			l.advance()
		case c == '#':
			l.skipLine()
		case c == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/':
			l.skipLine()
		default:
			return
		}
	}
}

func (l *lexer) skipLine() {
	for l.pos < len(l.src) && l.peekByte() != '\n' {
		l.advance()
	}
}

func (l *lexer) next() token {
	l.skipSpaceAndComments()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, line: l.line, col: l.col}
	}
	line, col := l.line, l.col
	c := l.peekByte()

	switch c {
	case '(':
		l.advance()
		return token{tokLParen, "(", line, col}
	case ')':
		l.advance()
		return token{tokRParen, ")", line, col}
	case '{':
		l.advance()
		return token{tokLBrace, "{", line, col}
	case '}':
		l.advance()
		return token{tokRBrace, "}", line, col}
	case ',':
		l.advance()
		return token{tokComma, ",", line, col}
	case '"':
		return l.lexString(line, col)
	}

	if c >= '0' && c <= '9' {
		start := l.pos
		for l.pos < len(l.src) && l.peekByte() >= '0' && l.peekByte() <= '9' {
			l.advance()
		}
		return token{tokNumber, l.src[start:l.pos], line, col}
	}

	if isIdentStart(rune(c)) {
		start := l.pos
		for l.pos < len(l.src) && isIdentRune(rune(l.peekByte())) {
			l.advance()
		}
		return token{tokIdent, l.src[start:l.pos], line, col}
	}

	l.errs.add(ErrSyntax, line, col, "unexpected character %q", string(c))
	l.advance()
	return l.next()
}

func (l *lexer) lexString(line, col int) token {
	l.advance() // opening quote
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.advance()
		if c == '"' {
			return token{tokString, sb.String(), line, col}
		}
		if c == '\n' {
			break
		}
		sb.WriteByte(c)
	}
	l.errs.add(ErrSyntax, line, col, "unterminated string literal")
	return token{tokString, sb.String(), line, col}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
