package oaccrefac

import (
	"fmt"
	"strconv"
	"strings"
)

// -- Positions --

// Pos is a 1-based line/column location plus a 0-based byte offset.
type Pos struct {
	Line   int
	Col    int
	Offset int
}

func (p Pos) IsValid() bool { return p.Line > 0 }

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Col) }

// Before reports whether p comes strictly before q.
func (p Pos) Before(q Pos) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Col < q.Col
}

// Range is a source span. End is exclusive: it names the column just past
// the last character.
type Range struct {
	Start Pos
	End   Pos
}

func (r Range) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", r.Start.Line, r.Start.Col, r.End.Line, r.End.Col)
}

func (r Range) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Contains reports whether q lies entirely within r.
func (r Range) Contains(q Range) bool {
	return !q.Start.Before(r.Start) && !r.End.Before(q.End)
}

// Covers reports whether p lies within r.
func (r Range) Covers(p Pos) bool {
	return !p.Before(r.Start) && p.Before(r.End)
}

// -- Tokens --

type TokenKind int

const (
	TokEOF TokenKind = iota
	TokIdent
	TokKeyword
	TokInt
	TokFloat
	TokChar
	TokString
	TokPunct
	TokPragma    // #pragma line, Text holds everything after "pragma"
	TokDirective // any other preprocessor line, Text holds the whole line
)

var tokenKindNames = [...]string{"EOF", "identifier", "keyword", "integer", "float", "char", "string", "punctuator", "pragma", "directive"}

func (k TokenKind) String() string {
	if int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return "token(" + strconv.Itoa(int(k)) + ")"
}

type Token struct {
	Kind TokenKind
	Text string
	Pos  Pos
	End  Pos
}

func (t Token) String() string {
	if t.Kind == TokEOF {
		return "EOF"
	}
	return fmt.Sprintf("%s %q", t.Kind, t.Text)
}

var cKeywords = map[string]bool{
	"auto": true, "break": true, "case": true, "char": true, "const": true,
	"continue": true, "default": true, "do": true, "double": true, "else": true,
	"enum": true, "extern": true, "float": true, "for": true, "goto": true,
	"if": true, "inline": true, "int": true, "long": true, "register": true,
	"restrict": true, "return": true, "short": true, "signed": true, "sizeof": true,
	"static": true, "struct": true, "switch": true, "typedef": true, "union": true,
	"unsigned": true, "void": true, "volatile": true, "while": true, "_Bool": true,
	"__restrict": true, "__restrict__": true, "__inline": true,
}

// Longest punctuators first so the scanner can match greedily.
var cPunctuators = []string{
	"<<=", ">>=", "...",
	"->", "++", "--", "<<", ">>", "<=", ">=", "==", "!=", "&&", "||",
	"+=", "-=", "*=", "/=", "%=", "&=", "^=", "|=", "##",
	"[", "]", "(", ")", "{", "}", ".", "&", "*", "+", "-", "~", "!",
	"/", "%", "<", ">", "^", "|", "?", ":", ";", "=", ",", "#",
}

// -- Scanner --

type lexer struct {
	src  []byte
	file string
	off  int
	line int
	col  int
	// atLineStart is true until a non-blank character is seen on the line.
	atLineStart bool
}

// Tokenize splits C source into tokens. Comments are dropped; preprocessor
// lines become single TokPragma or TokDirective tokens.
func Tokenize(file string, src []byte) ([]Token, error) {
	lx := &lexer{src: src, file: file, line: 1, col: 1, atLineStart: true}
	var toks []Token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == TokEOF {
			return toks, nil
		}
	}
}

func (lx *lexer) pos() Pos { return Pos{Line: lx.line, Col: lx.col, Offset: lx.off} }

func (lx *lexer) fail(p Pos, format string, args ...any) error {
	return &ParseFailure{File: lx.file, Pos: p, Msg: fmt.Sprintf(format, args...)}
}

func (lx *lexer) peekByte(n int) byte {
	if lx.off+n < len(lx.src) {
		return lx.src[lx.off+n]
	}
	return 0
}

func (lx *lexer) advance() {
	if lx.src[lx.off] == '\n' {
		lx.line++
		lx.col = 1
		lx.atLineStart = true
	} else {
		lx.col++
	}
	lx.off++
}

func (lx *lexer) skipSpaceAndComments() error {
	for lx.off < len(lx.src) {
		c := lx.src[lx.off]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == '\v':
			lx.advance()
		case c == '\\' && lx.peekByte(1) == '\n':
			lx.advance()
			lx.advance()
		case c == '/' && lx.peekByte(1) == '/':
			for lx.off < len(lx.src) && lx.src[lx.off] != '\n' {
				lx.advance()
			}
		case c == '/' && lx.peekByte(1) == '*':
			start := lx.pos()
			lx.advance()
			lx.advance()
			for {
				if lx.off >= len(lx.src) {
					return lx.fail(start, "unterminated comment")
				}
				if lx.src[lx.off] == '*' && lx.peekByte(1) == '/' {
					lx.advance()
					lx.advance()
					break
				}
				lx.advance()
			}
		default:
			return nil
		}
	}
	return nil
}

func (lx *lexer) next() (Token, error) {
	if err := lx.skipSpaceAndComments(); err != nil {
		return Token{}, err
	}
	start := lx.pos()
	if lx.off >= len(lx.src) {
		return Token{Kind: TokEOF, Pos: start, End: start}, nil
	}
	c := lx.src[lx.off]
	lineStart := lx.atLineStart
	lx.atLineStart = false

	switch {
	case c == '#' && lineStart:
		return lx.directive(start)
	case isIdentStart(c):
		for lx.off < len(lx.src) && isIdentPart(lx.src[lx.off]) {
			lx.advance()
		}
		text := string(lx.src[start.Offset:lx.off])
		kind := TokIdent
		if cKeywords[text] {
			kind = TokKeyword
		}
		return Token{Kind: kind, Text: text, Pos: start, End: lx.pos()}, nil
	case isDigit(c) || (c == '.' && isDigit(lx.peekByte(1))):
		return lx.number(start)
	case c == '\'':
		return lx.quoted(start, '\'', TokChar)
	case c == '"':
		return lx.quoted(start, '"', TokString)
	}

	for _, p := range cPunctuators {
		if strings.HasPrefix(string(lx.src[lx.off:min(lx.off+len(p), len(lx.src))]), p) {
			for range len(p) {
				lx.advance()
			}
			return Token{Kind: TokPunct, Text: p, Pos: start, End: lx.pos()}, nil
		}
	}
	return Token{}, lx.fail(start, "unexpected character %q", c)
}

func (lx *lexer) directive(start Pos) (Token, error) {
	var b strings.Builder
	for lx.off < len(lx.src) && lx.src[lx.off] != '\n' {
		if lx.src[lx.off] == '\\' && lx.peekByte(1) == '\n' {
			lx.advance()
			lx.advance()
			b.WriteByte(' ')
			continue
		}
		if lx.src[lx.off] == '/' && lx.peekByte(1) == '*' {
			// Comments inside directives collapse to a space.
			for lx.off < len(lx.src) && !(lx.src[lx.off] == '*' && lx.peekByte(1) == '/') {
				lx.advance()
			}
			if lx.off >= len(lx.src) {
				return Token{}, lx.fail(start, "unterminated comment")
			}
			lx.advance()
			lx.advance()
			b.WriteByte(' ')
			continue
		}
		if lx.src[lx.off] == '/' && lx.peekByte(1) == '/' {
			for lx.off < len(lx.src) && lx.src[lx.off] != '\n' {
				lx.advance()
			}
			break
		}
		b.WriteByte(lx.src[lx.off])
		lx.advance()
	}
	end := lx.pos()
	text := strings.TrimSpace(b.String())
	body := strings.TrimSpace(strings.TrimPrefix(text, "#"))
	if fields := strings.Fields(body); len(fields) > 0 && fields[0] == "pragma" {
		rest := strings.TrimSpace(strings.TrimPrefix(body, "pragma"))
		return Token{Kind: TokPragma, Text: rest, Pos: start, End: end}, nil
	}
	return Token{Kind: TokDirective, Text: body, Pos: start, End: end}, nil
}

func (lx *lexer) number(start Pos) (Token, error) {
	isFloat := false
	if lx.src[lx.off] == '0' && (lx.peekByte(1) == 'x' || lx.peekByte(1) == 'X') {
		lx.advance()
		lx.advance()
		for lx.off < len(lx.src) && isHexDigit(lx.src[lx.off]) {
			lx.advance()
		}
	} else {
		for lx.off < len(lx.src) {
			c := lx.src[lx.off]
			switch {
			case isDigit(c):
			case c == '.':
				isFloat = true
			case (c == 'e' || c == 'E') && (isDigit(lx.peekByte(1)) || ((lx.peekByte(1) == '+' || lx.peekByte(1) == '-') && isDigit(lx.peekByte(2)))):
				isFloat = true
				lx.advance()
			default:
				goto suffix
			}
			lx.advance()
		}
	}
suffix:
	for lx.off < len(lx.src) && strings.IndexByte("uUlLfF", lx.src[lx.off]) >= 0 {
		if c := lx.src[lx.off]; c == 'f' || c == 'F' {
			isFloat = true
		}
		lx.advance()
	}
	if lx.off < len(lx.src) && isIdentPart(lx.src[lx.off]) {
		return Token{}, lx.fail(start, "malformed number")
	}
	kind := TokInt
	if isFloat {
		kind = TokFloat
	}
	return Token{Kind: kind, Text: string(lx.src[start.Offset:lx.off]), Pos: start, End: lx.pos()}, nil
}

func (lx *lexer) quoted(start Pos, quote byte, kind TokenKind) (Token, error) {
	lx.advance()
	for {
		if lx.off >= len(lx.src) || lx.src[lx.off] == '\n' {
			return Token{}, lx.fail(start, "unterminated literal")
		}
		c := lx.src[lx.off]
		if c == '\\' {
			lx.advance()
			if lx.off < len(lx.src) {
				lx.advance()
			}
			continue
		}
		lx.advance()
		if c == quote {
			break
		}
	}
	return Token{Kind: kind, Text: string(lx.src[start.Offset:lx.off]), Pos: start, End: lx.pos()}, nil
}

// parseIntLiteral strips C suffixes and parses decimal, octal or hex text.
func parseIntLiteral(text string) (int64, error) {
	t := strings.TrimRight(text, "uUlL")
	v, err := strconv.ParseInt(t, 0, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(t, 0, 64)
		if uerr != nil {
			return 0, err
		}
		return int64(u), nil
	}
	return v, nil
}

// charLiteralValue decodes the common single-character and escape forms.
func charLiteralValue(text string) (int64, bool) {
	if len(text) < 3 || text[0] != '\'' || text[len(text)-1] != '\'' {
		return 0, false
	}
	body := text[1 : len(text)-1]
	if body[0] != '\\' {
		if len(body) != 1 {
			return 0, false
		}
		return int64(body[0]), true
	}
	if len(body) < 2 {
		return 0, false
	}
	switch body[1] {
	case 'n':
		return '\n', true
	case 't':
		return '\t', true
	case 'r':
		return '\r', true
	case '\\':
		return '\\', true
	case '\'':
		return '\'', true
	case '"':
		return '"', true
	case 'a':
		return 7, true
	case 'b':
		return 8, true
	case 'f':
		return 12, true
	case 'v':
		return 11, true
	case 'x':
		v, err := strconv.ParseInt(body[2:], 16, 64)
		return v, err == nil
	}
	v, err := strconv.ParseInt(body[1:], 8, 64)
	return v, err == nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
