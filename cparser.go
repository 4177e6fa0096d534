package oaccrefac

import (
	"fmt"
	"strings"
)

// -- Recursive-Descent C Parser --
//
// The parser accepts the C subset used by loop fixtures and benchmark kernels:
// function definitions, declarations with array and pointer declarators,
// structured statements, and the full expression grammar. Preprocessor lines
// are not expanded: object-like #defines are recorded for constant folding and
// #pragma lines attach to the statement that follows them.

var typeKeywords = map[string]bool{
	"void": true, "char": true, "short": true, "int": true, "long": true,
	"float": true, "double": true, "signed": true, "unsigned": true, "_Bool": true,
	"struct": true, "union": true, "enum": true,
}

var storageKeywords = map[string]bool{
	"static": true, "extern": true, "typedef": true, "register": true, "auto": true,
	"inline": true, "__inline": true,
}

var qualifierKeywords = map[string]bool{
	"const": true, "volatile": true, "restrict": true, "__restrict": true, "__restrict__": true,
}

// Typedef names every fixture may use without declaring them.
var builtinTypedefs = []string{
	"size_t", "ssize_t", "ptrdiff_t", "bool", "FILE",
	"int8_t", "int16_t", "int32_t", "int64_t",
	"uint8_t", "uint16_t", "uint32_t", "uint64_t",
	"intptr_t", "uintptr_t",
}

var assignOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"<<=": true, ">>=": true, "&=": true, "^=": true, "|=": true,
}

var binaryPrec = map[string]int{
	"||": 1, "&&": 2, "|": 3, "^": 4, "&": 5,
	"==": 6, "!=": 6,
	"<": 7, ">": 7, "<=": 7, ">=": 7,
	"<<": 8, ">>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
}

type parser struct {
	file     string
	toks     []Token
	p        int
	pragmas  map[int][]*Pragma // keyed by the index of the token that follows them
	typedefs map[string]bool
	defines  map[string]string
}

type bailout struct{ err *ParseFailure }

type pragmaHolder interface{ attach([]*Pragma) }

// ParseFile parses a C source file. Syntax errors are reported as *ParseFailure.
func ParseFile(name string, src []byte) (f *File, err error) {
	raw, err := Tokenize(name, src)
	if err != nil {
		return nil, err
	}
	p := &parser{
		file:     name,
		pragmas:  make(map[int][]*Pragma),
		typedefs: make(map[string]bool),
		defines:  make(map[string]string),
	}
	for _, t := range builtinTypedefs {
		p.typedefs[t] = true
	}
	for _, t := range raw {
		switch t.Kind {
		case TokPragma:
			pr := &Pragma{Text: t.Text}
			pr.rng = Range{Start: t.Pos, End: t.End}
			p.pragmas[len(p.toks)] = append(p.pragmas[len(p.toks)], pr)
		case TokDirective:
			p.recordDefine(t.Text)
		default:
			p.toks = append(p.toks, t)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			f, err = nil, b.err
		}
	}()
	f = p.parseFile()
	f.Name = name
	f.Src = src
	return f, nil
}

// ParseExpr parses a standalone expression, e.g. a macro body.
func ParseExpr(text string) (x Expr, err error) {
	toks, err := Tokenize("", []byte(text))
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, pragmas: map[int][]*Pragma{}, typedefs: map[string]bool{}, defines: map[string]string{}}
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			x, err = nil, b.err
		}
	}()
	x = p.parseExpr()
	if p.tok().Kind != TokEOF {
		p.errorf(p.tok().Pos, "unexpected %s after expression", p.tok())
	}
	return x, nil
}

func (p *parser) recordDefine(text string) {
	fields := strings.Fields(text)
	if len(fields) < 2 || fields[0] != "define" {
		return
	}
	rest := strings.TrimSpace(strings.TrimPrefix(text, "define"))
	n := 0
	for n < len(rest) && isIdentPart(rest[n]) {
		n++
	}
	if n == 0 || (n < len(rest) && rest[n] == '(') {
		return // function-like macro
	}
	p.defines[rest[:n]] = strings.TrimSpace(rest[n:])
}

// -- Token Helpers --

func (p *parser) tok() Token { return p.peek(0) }

func (p *parser) peek(n int) Token {
	if p.p+n < len(p.toks) {
		return p.toks[p.p+n]
	}
	last := p.toks[len(p.toks)-1]
	return Token{Kind: TokEOF, Pos: last.End, End: last.End}
}

func (p *parser) next() Token {
	t := p.tok()
	if p.p < len(p.toks)-1 {
		p.p++
	}
	return t
}

func (p *parser) prevEnd() Pos {
	if p.p == 0 {
		return p.toks[0].Pos
	}
	return p.toks[p.p-1].End
}

func (p *parser) isAt(n int, text string) bool {
	t := p.peek(n)
	return (t.Kind == TokPunct || t.Kind == TokKeyword) && t.Text == text
}

func (p *parser) is(text string) bool { return p.isAt(0, text) }

func (p *parser) accept(text string) bool {
	if p.is(text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(text string) Token {
	if !p.is(text) {
		p.errorf(p.tok().Pos, "expected %q, found %s", text, p.tok())
	}
	return p.next()
}

func (p *parser) errorf(pos Pos, format string, args ...any) {
	panic(bailout{&ParseFailure{File: p.file, Pos: pos, Msg: fmt.Sprintf(format, args...)}})
}

// -- Declarations --

func (p *parser) isTypeStartAt(n int, guess bool) bool {
	t := p.peek(n)
	switch t.Kind {
	case TokKeyword:
		return typeKeywords[t.Text] || storageKeywords[t.Text] || qualifierKeywords[t.Text]
	case TokIdent:
		if p.typedefs[t.Text] {
			return true
		}
		// An unknown identifier directly followed by another one can only
		// be a typedef name in a declaration such as "real_t x;".
		return guess && p.peek(n+1).Kind == TokIdent
	}
	return false
}

func (p *parser) parseTypeSpec() TypeSpec {
	var spec TypeSpec
	var words []string
	qualified := false
loop:
	for {
		t := p.tok()
		switch {
		case t.Kind == TokKeyword && storageKeywords[t.Text]:
			if t.Text != "inline" && t.Text != "__inline" {
				spec.Storage = t.Text
			}
			qualified = true
			p.next()
		case t.Kind == TokKeyword && qualifierKeywords[t.Text]:
			switch t.Text {
			case "const":
				spec.Const = true
			case "volatile":
				spec.Volatile = true
			}
			qualified = true
			p.next()
		case t.Kind == TokKeyword && (t.Text == "struct" || t.Text == "union" || t.Text == "enum"):
			p.next()
			name := ""
			if p.tok().Kind == TokIdent {
				name = p.next().Text
			}
			if p.is("{") {
				p.skipBalanced("{", "}")
			}
			words = append(words, strings.TrimSpace(t.Text+" "+name))
		case t.Kind == TokKeyword && typeKeywords[t.Text]:
			words = append(words, t.Text)
			p.next()
		case t.Kind == TokIdent && len(words) == 0 && (p.typedefs[t.Text] || p.peek(1).Kind == TokIdent):
			words = append(words, t.Text)
			p.next()
		default:
			break loop
		}
	}
	if len(words) == 0 {
		if !qualified {
			p.errorf(p.tok().Pos, "expected type, found %s", p.tok())
		}
		words = []string{"int"}
	}
	spec.Base = strings.Join(words, " ")
	return spec
}

func (p *parser) skipBalanced(open, close string) {
	depth := 0
	for {
		t := p.tok()
		if t.Kind == TokEOF {
			p.errorf(t.Pos, "unbalanced %q", open)
		}
		p.next()
		if t.Kind == TokPunct && t.Text == open {
			depth++
		} else if t.Kind == TokPunct && t.Text == close {
			depth--
			if depth == 0 {
				return
			}
		}
	}
}

func (p *parser) parseDeclarator(abstract bool) *Declarator {
	d := &Declarator{}
	start := p.tok().Pos
	for p.is("*") {
		p.next()
		d.Pointers++
		for p.tok().Kind == TokKeyword && qualifierKeywords[p.tok().Text] {
			if strings.Contains(p.tok().Text, "restrict") {
				d.Restrict = true
			}
			p.next()
		}
	}
	switch {
	case p.tok().Kind == TokIdent:
		d.Name = p.next().Text
	case p.is("(") && p.isAt(1, "*"):
		// Function pointer: treat as a plain pointer variable.
		p.next()
		p.next()
		d.Pointers++
		if p.tok().Kind == TokIdent {
			d.Name = p.next().Text
		}
		p.expect(")")
		if p.is("(") {
			p.skipBalanced("(", ")")
		}
	case !abstract:
		p.errorf(p.tok().Pos, "expected identifier, found %s", p.tok())
	}
	for {
		switch {
		case p.is("["):
			p.next()
			for p.tok().Kind == TokKeyword && (qualifierKeywords[p.tok().Text] || p.tok().Text == "static") {
				p.next()
			}
			var dim Expr
			if !p.is("]") {
				dim = p.parseAssign()
			}
			p.expect("]")
			d.Dims = append(d.Dims, dim)
		case p.is("("):
			p.next()
			d.Func = true
			p.parseParams(d)
			p.expect(")")
		default:
			d.rng = Range{Start: start, End: p.prevEnd()}
			return d
		}
	}
}

func (p *parser) parseParams(d *Declarator) {
	if p.is(")") {
		return
	}
	if p.is("void") && p.isAt(1, ")") {
		p.next()
		return
	}
	for {
		if p.accept("...") {
			d.Variadic = true
			return
		}
		spec := p.parseTypeSpec()
		d.Params = append(d.Params, &Param{Spec: spec, Decl: p.parseDeclarator(true)})
		if !p.accept(",") {
			return
		}
	}
}

func (p *parser) parseInitializer() Expr {
	if !p.is("{") {
		return p.parseAssign()
	}
	start := p.next().Pos
	list := &InitList{}
	for !p.is("}") {
		// Designators are accepted and dropped.
		if p.is(".") && p.peek(1).Kind == TokIdent && p.isAt(2, "=") {
			p.next()
			p.next()
			p.next()
		} else if p.is("[") {
			p.skipBalanced("[", "]")
			p.expect("=")
		}
		list.Elems = append(list.Elems, p.parseInitializer())
		if !p.accept(",") {
			break
		}
	}
	p.expect("}")
	list.rng = Range{Start: start, End: p.prevEnd()}
	return list
}

// finishDecl parses initializers and further declarators up to the ';'.
func (p *parser) finishDecl(spec TypeSpec, first *Declarator, start Pos) *Decl {
	decl := &Decl{Spec: spec}
	d := first
	for {
		if p.accept("=") {
			d.Init = p.parseInitializer()
			d.rng.End = p.prevEnd()
		}
		decl.Declarators = append(decl.Declarators, d)
		if !p.accept(",") {
			break
		}
		d = p.parseDeclarator(false)
	}
	p.expect(";")
	decl.rng = Range{Start: start, End: p.prevEnd()}
	if spec.Storage == "typedef" {
		for _, d := range decl.Declarators {
			p.typedefs[d.Name] = true
		}
	}
	return decl
}

func (p *parser) parseFile() *File {
	f := &File{Defines: p.defines, Typedefs: p.typedefs}
	for p.tok().Kind != TokEOF {
		if p.accept(";") {
			continue
		}
		start := p.tok().Pos
		spec := p.parseTypeSpec()
		if p.accept(";") {
			continue
		}
		d := p.parseDeclarator(false)
		if d.Func && p.is("{") {
			body := p.parseCompound()
			fn := &FuncDecl{Name: d.Name, Result: spec, Pointers: d.Pointers, Params: d.Params, Body: body}
			fn.rng = Range{Start: start, End: body.Span().End}
			f.Funcs = append(f.Funcs, fn)
			continue
		}
		decl := p.finishDecl(spec, d, start)
		if spec.Storage != "typedef" && !allFuncs(decl) {
			f.Globals = append(f.Globals, decl)
		}
	}
	return f
}

func allFuncs(d *Decl) bool {
	for _, dd := range d.Declarators {
		if !dd.Func {
			return false
		}
	}
	return true
}

// -- Statements --

func (p *parser) parseStmt() Stmt {
	idx := p.p
	s := p.parseStmtInner()
	if prs := p.pragmas[idx]; len(prs) > 0 {
		if h, ok := s.(pragmaHolder); ok {
			h.attach(prs)
		}
	}
	return s
}

func (p *parser) parseStmtInner() Stmt {
	t := p.tok()
	start := t.Pos
	if t.Kind == TokIdent && p.isAt(1, ":") {
		p.next()
		p.next()
		s := &LabeledStmt{Label: t.Text, Body: p.parseStmt()}
		s.rng = Range{Start: start, End: p.prevEnd()}
		return s
	}
	if t.Kind == TokKeyword {
		switch t.Text {
		case "for":
			return p.parseFor()
		case "while":
			p.next()
			p.expect("(")
			cond := p.parseExpr()
			p.expect(")")
			s := &WhileStmt{Cond: cond, Body: p.parseStmt()}
			s.rng = Range{Start: start, End: p.prevEnd()}
			return s
		case "do":
			p.next()
			body := p.parseStmt()
			p.expect("while")
			p.expect("(")
			cond := p.parseExpr()
			p.expect(")")
			p.expect(";")
			s := &DoStmt{Body: body, Cond: cond}
			s.rng = Range{Start: start, End: p.prevEnd()}
			return s
		case "if":
			p.next()
			p.expect("(")
			cond := p.parseExpr()
			p.expect(")")
			s := &IfStmt{Cond: cond, Then: p.parseStmt()}
			if p.accept("else") {
				s.Else = p.parseStmt()
			}
			s.rng = Range{Start: start, End: p.prevEnd()}
			return s
		case "switch":
			p.next()
			p.expect("(")
			tag := p.parseExpr()
			p.expect(")")
			s := &SwitchStmt{Tag: tag, Body: p.parseStmt()}
			s.rng = Range{Start: start, End: p.prevEnd()}
			return s
		case "case", "default":
			p.next()
			s := &CaseStmt{Default: t.Text == "default"}
			if !s.Default {
				s.Value = p.parseCond()
			}
			p.expect(":")
			s.Body = p.parseStmt()
			s.rng = Range{Start: start, End: p.prevEnd()}
			return s
		case "break":
			p.next()
			p.expect(";")
			s := &BreakStmt{}
			s.rng = Range{Start: start, End: p.prevEnd()}
			return s
		case "continue":
			p.next()
			p.expect(";")
			s := &ContinueStmt{}
			s.rng = Range{Start: start, End: p.prevEnd()}
			return s
		case "goto":
			p.next()
			label := p.tok()
			if label.Kind != TokIdent {
				p.errorf(label.Pos, "expected label, found %s", label)
			}
			p.next()
			p.expect(";")
			s := &GotoStmt{Label: label.Text}
			s.rng = Range{Start: start, End: p.prevEnd()}
			return s
		case "return":
			p.next()
			s := &ReturnStmt{}
			if !p.is(";") {
				s.X = p.parseExpr()
			}
			p.expect(";")
			s.rng = Range{Start: start, End: p.prevEnd()}
			return s
		}
	}
	if p.is("{") {
		return p.parseCompound()
	}
	if p.accept(";") {
		s := &NullStmt{}
		s.rng = Range{Start: start, End: p.prevEnd()}
		return s
	}
	if p.isTypeStartAt(0, true) {
		return p.parseDeclStmt()
	}
	x := p.parseExpr()
	p.expect(";")
	s := &ExprStmt{X: x}
	s.rng = Range{Start: start, End: p.prevEnd()}
	return s
}

func (p *parser) parseDeclStmt() *DeclStmt {
	start := p.tok().Pos
	spec := p.parseTypeSpec()
	var decl *Decl
	if p.is(";") {
		p.next()
		decl = &Decl{Spec: spec}
		decl.rng = Range{Start: start, End: p.prevEnd()}
	} else {
		decl = p.finishDecl(spec, p.parseDeclarator(false), start)
	}
	s := &DeclStmt{Decl: decl}
	s.rng = decl.rng
	return s
}

func (p *parser) parseCompound() *CompoundStmt {
	start := p.expect("{").Pos
	c := &CompoundStmt{}
	for !p.is("}") {
		if p.tok().Kind == TokEOF {
			p.errorf(p.tok().Pos, "unexpected end of file in block")
		}
		c.Stmts = append(c.Stmts, p.parseStmt())
	}
	p.expect("}")
	c.rng = Range{Start: start, End: p.prevEnd()}
	return c
}

func (p *parser) parseFor() *ForStmt {
	start := p.expect("for").Pos
	p.expect("(")
	s := &ForStmt{}
	switch {
	case p.accept(";"):
	case p.isTypeStartAt(0, true):
		s.Init = p.parseDeclStmt()
	default:
		x := p.parseExpr()
		es := &ExprStmt{X: x}
		es.rng = x.Span()
		s.Init = es
		p.expect(";")
	}
	if !p.is(";") {
		s.Cond = p.parseExpr()
	}
	p.expect(";")
	if !p.is(")") {
		s.Post = p.parseExpr()
	}
	p.expect(")")
	s.Body = p.parseStmt()
	s.rng = Range{Start: start, End: p.prevEnd()}
	return s
}

// -- Expressions --

func (p *parser) parseExpr() Expr {
	x := p.parseAssign()
	for p.is(",") {
		p.next()
		y := p.parseAssign()
		b := &BinaryExpr{Op: ",", X: x, Y: y}
		b.rng = Range{Start: x.Span().Start, End: y.Span().End}
		x = b
	}
	return x
}

func (p *parser) parseAssign() Expr {
	lhs := p.parseCond()
	if t := p.tok(); t.Kind == TokPunct && assignOps[t.Text] {
		p.next()
		rhs := p.parseAssign()
		a := &AssignExpr{Op: t.Text, LHS: lhs, RHS: rhs}
		a.rng = Range{Start: lhs.Span().Start, End: rhs.Span().End}
		return a
	}
	return lhs
}

func (p *parser) parseCond() Expr {
	c := p.parseBinary(1)
	if !p.accept("?") {
		return c
	}
	then := p.parseExpr()
	p.expect(":")
	els := p.parseCond()
	x := &CondExpr{Cond: c, Then: then, Else: els}
	x.rng = Range{Start: c.Span().Start, End: els.Span().End}
	return x
}

func (p *parser) parseBinary(minPrec int) Expr {
	x := p.parseCast()
	for {
		t := p.tok()
		prec, ok := binaryPrec[t.Text]
		if t.Kind != TokPunct || !ok || prec < minPrec {
			return x
		}
		p.next()
		y := p.parseBinary(prec + 1)
		b := &BinaryExpr{Op: t.Text, X: x, Y: y}
		b.rng = Range{Start: x.Span().Start, End: y.Span().End}
		x = b
	}
}

func (p *parser) parseTypeName() *TypeName {
	tn := &TypeName{Spec: p.parseTypeSpec()}
	for p.is("*") || (p.tok().Kind == TokKeyword && qualifierKeywords[p.tok().Text]) {
		if p.next().Text == "*" {
			tn.Pointers++
		}
	}
	return tn
}

func (p *parser) parseCast() Expr {
	if p.is("(") && p.isTypeStartAt(1, false) {
		start := p.next().Pos
		tn := p.parseTypeName()
		p.expect(")")
		var x Expr
		if p.is("{") {
			x = p.parseInitializer()
		} else {
			x = p.parseCast()
		}
		c := &CastExpr{Type: tn, X: x}
		c.rng = Range{Start: start, End: p.prevEnd()}
		return c
	}
	return p.parseUnary()
}

func (p *parser) parseUnary() Expr {
	t := p.tok()
	start := t.Pos
	if t.Kind == TokPunct {
		switch t.Text {
		case "-", "+", "!", "~", "*", "&":
			p.next()
			u := &UnaryExpr{Op: t.Text, X: p.parseCast()}
			u.rng = Range{Start: start, End: p.prevEnd()}
			return u
		case "++", "--":
			p.next()
			u := &UnaryExpr{Op: t.Text, X: p.parseUnary()}
			u.rng = Range{Start: start, End: p.prevEnd()}
			return u
		}
	}
	if t.Kind == TokKeyword && t.Text == "sizeof" {
		p.next()
		s := &SizeofExpr{}
		if p.is("(") && p.isTypeStartAt(1, false) {
			p.next()
			s.Type = p.parseTypeName()
			p.expect(")")
		} else {
			s.X = p.parseUnary()
		}
		s.rng = Range{Start: start, End: p.prevEnd()}
		return s
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() Expr {
	x := p.parsePrimary()
	for {
		start := x.Span().Start
		switch {
		case p.is("["):
			p.next()
			idx := p.parseExpr()
			p.expect("]")
			ix := &IndexExpr{X: x, Index: idx}
			ix.rng = Range{Start: start, End: p.prevEnd()}
			x = ix
		case p.is("("):
			p.next()
			call := &CallExpr{Fun: x}
			for !p.is(")") {
				call.Args = append(call.Args, p.parseAssign())
				if !p.accept(",") {
					break
				}
			}
			p.expect(")")
			call.rng = Range{Start: start, End: p.prevEnd()}
			x = call
		case p.is(".") || p.is("->"):
			arrow := p.next().Text == "->"
			name := p.tok()
			if name.Kind != TokIdent {
				p.errorf(name.Pos, "expected member name, found %s", name)
			}
			p.next()
			m := &MemberExpr{X: x, Name: name.Text, Arrow: arrow}
			m.rng = Range{Start: start, End: p.prevEnd()}
			x = m
		case p.is("++") || p.is("--"):
			op := p.next().Text
			pe := &PostfixExpr{Op: op, X: x}
			pe.rng = Range{Start: start, End: p.prevEnd()}
			x = pe
		default:
			return x
		}
	}
}

func (p *parser) parsePrimary() Expr {
	t := p.tok()
	r := Range{Start: t.Pos, End: t.End}
	switch t.Kind {
	case TokIdent:
		p.next()
		id := &Ident{Name: t.Text}
		id.rng = r
		return id
	case TokInt:
		p.next()
		v, err := parseIntLiteral(t.Text)
		if err != nil {
			p.errorf(t.Pos, "bad integer literal %s", t.Text)
		}
		lit := &IntLit{Text: t.Text, Value: v}
		lit.rng = r
		return lit
	case TokFloat:
		p.next()
		lit := &FloatLit{Text: t.Text}
		lit.rng = r
		return lit
	case TokChar:
		p.next()
		v, _ := charLiteralValue(t.Text)
		lit := &CharLit{Text: t.Text, Value: v}
		lit.rng = r
		return lit
	case TokString:
		p.next()
		text := t.Text
		for p.tok().Kind == TokString {
			text += " " + p.next().Text
		}
		lit := &StringLit{Text: text}
		lit.rng = Range{Start: t.Pos, End: p.prevEnd()}
		return lit
	case TokPunct:
		if t.Text == "(" {
			p.next()
			x := p.parseExpr()
			p.expect(")")
			pe := &ParenExpr{X: x}
			pe.rng = Range{Start: t.Pos, End: p.prevEnd()}
			return pe
		}
	}
	p.errorf(t.Pos, "unexpected %s", t)
	return nil
}
